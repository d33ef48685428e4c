package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobportal/authweb/internal/auth"
	"github.com/jobportal/authweb/internal/authstate"
	"github.com/jobportal/authweb/internal/config"
	"github.com/jobportal/authweb/internal/jobs"
)

func testConfig(endpoint string) config.Config {
	return config.Config{
		HTTP: config.HTTPConfig{
			Addr:          "127.0.0.1:0",
			ReadTimeout:   config.Duration(5 * time.Second),
			WriteTimeout:  config.Duration(5 * time.Second),
			IdleTimeout:   config.Duration(5 * time.Second),
			AuthRateLimit: 5,
		},
		UserAPI: config.UserAPIConfig{EndPoint: endpoint},
		Session: config.SessionConfig{
			Backend: config.BackendMemory,
			TTL:     config.Duration(time.Hour),
			Secret:  "test-secret",
		},
		DB:  config.DBConfig{Port: "5432", SSLMode: "require"},
		Log: config.LogConfig{Level: "info", Format: "json"},
	}
}

// =============================================================================
// Backend selection
// =============================================================================

func TestOpenBackend_Memory(t *testing.T) {
	sb, err := openBackend(context.Background(), testConfig("http://api"), zap.NewNop())
	require.NoError(t, err)
	defer sb.close()

	assert.IsType(t, &authstate.MemoryBackend{}, sb.backend)
	assert.Nil(t, sb.sweeper, "memory sessions need no database sweep")
}

func TestOpenBackend_RedisInvalidURL(t *testing.T) {
	cfg := testConfig("http://api")
	cfg.Session.Backend = config.BackendRedis
	cfg.Redis.URL = "http://not-redis"

	_, err := openBackend(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestOpenBackend_RedisUnreachable(t *testing.T) {
	cfg := testConfig("http://api")
	cfg.Session.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := openBackend(ctx, cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestOpenBackend_PostgresRequiresCredentials(t *testing.T) {
	cfg := testConfig("http://api")
	cfg.Session.Backend = config.BackendPostgres
	cfg.DB.Host = "localhost"

	_, err := openBackend(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database user is required")
}

func TestPostgresConfig_FromEnvironment(t *testing.T) {
	dbConfig, err := postgresConfig(context.Background(), config.DBConfig{
		Host:     "db.internal",
		Port:     "5433",
		User:     "authweb",
		Password: "pw",
		Name:     "sessions",
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "db.internal", dbConfig.Host)
	assert.Equal(t, "5433", dbConfig.Port)
	assert.Equal(t, "sessions", dbConfig.Database)
	assert.Equal(t, "require", dbConfig.SSLMode, "sslmode should default to require")
}

// =============================================================================
// Wiring
// =============================================================================

func TestNewRouter_ServesLoginPage(t *testing.T) {
	router, err := newRouter(testConfig("http://api"), authstate.NewMemoryBackend(), nil, zap.NewNop())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `action="/login"`)
}

func TestNewRouter_RejectsEmptySecret(t *testing.T) {
	cfg := testConfig("http://api")
	cfg.Session.Secret = ""

	_, err := newRouter(cfg, authstate.NewMemoryBackend(), nil, zap.NewNop())
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestNewSweepJob_Targets(t *testing.T) {
	limiter := auth.DefaultAuthRateLimiter(1)
	limiter.Allow("10.0.0.1")

	var purged bool
	sb := &sessionBackend{
		backend: authstate.NewMemoryBackend(),
		sweeper: jobs.SweeperFunc(func(context.Context) (int64, error) {
			purged = true
			return 3, nil
		}),
		close: func() {},
	}

	result := newSweepJob(sb, limiter, zap.NewNop()).Run(context.Background())

	assert.Empty(t, result.Errors)
	assert.True(t, purged)
	assert.Equal(t, int64(3), result.Removed["sessions"])
	assert.Contains(t, result.Removed, "rate_limit")
}

func TestRunningOnLambda(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	assert.False(t, runningOnLambda())

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "authweb")
	assert.True(t, runningOnLambda())
}

// =============================================================================
// Run
// =============================================================================

func TestRun_StopsWhenContextIsCanceled(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":true}`)
	}))
	defer api.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(api.URL), zap.NewNop()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	cfg := testConfig("http://api")
	cfg.HTTP.Addr = "256.0.0.1:-1"

	err := run(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
