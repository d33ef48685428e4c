// Package main runs the job portal's login and signup pages, either as a
// plain HTTP server or behind API Gateway on Lambda.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobportal/authweb/internal/auth"
	"github.com/jobportal/authweb/internal/authstate"
	"github.com/jobportal/authweb/internal/config"
	"github.com/jobportal/authweb/internal/database"
	"github.com/jobportal/authweb/internal/jobs"
	"github.com/jobportal/authweb/internal/logging"
	"github.com/jobportal/authweb/internal/userapi"
	"github.com/jobportal/authweb/internal/web"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests
const shutdownTimeout = 10 * time.Second

// sessionBackend is the selected auth state backend plus what it needs on shutdown
type sessionBackend struct {
	backend authstate.Backend
	// sweeper purges expired sessions; nil when the backend expires them itself
	sweeper jobs.Sweeper
	close   func()
}

// openBackend connects the backend named by cfg.Session.Backend
func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*sessionBackend, error) {
	ttl := cfg.Session.TTL.Duration()

	switch cfg.Session.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("using redis session backend", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
		return &sessionBackend{
			backend: authstate.NewRedisBackend(rdb, ttl),
			close:   func() { rdb.Close() },
		}, nil

	case config.BackendPostgres:
		dbConfig, err := postgresConfig(ctx, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		if cfg.DB.CreateDatabase {
			if err := database.EnsureDatabaseExists(ctx, dbConfig, logger); err != nil {
				return nil, err
			}
		}
		pool, err := database.NewPool(ctx, dbConfig)
		if err != nil {
			return nil, err
		}
		logger.Info("running database migrations")
		if err := database.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, err
		}
		store := database.NewSessionStore(pool, ttl)
		logger.Info("using postgres session backend", zap.String("host", dbConfig.Host), zap.String("database", dbConfig.Database))
		return &sessionBackend{
			backend: store,
			sweeper: jobs.SweeperFunc(store.PurgeExpired),
			close:   pool.Close,
		}, nil

	default:
		logger.Info("using in-memory session backend")
		return &sessionBackend{
			backend: authstate.NewMemoryBackend(),
			close:   func() {},
		}, nil
	}
}

// postgresConfig reads credentials from Secrets Manager when a secret name
// is configured, otherwise from the environment
func postgresConfig(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*database.Config, error) {
	if cfg.SecretName != "" {
		logger.Info("loading database credentials from Secrets Manager", zap.String("secret", cfg.SecretName))
		dbConfig, err := database.LoadConfigFromSecretsManager(ctx, cfg.SecretName, cfg.SSLMode)
		if err != nil {
			return nil, err
		}
		if cfg.Name != "" {
			dbConfig.Database = cfg.Name
		}
		return dbConfig, nil
	}

	dbConfig := &database.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Name,
		SSLMode:  cfg.SSLMode,
	}
	if err := dbConfig.Validate(); err != nil {
		return nil, err
	}
	return dbConfig, nil
}

// newRouter wires the web router from configuration
func newRouter(cfg config.Config, backend authstate.Backend, limiter *auth.RateLimiter, logger *zap.Logger) (*web.Router, error) {
	sessions, err := auth.NewSessions(cfg.Session.Secret, cfg.Session.TTL.Duration(), cfg.Session.CookieSecure)
	if err != nil {
		return nil, err
	}

	api := userapi.NewClient(cfg.UserAPI.EndPoint,
		userapi.WithTimeout(cfg.UserAPI.Timeout.Duration()),
		userapi.WithLogger(logger.Named("userapi")),
	)

	return web.NewRouter(web.Config{
		API:          api,
		Backend:      backend,
		Sessions:     sessions,
		RateLimiter:  limiter,
		CookieSecure: cfg.Session.CookieSecure,
		Logger:       logger.Named("web"),
	})
}

// newSweepJob registers the periodic cleanup targets
func newSweepJob(sb *sessionBackend, limiter *auth.RateLimiter, logger *zap.Logger) *jobs.SweepJob {
	job := jobs.NewSweepJob(jobs.SweepConfig{Logger: logger.Named("sweep")})
	if sb.sweeper != nil {
		job.Add("sessions", sb.sweeper)
	}
	job.Add("rate_limit", jobs.SweeperFunc(func(context.Context) (int64, error) {
		return int64(limiter.Sweep()), nil
	}))
	return job
}

// runningOnLambda reports whether the process was started by the Lambda runtime
func runningOnLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	sb, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sb.close()

	limiter := auth.DefaultAuthRateLimiter(cfg.HTTP.AuthRateLimit)
	router, err := newRouter(cfg, sb.backend, limiter, logger)
	if err != nil {
		return err
	}

	if runningOnLambda() {
		// Expired sessions are purged by the session-cleanup function
		logger.Info("starting Lambda handler", zap.String("user_api", cfg.UserAPI.EndPoint))
		lambda.Start(httpadapter.New(router).ProxyWithContext)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go newSweepJob(sb, limiter, logger).Start(ctx)

	server := web.NewServerWithConfig(cfg.HTTP.Addr, web.ServerConfig{
		ReadTimeout:    cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout:   cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:    cfg.HTTP.IdleTimeout.Duration(),
		MaxHeaderBytes: 1 << 20,
	}, router)
	if err := server.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Info("server started",
		zap.String("addr", server.Addr()),
		zap.String("user_api", cfg.UserAPI.EndPoint),
		zap.String("session_backend", cfg.Session.Backend),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
