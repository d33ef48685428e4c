// Package main implements the session cleanup Lambda.
// Runs inside the VPC next to the session database and is invoked on a
// schedule to delete expired auth sessions.
//
// Expected event:
//
//	{"action": "purge"}
//
// Response:
//
//	{"statusCode": 200, "body": {"message": "...", "removed": 12, "action": "purged|error"}}
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/jobportal/authweb/internal/database"
	"github.com/jobportal/authweb/internal/logging"
)

// Request is the expected Lambda event format
type Request struct {
	Action string `json:"action"`
}

// ResponseBody is the body of the Lambda response
type ResponseBody struct {
	Message string `json:"message"`
	Removed int64  `json:"removed"`
	Action  string `json:"action"`
}

// Response is the Lambda response format
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// DBConnector opens a connection to the session database
type DBConnector interface {
	Connect(ctx context.Context, cfg *database.Config) (database.DBTX, func(), error)
}

// PoolConnector implements DBConnector with a pgx pool
type PoolConnector struct{}

func (PoolConnector) Connect(ctx context.Context, cfg *database.Config) (database.DBTX, func(), error) {
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

var (
	smClient    database.SecretsManagerClient
	dbConnector DBConnector = PoolConnector{}
	logger      *zap.Logger = zap.NewNop()
)

func errorResponse(status int, msg string) Response {
	return Response{
		StatusCode: status,
		Body:       ResponseBody{Message: msg, Action: "error"},
	}
}

func handler(ctx context.Context, event Request) (Response, error) {
	logger.Info("received event", zap.String("action", event.Action))

	action := event.Action
	if action == "" {
		action = "purge"
	}
	if action != "purge" {
		return errorResponse(400, fmt.Sprintf("Unknown action: %s", action)), nil
	}

	secretName := os.Getenv("DB_SECRET_NAME")
	if secretName == "" {
		return errorResponse(500, "DB_SECRET_NAME environment variable not set"), nil
	}

	// Initialize AWS client if not set (allows injection for testing)
	if smClient == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return errorResponse(500, fmt.Sprintf("failed to load AWS config: %v", err)), nil
		}
		smClient = secretsmanager.NewFromConfig(cfg)
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}
	dbConfig, err := database.ConfigFromSecret(ctx, smClient, secretName, sslMode)
	if err != nil {
		logger.Error("failed to load database credentials", zap.Error(err))
		return errorResponse(500, fmt.Sprintf("Error: %v", err)), nil
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		dbConfig.Database = name
	}

	db, closeDB, err := dbConnector.Connect(ctx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return errorResponse(500, fmt.Sprintf("Error connecting to database: %v", err)), nil
	}
	defer closeDB()

	removed, err := database.NewSessionStoreWithDB(db, 0).PurgeExpired(ctx)
	if err != nil {
		logger.Error("failed to purge sessions", zap.Error(err))
		return errorResponse(500, fmt.Sprintf("Error: %v", err)), nil
	}

	logger.Info("purged expired sessions", zap.Int64("removed", removed), zap.String("database", dbConfig.Database))
	return Response{
		StatusCode: 200,
		Body: ResponseBody{
			Message: fmt.Sprintf("Removed %d expired sessions from %s", removed, dbConfig.Database),
			Removed: removed,
			Action:  "purged",
		},
	}, nil
}

func main() {
	l, err := logging.New(os.Getenv("LOG_LEVEL"), logging.FormatJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()
	logger = l

	lambda.Start(handler)
}
