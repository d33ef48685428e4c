package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// EnsureDatabaseExists creates the configured database on the server if it
// is missing. It connects through the always-present postgres database, so
// the configured user needs CREATEDB.
func EnsureDatabaseExists(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := validateDatabaseName(cfg.Database); err != nil {
		return fmt.Errorf("invalid database name: %w", err)
	}

	admin := *cfg
	admin.Database = "postgres"
	conn, err := pgx.Connect(ctx, admin.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if exists {
		logger.Debug("database already exists", zap.String("database", cfg.Database))
		return nil
	}

	// Database names cannot be bound as parameters
	createSQL := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pgx.Identifier{cfg.Database}.Sanitize(), pgx.Identifier{cfg.User}.Sanitize())
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
	}

	logger.Info("created database", zap.String("database", cfg.Database))
	return nil
}

// validateDatabaseName accepts identifiers made of letters, digits and
// underscores that do not start with a digit
func validateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}

	first := rune(name[0])
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || first == '_') {
		return fmt.Errorf("database name must start with a letter or underscore")
	}

	for _, ch := range name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_') {
			return fmt.Errorf("database name can only contain letters, numbers, and underscores")
		}
	}
	return nil
}
