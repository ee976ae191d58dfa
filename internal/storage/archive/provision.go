package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DatabaseName returns the database a connection string points at.
func DatabaseName(connectionString string) (string, error) {
	cfg, err := pgx.ParseConfig(connectionString)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("connection string names no database")
	}
	return cfg.Database, nil
}

// EnsureDatabase connects with adminConnectionString and creates dbName with
// UTF8 encoding unless it already exists. It reports whether it created it.
func EnsureDatabase(ctx context.Context, adminConnectionString, dbName string) (bool, error) {
	db, err := sql.Open("pgx", adminConnectionString)
	if err != nil {
		return false, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, dbName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up database %s: %w", dbName, err)
	}
	if exists {
		return false, nil
	}

	stmt := fmt.Sprintf(`CREATE DATABASE %s ENCODING 'UTF8' TEMPLATE template0`, pgx.Identifier{dbName}.Sanitize())
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("failed to create database: %w", err)
	}
	return true, nil
}
