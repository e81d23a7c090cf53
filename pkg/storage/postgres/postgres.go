// Package postgres provides a PostgreSQL implementation of the storage
// interface using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vedmemory/ved/pkg/storage"
	"github.com/vedmemory/ved/pkg/storage/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		resume_mode TEXT NOT NULL DEFAULT 'summary',
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_user_created ON projects(user_id, created_at_ms DESC)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		raw_content TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_project_user_created
		ON conversations(project_id, user_id, created_at_ms DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user_created
		ON conversations(user_id, created_at_ms DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS summaries (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL UNIQUE REFERENCES conversations(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		updated_at_ms BIGINT NOT NULL
	)`,
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Dialect is the PostgreSQL flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Placeholder:       sqlstore.DollarPlaceholder,
	Schema:            schema,
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Config holds PostgreSQL settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Migrate applies the schema on open.
	Migrate bool
}

// Open connects to PostgreSQL and optionally applies the schema.
func Open(ctx context.Context, cfg *Config) (*sqlstore.Store, error) {
	connector, err := pq.NewConnector(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid dsn: %w", err)
	}

	db := sql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := sqlstore.New(db, Dialect)
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return store, nil
}

// Truncate empties every table. Intended for tests against a shared database.
func Truncate(ctx context.Context, s *sqlstore.Store) error {
	_, err := s.DB().ExecContext(ctx, `TRUNCATE summaries, conversations, projects, users RESTART IDENTITY CASCADE`)
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}
