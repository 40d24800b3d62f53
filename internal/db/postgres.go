// Package db provides the Postgres-backed user repository.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alchemy-app/backend/internal/auth"
	"github.com/alchemy-app/backend/internal/models"
)

// PostgresConfig holds the pool parameters.
type PostgresConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// Postgres wraps a pgx pool and implements auth.UserRepository.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	if p == nil || p.Pool == nil {
		return
	}
	p.Pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.Pool.Ping(ctx)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	statement := strings.Join([]string{
		"CREATE TABLE IF NOT EXISTS users (",
		"    id TEXT PRIMARY KEY,",
		"    username TEXT NOT NULL,",
		"    email TEXT NOT NULL DEFAULT '',",
		"    password_hash TEXT NOT NULL,",
		"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),",
		"    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		")",
	}, "\n")

	if _, err := p.Pool.Exec(ctx, statement); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}

	indexes := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS users_username_key ON users (LOWER(username))",
		"CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (LOWER(email)) WHERE email <> ''",
	}
	for _, stmt := range indexes {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	return nil
}

func (p *Postgres) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.Pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return auth.ErrEmailExists
			}
			return auth.ErrUserExists
		}
		return fmt.Errorf("postgres: insert user: %w", err)
	}

	return nil
}

func (p *Postgres) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users
	          WHERE LOWER(username) = LOWER($1) OR (email <> '' AND LOWER(email) = LOWER($1))
	          LIMIT 1`

	var user models.User
	err := p.Pool.QueryRow(ctx, query, strings.TrimSpace(identifier)).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres: query user: %w", err)
	}

	return &user, nil
}

func (p *Postgres) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := p.Pool.Exec(ctx, "UPDATE users SET updated_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("postgres: touch user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}

	return nil
}
