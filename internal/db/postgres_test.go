package db_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alchemy-app/backend/internal/auth"
	"github.com/alchemy-app/backend/internal/db"
	"github.com/alchemy-app/backend/internal/models"
)

func TestPostgresUserRepository(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	store, err := db.NewPostgres(context.Background(), db.PostgresConfig{
		DSN:            dsn,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     "user_" + suffix,
		Email:        "user_" + suffix + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	defer store.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", user.ID)

	// Duplicate username is rejected.
	dup := *user
	dup.ID = uuid.NewString()
	dup.Email = "other_" + suffix + "@example.com"
	if err := store.Create(ctx, &dup); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	// Duplicate email is rejected.
	dup = *user
	dup.ID = uuid.NewString()
	dup.Username = "other_" + suffix
	if err := store.Create(ctx, &dup); !errors.Is(err, auth.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	fetched, err := store.FindByIdentifier(ctx, user.Username)
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if fetched.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, fetched.ID)
	}

	fetched, err = store.FindByIdentifier(ctx, strings.ToUpper(user.Email))
	if err != nil {
		t.Fatalf("find by email (case-insensitive): %v", err)
	}
	if fetched.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, fetched.ID)
	}

	if _, err := store.FindByIdentifier(ctx, "nobody_"+suffix); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	touchedAt := now.Add(time.Minute)
	if err := store.Touch(ctx, user.ID, touchedAt); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := store.Touch(ctx, uuid.NewString(), touchedAt); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for an unknown id, got %v", err)
	}
}
