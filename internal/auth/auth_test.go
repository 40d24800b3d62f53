package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alchemy-app/backend/internal/auth"
)

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	registerResult, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "s3cret!",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if registerResult.Token == "" {
		t.Fatalf("expected token on registration")
	}

	if registerResult.User.Username != "alice" {
		t.Fatalf("expected username alice, got %s", registerResult.User.Username)
	}

	if registerResult.User.PasswordHash != "" {
		t.Fatalf("password hash must not leak out of the service")
	}

	claims, err := svc.VerifyToken(registerResult.Token)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}

	if claims.Subject != registerResult.User.ID {
		t.Fatalf("expected token subject %s, got %s", registerResult.User.ID, claims.Subject)
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "other@example.com",
		Password: "another!",
	}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "bob",
		Email:    "alice@example.com",
		Password: "another!",
	}); !errors.Is(err, auth.ErrEmailExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	loginResult, err := svc.Login(context.Background(), auth.LoginInput{
		Identifier: "alice",
		Password:   "s3cret!",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if loginResult.Token == "" {
		t.Fatalf("expected token on login")
	}

	// Email works as an identifier too.
	if _, err := svc.Login(context.Background(), auth.LoginInput{
		Identifier: "alice@example.com",
		Password:   "s3cret!",
	}); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}

	if _, err := svc.Login(context.Background(), auth.LoginInput{
		Identifier: "alice",
		Password:   "wrong",
	}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}

	if _, err := svc.Login(context.Background(), auth.LoginInput{
		Identifier: "nobody",
		Password:   "whatever",
	}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("an unknown user must look like bad credentials, got %v", err)
	}
}

func TestAuthServiceValidation(t *testing.T) {
	if _, err := auth.NewService("  ", time.Hour, nil); !errors.Is(err, auth.ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}

	svc, err := auth.NewService("secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "  ",
		Password: "longenough",
	}); !errors.Is(err, auth.ErrUsernameRequired) {
		t.Fatalf("expected ErrUsernameRequired, got %v", err)
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "carol",
		Password: "tiny",
	}); !errors.Is(err, auth.ErrPasswordTooWeak) {
		t.Fatalf("expected ErrPasswordTooWeak, got %v", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc, err := auth.NewService("secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.VerifyToken("not-a-token"); err == nil {
		t.Fatalf("expected an error for a malformed token")
	}

	// A token signed with a different secret is rejected.
	other, err := auth.NewService("other-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	result, err := other.Register(context.Background(), auth.RegisterInput{
		Username: "dave",
		Password: "longenough",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.VerifyToken(result.Token); err == nil {
		t.Fatalf("expected a signature mismatch error")
	}
}
