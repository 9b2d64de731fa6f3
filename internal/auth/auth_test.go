package auth

import (
	"errors"
	"testing"
	"time"

	"trading-advisor-bot/config"
)

func newTestService(t *testing.T, duration time.Duration) *Service {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return NewService(config.AuthConfig{
		JWTSecret:         "test-secret",
		AdminPasswordHash: hash,
		TokenDuration:     duration,
	})
}

func TestLoginValidateRoundTrip(t *testing.T) {
	svc := newTestService(t, time.Hour)

	token, err := svc.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Role != "admin" || claims.Subject != "admin" {
		t.Errorf("claims = %+v, want admin role and subject", claims)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(t, time.Hour)
	if _, err := svc.Login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginDisabledService(t *testing.T) {
	svc := NewService(config.AuthConfig{})
	if svc.Enabled() {
		t.Error("service with no secret reported enabled")
	}
	if _, err := svc.Login("anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newTestService(t, time.Nanosecond)

	token, err := svc.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	svc := newTestService(t, time.Hour)
	if _, err := svc.Validate("not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("got %v, want ErrTokenInvalid", err)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	svc := newTestService(t, time.Hour)
	token, err := svc.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := NewService(config.AuthConfig{
		JWTSecret:         "different-secret",
		AdminPasswordHash: "x",
	})
	if _, err := other.Validate(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("got %v, want ErrTokenInvalid", err)
	}
}
