package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStaticAndEnvProviders(t *testing.T) {
	ctx := context.Background()

	if _, err := (Static{}).FetchSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for empty static token, got %v", err)
	}

	t.Setenv("DOCFLOW_TEST_TOKEN", " abc ")
	s, err := Env{Name: "DOCFLOW_TEST_TOKEN"}.FetchSession(ctx)
	if err != nil || s.IDToken != "abc" {
		t.Fatalf("unexpected env session: %+v err=%v", s, err)
	}
}

func TestFileProviderRereadsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	p := File{Path: path}

	s, err := p.FetchSession(context.Background())
	if err != nil || s.IDToken != "first" {
		t.Fatalf("unexpected session: %+v err=%v", s, err)
	}

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("rewrite token: %v", err)
	}
	s, _ = p.FetchSession(context.Background())
	if s.IDToken != "second" {
		t.Fatalf("expected rotated token, got %q", s.IDToken)
	}

	if _, err := (File{Path: filepath.Join(t.TempDir(), "missing")}).FetchSession(context.Background()); err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestChainReturnsFirstToken(t *testing.T) {
	chain := Chain{
		Static{},
		nil,
		ProviderFunc(func(context.Context) (Session, error) { return Session{IDToken: "from-func"}, nil }),
		Static{Token: "later"},
	}
	s, err := chain.FetchSession(context.Background())
	if err != nil || s.IDToken != "from-func" {
		t.Fatalf("unexpected chain session: %+v err=%v", s, err)
	}

	if _, err := (Chain{Static{}, Env{Name: "DOCFLOW_TEST_UNSET_TOKEN"}}).FetchSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected joined ErrNoSession, got %v", err)
	}
}

func TestBearerTokenRejectsExpiredSession(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expired := ProviderFunc(func(context.Context) (Session, error) {
		return Session{IDToken: "t", ExpiresAt: now.Add(-time.Minute)}, nil
	})
	if _, err := BearerToken(context.Background(), expired, now); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	token, err := BearerToken(context.Background(), Static{Token: "ok"}, now)
	if err != nil || token != "ok" {
		t.Fatalf("unexpected token %q err=%v", token, err)
	}

	if _, err := BearerToken(context.Background(), nil, now); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for nil provider, got %v", err)
	}
}
