// Package auth supplies bearer tokens for calls to the analysis gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	ErrNoSession      = errors.New("no session available")
	ErrSessionExpired = errors.New("session expired")
)

type Session struct {
	IDToken   string
	ExpiresAt time.Time
}

// Expired reports whether the session carries an expiry that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type SessionProvider interface {
	FetchSession(ctx context.Context) (Session, error)
}

type ProviderFunc func(ctx context.Context) (Session, error)

func (f ProviderFunc) FetchSession(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Static always returns the same token.
type Static struct {
	Token string
}

func (p Static) FetchSession(context.Context) (Session, error) {
	token := strings.TrimSpace(p.Token)
	if token == "" {
		return Session{}, ErrNoSession
	}
	return Session{IDToken: token}, nil
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Name string
}

func (p Env) FetchSession(context.Context) (Session, error) {
	token := strings.TrimSpace(os.Getenv(p.Name))
	if token == "" {
		return Session{}, fmt.Errorf("%w: %s is empty", ErrNoSession, p.Name)
	}
	return Session{IDToken: token}, nil
}

// File reads the token from a file on every call so rotated tokens are picked up.
type File struct {
	Path string
}

func (p File) FetchSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(p.Path) == "" {
		return Session{}, fmt.Errorf("%w: token file path is empty", ErrNoSession)
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Session{}, fmt.Errorf("read token file %s: %w", p.Path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return Session{}, fmt.Errorf("%w: token file %s is empty", ErrNoSession, p.Path)
	}
	return Session{IDToken: token}, nil
}

// Chain returns the first provider's session that carries a token.
type Chain []SessionProvider

func (c Chain) FetchSession(ctx context.Context) (Session, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		s, err := p.FetchSession(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if strings.TrimSpace(s.IDToken) != "" {
			return s, nil
		}
	}
	if len(errs) == 0 {
		return Session{}, ErrNoSession
	}
	return Session{}, errors.Join(errs...)
}

// BearerToken fetches a session and returns its token, rejecting empty or
// expired sessions.
func BearerToken(ctx context.Context, p SessionProvider, now time.Time) (string, error) {
	if p == nil {
		return "", ErrNoSession
	}
	s, err := p.FetchSession(ctx)
	if err != nil {
		return "", err
	}
	if s.Expired(now) {
		return "", ErrSessionExpired
	}
	token := strings.TrimSpace(s.IDToken)
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}
