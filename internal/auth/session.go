// Package auth abstracts the identity provider behind a small capability so
// the REST and realtime clients never depend on a specific vendor.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medius/internal/domain"
	"medius/internal/security"
)

// Session issues bearer credentials for the signed-in user.
type Session interface {
	Token(ctx context.Context) (string, error)
	CurrentUser(ctx context.Context) (*domain.User, error)
	SignOut(ctx context.Context) error
}

// TokenSession serves a bearer token obtained out of band. The user is read
// from the token's claims; the signature is the API's business.
type TokenSession struct {
	mu        sync.RWMutex
	token     string
	user      *domain.User
	expiresAt time.Time
	signedOut bool
	now       func() time.Time
}

func NewTokenSession(token string) (*TokenSession, error) {
	claims, err := security.PeekClaims(token)
	if err != nil {
		return nil, fmt.Errorf("read token claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", domain.ErrUnauthorized)
	}
	s := &TokenSession{
		token: token,
		user:  &domain.User{ID: claims.Subject, Username: claims.Username},
		now:   time.Now,
	}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func (s *TokenSession) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signedOut {
		return "", domain.ErrSignedOut
	}
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", fmt.Errorf("token expired: %w", domain.ErrUnauthorized)
	}
	return s.token, nil
}

func (s *TokenSession) CurrentUser(ctx context.Context) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signedOut {
		return nil, domain.ErrSignedOut
	}
	u := *s.user
	return &u, nil
}

func (s *TokenSession) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedOut = true
	s.token = ""
	return nil
}

// SigningSession mints a fresh short-lived token on every call. It is meant
// for development backends that share the signing secret.
type SigningSession struct {
	mu        sync.RWMutex
	tokens    *security.TokenService
	user      domain.User
	signedOut bool
}

func NewSigningSession(tokens *security.TokenService, user domain.User) *SigningSession {
	return &SigningSession{tokens: tokens, user: user}
}

func (s *SigningSession) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signedOut {
		return "", domain.ErrSignedOut
	}
	tok, err := s.tokens.CreateForUser(s.user.ID, s.user.Username)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	return tok, nil
}

func (s *SigningSession) CurrentUser(ctx context.Context) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signedOut {
		return nil, domain.ErrSignedOut
	}
	u := s.user
	return &u, nil
}

func (s *SigningSession) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedOut = true
	return nil
}
