// Package auth authenticates the single administrator account that may read
// and export registrations.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/gfgkiit/trapped/pkg/config"
	"github.com/gfgkiit/trapped/pkg/crypto"
	jwtpkg "github.com/gfgkiit/trapped/pkg/jwt"
)

var (
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDisabled means no admin password hash is configured.
	ErrDisabled = errors.New("admin access is not configured")
)

// Service handles authentication workflows.
type Service struct {
	username     string
	passwordHash []byte
	secret       string
	ttl          time.Duration
	logger       *slog.Logger
}

// New constructs a Service from the admin settings in cfg.
func New(logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		username:     strings.TrimSpace(cfg.AdminUsername),
		passwordHash: []byte(cfg.AdminPasswordHash),
		secret:       cfg.JWTSecret,
		ttl:          cfg.AdminTokenTTL,
		logger:       logger,
	}
}

// Token is a signed admin session.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	ExpiresIn   time.Duration
}

// Login checks the admin credentials and returns a signed token.
func (s Service) Login(_ context.Context, username, password string) (Token, error) {
	if len(s.passwordHash) == 0 || s.secret == "" {
		return Token{}, ErrDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(s.username)) == 1
	// Always run bcrypt so timing does not reveal whether the username matched.
	passErr := crypto.ComparePassword(s.passwordHash, password)
	if !userOK || passErr != nil {
		s.logger.Warn("admin login rejected", "username", username)
		return Token{}, ErrInvalidCredentials
	}
	signed, expires, err := jwtpkg.GenerateToken(s.username, jwtpkg.RoleAdmin, s.secret, s.ttl)
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("admin logged in", "username", s.username)
	return Token{AccessToken: signed, ExpiresAt: expires, ExpiresIn: s.ttl}, nil
}

// Authorize validates a bearer token and returns its claims.
func (s Service) Authorize(_ context.Context, token string) (*jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errors.New("token required")
	}
	if s.secret == "" {
		return nil, ErrDisabled
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret)
	if err != nil {
		return nil, err
	}
	if claims.Role != jwtpkg.RoleAdmin || claims.Username != s.username {
		return nil, errors.New("token does not grant admin access")
	}
	return claims, nil
}
