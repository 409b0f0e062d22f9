// Package auth orchestrates the gateway login/logout credential lifecycle.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/internal/tokenstore"
	"github.com/folio-tools/stripesctl/pkg/logger"
)

// Service manages login, logout, and credential persistence.
type Service struct {
	routes *okapi.Routes
	store  *tokenstore.Store
	log    *logger.Logger
}

// New constructs an auth service.
func New(routes *okapi.Routes, store *tokenstore.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{routes: routes, store: store, log: log}
}

// Login authenticates against the gateway and persists the issued
// credentials. Prior credentials are cleared before the network call so a
// failed login never leaves stale state behind.
func (s *Service) Login(ctx context.Context, username, password string) error {
	if err := s.clearAll(); err != nil {
		return err
	}
	resp, err := s.routes.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := s.SaveTokens(resp); err != nil {
		return err
	}
	s.log.WithField("username", username).Info("logged in")
	return nil
}

// SaveTokens extracts credentials from a gateway response. The cookie pair
// and the plain token header are independent credential forms; whichever is
// present gets stored, neither is required.
func (s *Service) SaveTokens(resp *okapi.Response) error {
	if err := okapi.StoreCookiesFromHeader(s.store, resp.Header); err != nil {
		return err
	}
	if token := resp.Header.Get(okapi.TokenHeader); token != "" {
		if err := s.store.SetToken(token); err != nil {
			return err
		}
	}
	return nil
}

// Logout clears all stored credentials. It never makes a network call and
// always succeeds apart from local storage failures.
func (s *Service) Logout() error {
	return s.clearAll()
}

// Token returns the stored bearer token.
func (s *Service) Token(ctx context.Context) (string, error) {
	return s.store.Token(), nil
}

// AccessCookie returns the stored access cookie.
func (s *Service) AccessCookie(ctx context.Context) (*tokenstore.Cookie, error) {
	return s.store.AccessCookie(), nil
}

// RefreshCookie returns the stored refresh cookie.
func (s *Service) RefreshCookie(ctx context.Context) (*tokenstore.Cookie, error) {
	return s.store.RefreshCookie(), nil
}

// TokenClaims decodes the stored token's JWT claims without verifying the
// signature. Display use only (who is logged in, when the token expires);
// the gateway remains the authority on validity.
func (s *Service) TokenClaims() (jwt.MapClaims, error) {
	token := s.store.Token()
	if token == "" {
		if access := s.store.AccessCookie(); access != nil {
			token = access.Value
		}
	}
	if token == "" {
		return nil, fmt.Errorf("not logged in")
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token claims: %w", err)
	}
	return claims, nil
}

func (s *Service) clearAll() error {
	if err := s.store.ClearToken(); err != nil {
		return err
	}
	if err := s.store.ClearAccessCookie(); err != nil {
		return err
	}
	return s.store.ClearRefreshCookie()
}
