// Package tokenstore persists Okapi credentials between command invocations.
//
// The store is a small JSON file under the user config directory, keyed by an
// application namespace. It is a plain key-value accessor: absent credentials
// read back as zero values and writes persist immediately. Single-process
// access is assumed; there is no file locking.
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cookie is a stored cookie-like credential record.
type Cookie struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	// Expires is an RFC3339 timestamp; empty means no expiry recorded.
	Expires string `json:"expires,omitempty"`
	Path    string `json:"path,omitempty"`
	Secure  bool   `json:"secure,omitempty"`
}

type credentials struct {
	Token         string  `json:"token,omitempty"`
	AccessCookie  *Cookie `json:"accessCookie,omitempty"`
	RefreshCookie *Cookie `json:"refreshCookie,omitempty"`
}

type fileFormat struct {
	Okapi credentials `json:"okapi"`
}

// Store reads and writes the credential file.
type Store struct {
	path string
}

// New creates a store namespaced under the user config directory.
func New(namespace string) (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config dir: %w", err)
	}
	return NewAtPath(filepath.Join(base, namespace, "credentials.json")), nil
}

// NewAtPath creates a store backed by an explicit file path.
func NewAtPath(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Token returns the stored bearer token, or "" when none is stored.
func (s *Store) Token() string { return s.load().Token }

// SetToken stores the bearer token.
func (s *Store) SetToken(token string) error {
	c := s.load()
	c.Token = token
	return s.save(c)
}

// ClearToken removes the stored bearer token.
func (s *Store) ClearToken() error {
	c := s.load()
	c.Token = ""
	return s.save(c)
}

// AccessCookie returns the stored access cookie, or nil when none is stored.
func (s *Store) AccessCookie() *Cookie { return s.load().AccessCookie }

// SetAccessCookie stores the access cookie.
func (s *Store) SetAccessCookie(cookie Cookie) error {
	c := s.load()
	c.AccessCookie = &cookie
	return s.save(c)
}

// ClearAccessCookie removes the stored access cookie.
func (s *Store) ClearAccessCookie() error {
	c := s.load()
	c.AccessCookie = nil
	return s.save(c)
}

// RefreshCookie returns the stored refresh cookie, or nil when none is stored.
func (s *Store) RefreshCookie() *Cookie { return s.load().RefreshCookie }

// SetRefreshCookie stores the refresh cookie.
func (s *Store) SetRefreshCookie(cookie Cookie) error {
	c := s.load()
	c.RefreshCookie = &cookie
	return s.save(c)
}

// ClearRefreshCookie removes the stored refresh cookie.
func (s *Store) ClearRefreshCookie() error {
	c := s.load()
	c.RefreshCookie = nil
	return s.save(c)
}

// load tolerates a missing or unreadable file: the caller sees empty
// credentials and the next save recreates the file.
func (s *Store) load() credentials {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return credentials{}
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return credentials{}
	}
	return f.Okapi
}

func (s *Store) save(c credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(fileFormat{Okapi: c}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
