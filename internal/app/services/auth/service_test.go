package auth

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/internal/okapitest"
	"github.com/folio-tools/stripesctl/internal/tokenstore"
)

func newService(t *testing.T, g *okapitest.Gateway) (*Service, *tokenstore.Store) {
	t.Helper()
	store := tokenstore.NewAtPath(filepath.Join(t.TempDir(), "credentials.json"))
	client := okapi.NewClient(okapi.ClientConfig{
		BaseURL: g.URL(),
		Tenant:  "diku",
		Store:   store,
	})
	return New(okapi.NewRoutes(client), store, nil), store
}

func TestLogin_StoresCookiePair(t *testing.T) {
	g := okapitest.New(t)
	svc, store := newService(t, g)

	if err := svc.Login(context.Background(), "diku_admin", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	access := store.AccessCookie()
	if access == nil || access.Value != "access-diku_admin" {
		t.Errorf("access cookie = %v, want access-diku_admin", access)
	}
	if access != nil && access.Expires == "" {
		t.Error("access cookie has no recorded expiry")
	}
	refresh := store.RefreshCookie()
	if refresh == nil || refresh.Value != "refresh-diku_admin" {
		t.Errorf("refresh cookie = %v, want refresh-diku_admin", refresh)
	}
}

func TestLogin_FailureClearsPriorCredentials(t *testing.T) {
	g := okapitest.New(t)
	svc, store := newService(t, g)

	if err := store.SetToken("stale-token"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAccessCookie(tokenstore.Cookie{Name: okapi.AccessTokenCookie, Value: "stale"}); err != nil {
		t.Fatal(err)
	}

	// empty username makes the fake gateway reject the login
	if err := svc.Login(context.Background(), "", "secret"); err == nil {
		t.Fatal("Login() error = nil, want rejection")
	}

	if got := store.Token(); got != "" {
		t.Errorf("Token() after failed login = %q, want empty", got)
	}
	if got := store.AccessCookie(); got != nil {
		t.Errorf("AccessCookie() after failed login = %v, want nil", got)
	}
}

func TestSaveTokens_PlainTokenHeader(t *testing.T) {
	g := okapitest.New(t)
	svc, store := newService(t, g)

	header := http.Header{}
	header.Set(okapi.TokenHeader, "legacy-token")
	if err := svc.SaveTokens(&okapi.Response{Header: header}); err != nil {
		t.Fatalf("SaveTokens() error = %v", err)
	}

	if got := store.Token(); got != "legacy-token" {
		t.Errorf("Token() = %q, want legacy-token", got)
	}
	if got := store.AccessCookie(); got != nil {
		t.Errorf("AccessCookie() = %v, want nil when only the header is present", got)
	}
}

func TestLogout_ClearsEverythingWithoutNetwork(t *testing.T) {
	g := okapitest.New(t)
	svc, store := newService(t, g)

	if err := svc.Login(context.Background(), "diku_admin", "secret"); err != nil {
		t.Fatal(err)
	}
	before := len(g.RequestLog())

	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if got := store.AccessCookie(); got != nil {
		t.Errorf("AccessCookie() after logout = %v, want nil", got)
	}
	if got := store.RefreshCookie(); got != nil {
		t.Errorf("RefreshCookie() after logout = %v, want nil", got)
	}
	if got := store.Token(); got != "" {
		t.Errorf("Token() after logout = %q, want empty", got)
	}
	if after := len(g.RequestLog()); after != before {
		t.Errorf("logout made %d network calls, want 0", after-before)
	}
}

func TestTokenClaims(t *testing.T) {
	g := okapitest.New(t)
	svc, store := newService(t, g)

	if _, err := svc.TokenClaims(); err == nil {
		t.Error("TokenClaims() error = nil, want not-logged-in error")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "diku_admin",
		"user_id":   "user-1",
		"tenant":    "diku",
		"exp":       time.Now().Add(10 * time.Minute).Unix(),
		"iss":       "mod-authtoken",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	// claims decode from the access cookie when no plain token is stored
	if err := store.SetAccessCookie(tokenstore.Cookie{Name: okapi.AccessTokenCookie, Value: signed}); err != nil {
		t.Fatal(err)
	}

	claims, err := svc.TokenClaims()
	if err != nil {
		t.Fatalf("TokenClaims() error = %v", err)
	}
	if claims["sub"] != "diku_admin" {
		t.Errorf("sub = %v, want diku_admin", claims["sub"])
	}
	if claims["tenant"] != "diku" {
		t.Errorf("tenant = %v, want diku", claims["tenant"])
	}
}
