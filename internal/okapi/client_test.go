package okapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/folio-tools/stripesctl/internal/tokenstore"
)

func testStore(t *testing.T) *tokenstore.Store {
	t.Helper()
	return tokenstore.NewAtPath(filepath.Join(t.TempDir(), "credentials.json"))
}

func testClient(t *testing.T, baseURL string, store *tokenstore.Store) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		BaseURL: baseURL,
		Tenant:  "diku",
		Store:   store,
	})
}

func TestClient_HeaderAssembly(t *testing.T) {
	var got http.Header
	var gotCookies []*http.Cookie
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotCookies = r.Cookies()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	if err := store.SetToken("tok-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAccessCookie(tokenstore.Cookie{Name: AccessTokenCookie, Value: "ac-1"}); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, srv.URL, store)
	if _, err := c.Get(context.Background(), "/x"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if v := got.Get(TokenHeader); v != "tok-1" {
		t.Errorf("%s = %q, want tok-1", TokenHeader, v)
	}
	if v := got.Get("X-Okapi-Tenant"); v != "diku" {
		t.Errorf("X-Okapi-Tenant = %q, want diku", v)
	}
	if v := got.Get("Content-Type"); v != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", v)
	}
	if len(gotCookies) != 1 || gotCookies[0].Name != AccessTokenCookie || gotCookies[0].Value != "ac-1" {
		t.Errorf("cookies = %v, want single %s=ac-1", gotCookies, AccessTokenCookie)
	}
}

func TestClient_WithoutAuthOmitsHeaders(t *testing.T) {
	var got http.Header
	var cookieCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		cookieCount = len(r.Cookies())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	if err := store.SetToken("tok-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAccessCookie(tokenstore.Cookie{Name: AccessTokenCookie, Value: "ac-1"}); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, srv.URL, store)
	if _, err := c.Get(context.Background(), "/x", WithoutAuth()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if v := got.Get(TokenHeader); v != "" {
		t.Errorf("%s = %q, want empty with WithoutAuth", TokenHeader, v)
	}
	if v := got.Get("X-Okapi-Tenant"); v != "" {
		t.Errorf("X-Okapi-Tenant = %q, want empty with WithoutAuth", v)
	}
	if cookieCount != 0 {
		t.Errorf("cookie count = %d, want 0 with WithoutAuth", cookieCount)
	}
}

func TestClient_WithoutTenantKeepsToken(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	if err := store.SetToken("tok-1"); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, srv.URL, store)
	if _, err := c.Get(context.Background(), "/x", WithoutTenant()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if v := got.Get(TokenHeader); v != "tok-1" {
		t.Errorf("%s = %q, want tok-1", TokenHeader, v)
	}
	if v := got.Get("X-Okapi-Tenant"); v != "" {
		t.Errorf("X-Okapi-Tenant = %q, want empty with WithoutTenant", v)
	}
}

func TestClient_ErrorNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("module mod-users-1.0.0 exists already\n"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, testStore(t))
	_, err := c.Post(context.Background(), "/x", map[string]string{"id": "mod-users-1.0.0"})
	if err == nil {
		t.Fatal("Post() error = nil, want *Error")
	}

	var gw *Error
	if !errors.As(err, &gw) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if gw.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", gw.StatusCode)
	}
	if gw.Message != "module mod-users-1.0.0 exists already" {
		t.Errorf("Message = %q, want trimmed body text", gw.Message)
	}
	if !gw.IsClientError() || gw.IsServerError() {
		t.Errorf("IsClientError/IsServerError = %v/%v, want true/false", gw.IsClientError(), gw.IsServerError())
	}
}

func TestClient_ResolveAbsoluteURLRebased(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, testStore(t))
	// an absolute URL pointing at some other host is rebased onto the gateway
	if _, err := c.Get(context.Background(), "http://elsewhere:9999/_/proxy/modules?full=true"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotPath != "/_/proxy/modules?full=true" {
		t.Errorf("request path = %q, want /_/proxy/modules?full=true", gotPath)
	}
}

func TestClient_RefreshExchange(t *testing.T) {
	var refreshCalls, primaryCalls int
	var primaryCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/authn/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		if c, err := r.Cookie(RefreshTokenCookie); err != nil || c.Value != "rt-old" {
			t.Errorf("refresh cookie = %v, %v, want rt-old", c, err)
		}
		http.SetCookie(w, &http.Cookie{Name: AccessTokenCookie, Value: "ac-new", Expires: time.Now().Add(10 * time.Minute)})
		http.SetCookie(w, &http.Cookie{Name: RefreshTokenCookie, Value: "rt-new", Expires: time.Now().Add(7 * 24 * time.Hour)})
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		primaryCalls++
		if c, err := r.Cookie(AccessTokenCookie); err == nil {
			primaryCookie = c.Value
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := testStore(t)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	if err := store.SetAccessCookie(tokenstore.Cookie{Name: AccessTokenCookie, Value: "ac-old", Expires: past}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetRefreshCookie(tokenstore.Cookie{Name: RefreshTokenCookie, Value: "rt-old", Expires: future}); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, srv.URL, store)
	if _, err := c.Get(context.Background(), "/x"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if primaryCalls != 1 {
		t.Errorf("primary calls = %d, want 1", primaryCalls)
	}
	if primaryCookie != "ac-new" {
		t.Errorf("primary request cookie = %q, want refreshed ac-new", primaryCookie)
	}
	if got := store.AccessCookie(); got == nil || got.Value != "ac-new" {
		t.Errorf("stored access cookie = %v, want ac-new", got)
	}
	if got := store.RefreshCookie(); got == nil || got.Value != "rt-new" {
		t.Errorf("stored refresh cookie = %v, want rt-new", got)
	}
}

func TestClient_RefreshExpiredFailsBeforeRequest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	accessPast := "2026-01-01T00:00:00Z"
	refreshPast := "2026-01-02T00:00:00Z"
	if err := store.SetAccessCookie(tokenstore.Cookie{Name: AccessTokenCookie, Value: "ac", Expires: accessPast}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetRefreshCookie(tokenstore.Cookie{Name: RefreshTokenCookie, Value: "rt", Expires: refreshPast}); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, srv.URL, store)
	c.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	_, err := c.Get(context.Background(), "/x")
	if err == nil {
		t.Fatal("Get() error = nil, want refresh expiry error")
	}
	var gw *Error
	if errors.As(err, &gw) {
		t.Errorf("error type = *Error, want plain error for an expired session")
	}
	if want := "refresh token expired at " + refreshPast; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err, want)
	}
	if calls != 0 {
		t.Errorf("server calls = %d, want 0 when the session is unrecoverable", calls)
	}
}

func TestClient_NoCookiesNoError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if len(r.Cookies()) != 0 {
			t.Errorf("cookies = %v, want none", r.Cookies())
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, testStore(t))
	if _, err := c.Get(context.Background(), "/x"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("server calls = %d, want 1", calls)
	}
}
