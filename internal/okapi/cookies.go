package okapi

import (
	"net/http"
	"time"

	"github.com/folio-tools/stripesctl/internal/tokenstore"
)

// Cookie names issued by the gateway's login-with-expiry endpoint.
const (
	AccessTokenCookie  = "folioAccessToken"
	RefreshTokenCookie = "folioRefreshToken"
)

// TokenHeader is the response header carrying a plain bearer token. Older
// gateways issue this instead of (or alongside) the cookie pair.
const TokenHeader = "X-Okapi-Token"

// cookieRecord converts an HTTP cookie into its stored form.
func cookieRecord(c *http.Cookie) tokenstore.Cookie {
	rec := tokenstore.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Path:   c.Path,
		Secure: c.Secure,
	}
	if !c.Expires.IsZero() {
		rec.Expires = c.Expires.UTC().Format(time.RFC3339)
	}
	return rec
}

// StoreCookiesFromHeader parses set-cookie headers (single value or many) and
// persists the access and refresh cookies under their store keys. Cookies
// with other names are ignored. Both the login flow and the client's refresh
// exchange funnel through here.
func StoreCookiesFromHeader(store *tokenstore.Store, header http.Header) error {
	resp := http.Response{Header: header}
	for _, c := range resp.Cookies() {
		switch c.Name {
		case AccessTokenCookie:
			if err := store.SetAccessCookie(cookieRecord(c)); err != nil {
				return err
			}
		case RefreshTokenCookie:
			if err := store.SetRefreshCookie(cookieRecord(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

// cookieExpired reports whether a stored cookie's expiry timestamp is in the
// past. A missing or unparseable timestamp counts as unexpired: the gateway
// is the authority and will reject a stale credential anyway.
func cookieExpired(c *tokenstore.Cookie, now time.Time) bool {
	if c == nil || c.Expires == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, c.Expires)
	if err != nil {
		return false
	}
	return !t.After(now)
}
