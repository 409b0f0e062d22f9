package okapitest

import (
	"path/filepath"
	"testing"

	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/internal/tokenstore"
)

// NewRoutes wires a route catalog against the fake gateway with a throwaway
// credential store.
func NewRoutes(t *testing.T, g *Gateway, tenant string) *okapi.Routes {
	t.Helper()
	store := tokenstore.NewAtPath(filepath.Join(t.TempDir(), "credentials.json"))
	client := okapi.NewClient(okapi.ClientConfig{
		BaseURL: g.URL(),
		Tenant:  tenant,
		Store:   store,
	})
	return okapi.NewRoutes(client)
}
