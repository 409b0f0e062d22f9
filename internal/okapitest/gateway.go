// Package okapitest provides an in-process fake Okapi gateway for service
// tests. It mimics the administrative endpoints' shapes and, importantly,
// the prose error messages the services classify by substring.
package okapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
)

// Gateway is a stateful fake gateway. Fields may be seeded directly before
// the first request; afterwards access them only via Snapshot helpers or
// after the server is closed.
type Gateway struct {
	mu sync.Mutex

	Descriptors   map[string]json.RawMessage // descriptor id -> full descriptor
	TenantModules map[string][]string        // tenant -> enabled ids, in enable order
	UserPerms     map[string][]string        // user id -> held permission names
	Users         map[string]string          // username -> user id
	Instances     map[string][]json.RawMessage

	// Requests records "METHOD path" in arrival order.
	Requests []string

	// MaxInflight is the highest number of concurrently handled requests
	// observed; sequential callers keep it at 1.
	MaxInflight int
	inflight    int

	// OnRequest, when set, runs before each request is handled. Tests use
	// it to slow selected calls down and prove sequential execution.
	OnRequest func(method, path string)

	// RequireDescriptors makes tenant enablement reject ids without a
	// registered descriptor, like a gateway with dependency checking on.
	RequireDescriptors bool

	server *httptest.Server
}

// New starts a fake gateway that shuts down with the test.
func New(t *testing.T) *Gateway {
	t.Helper()

	g := &Gateway{
		Descriptors:   make(map[string]json.RawMessage),
		TenantModules: make(map[string][]string),
		UserPerms:     make(map[string][]string),
		Users:         make(map[string]string),
		Instances:     make(map[string][]json.RawMessage),
	}

	r := mux.NewRouter()
	r.Use(g.record)

	r.HandleFunc("/authn/login-with-expiry", g.login).Methods(http.MethodPost)
	r.HandleFunc("/_/proxy/modules", g.addDescriptor).Methods(http.MethodPost)
	r.HandleFunc("/_/proxy/modules", g.listDescriptors).Methods(http.MethodGet)
	r.HandleFunc("/_/proxy/modules/{id}", g.getDescriptor).Methods(http.MethodGet)
	r.HandleFunc("/_/proxy/modules/{id}", g.removeDescriptor).Methods(http.MethodDelete)
	r.HandleFunc("/_/proxy/tenants/{tenant}/modules", g.enableModule).Methods(http.MethodPost)
	r.HandleFunc("/_/proxy/tenants/{tenant}/modules", g.listTenantModules).Methods(http.MethodGet)
	r.HandleFunc("/_/proxy/tenants/{tenant}/modules/{id}", g.disableModule).Methods(http.MethodDelete)
	r.HandleFunc("/_/proxy/tenants/{tenant}/install", g.install).Methods(http.MethodPost)
	r.HandleFunc("/_/proxy/pull/modules", g.pull).Methods(http.MethodPost)
	r.HandleFunc("/_/discovery/modules", g.addInstance).Methods(http.MethodPost)
	r.HandleFunc("/_/discovery/modules/{id}", g.listInstances).Methods(http.MethodGet)
	r.HandleFunc("/_/discovery/modules/{id}", g.removeInstances).Methods(http.MethodDelete)
	r.HandleFunc("/perms/users/{id}/permissions", g.assignPermission).Methods(http.MethodPost)
	r.HandleFunc("/perms/users/{id}/permissions", g.listPermissions).Methods(http.MethodGet)
	r.HandleFunc("/perms/users/{id}/permissions/{name}", g.unassignPermission).Methods(http.MethodDelete)
	r.HandleFunc("/users", g.lookupUser).Methods(http.MethodGet)

	g.server = httptest.NewServer(r)
	t.Cleanup(g.server.Close)
	return g
}

// URL is the fake gateway's base URL.
func (g *Gateway) URL() string { return g.server.URL }

// EnabledFor returns a copy of a tenant's enabled module ids.
func (g *Gateway) EnabledFor(tenant string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.TenantModules[tenant]...)
}

// RequestLog returns a copy of the recorded "METHOD path" entries.
func (g *Gateway) RequestLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Requests...)
}

func (g *Gateway) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.OnRequest != nil {
			g.OnRequest(r.Method, r.URL.Path)
		}
		entry := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		g.mu.Lock()
		g.Requests = append(g.Requests, entry)
		g.inflight++
		if g.inflight > g.MaxInflight {
			g.MaxInflight = g.inflight
		}
		g.mu.Unlock()

		next.ServeHTTP(w, r)

		g.mu.Lock()
		g.inflight--
		g.mu.Unlock()
	})
}

func (g *Gateway) fail(w http.ResponseWriter, status int, format string, args ...interface{}) {
	w.WriteHeader(status)
	fmt.Fprintf(w, format, args...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// ---- authn ----

func (g *Gateway) login(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	if gjson.GetBytes(body, "username").String() == "" {
		g.fail(w, http.StatusBadRequest, "username is required")
		return
	}
	now := time.Now().UTC()
	http.SetCookie(w, &http.Cookie{
		Name:    "folioAccessToken",
		Value:   "access-" + gjson.GetBytes(body, "username").String(),
		Expires: now.Add(10 * time.Minute),
		Path:    "/",
	})
	http.SetCookie(w, &http.Cookie{
		Name:    "folioRefreshToken",
		Value:   "refresh-" + gjson.GetBytes(body, "username").String(),
		Expires: now.Add(7 * 24 * time.Hour),
		Path:    "/authn",
	})
	w.WriteHeader(http.StatusCreated)
}

// ---- proxy module CRUD ----

func (g *Gateway) addDescriptor(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		g.fail(w, http.StatusBadRequest, "unreadable body")
		return
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		g.fail(w, http.StatusBadRequest, "descriptor id is required")
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.Descriptors[id]; ok {
		g.fail(w, http.StatusBadRequest, "module %s exists already", id)
		return
	}
	g.Descriptors[id] = json.RawMessage(body)
	w.WriteHeader(http.StatusCreated)
}

func (g *Gateway) removeDescriptor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	g.mu.Lock()
	defer g.mu.Unlock()
	for tenant, ids := range g.TenantModules {
		for _, enabled := range ids {
			if enabled == id {
				g.fail(w, http.StatusBadRequest, "delete: module %s is used by tenant %s", id, tenant)
				return
			}
		}
	}
	if _, ok := g.Descriptors[id]; !ok {
		g.fail(w, http.StatusNotFound, "module does not exist")
		return
	}
	delete(g.Descriptors, id)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) getDescriptor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	g.mu.Lock()
	desc, ok := g.Descriptors[id]
	g.mu.Unlock()
	if !ok {
		g.fail(w, http.StatusNotFound, "module %s not found", id)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(desc)
}

func (g *Gateway) listDescriptors(w http.ResponseWriter, r *http.Request) {
	require := r.URL.Query().Get("require")
	provide := r.URL.Query().Get("provide")
	g.mu.Lock()
	defer g.mu.Unlock()
	stubs := []map[string]string{}
	for id, desc := range g.Descriptors {
		if require != "" && !interfaceListed(desc, "requires", require) {
			continue
		}
		if provide != "" && !interfaceListed(desc, "provides", provide) {
			continue
		}
		stubs = append(stubs, map[string]string{"id": id})
	}
	writeJSON(w, stubs)
}

func interfaceListed(desc json.RawMessage, field, wanted string) bool {
	for _, ref := range gjson.GetBytes(desc, field).Array() {
		if ref.Get("id").String() == wanted {
			return true
		}
	}
	return false
}

// ---- tenant association ----

func (g *Gateway) enableModule(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]
	body, _ := readBody(r)
	id := gjson.GetBytes(body, "id").String()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RequireDescriptors {
		if _, ok := g.Descriptors[id]; !ok {
			g.fail(w, http.StatusNotFound, "module %s not found", id)
			return
		}
	}
	for _, enabled := range g.TenantModules[tenant] {
		if enabled == id {
			g.fail(w, http.StatusBadRequest, "module %s already provided", id)
			return
		}
	}
	g.TenantModules[tenant] = append(g.TenantModules[tenant], id)
	writeJSON(w, map[string]string{"id": id})
}

// disableModule is idempotent the way Okapi is: disassociating a module the
// tenant does not have still answers 204.
func (g *Gateway) disableModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenant, id := vars["tenant"], vars["id"]
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := g.TenantModules[tenant]
	for i, enabled := range ids {
		if enabled == id {
			g.TenantModules[tenant] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) listTenantModules(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]
	g.mu.Lock()
	defer g.mu.Unlock()
	stubs := []map[string]string{}
	for _, id := range g.TenantModules[tenant] {
		stubs = append(stubs, map[string]string{"id": id})
	}
	writeJSON(w, stubs)
}

func (g *Gateway) install(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	var results []map[string]interface{}
	for _, entry := range gjson.ParseBytes(body).Array() {
		results = append(results, map[string]interface{}{
			"id":     entry.Get("id").String(),
			"action": entry.Get("action").String(),
		})
	}
	writeJSON(w, results)
}

func (g *Gateway) pull(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stubs := []map[string]string{}
	for id := range g.Descriptors {
		stubs = append(stubs, map[string]string{"id": id})
	}
	writeJSON(w, stubs)
}

// ---- discovery ----

func (g *Gateway) addInstance(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	srvcID := gjson.GetBytes(body, "srvcId").String()
	g.mu.Lock()
	g.Instances[srvcID] = append(g.Instances[srvcID], json.RawMessage(body))
	g.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (g *Gateway) listInstances(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	g.mu.Lock()
	instances, ok := g.Instances[id]
	g.mu.Unlock()
	if !ok {
		g.fail(w, http.StatusNotFound, "module %s not found", id)
		return
	}
	writeJSON(w, instances)
}

func (g *Gateway) removeInstances(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.Instances[id]; !ok {
		g.fail(w, http.StatusNotFound, "module %s not found", id)
		return
	}
	delete(g.Instances, id)
	w.WriteHeader(http.StatusNoContent)
}

// ---- permissions & users ----

func (g *Gateway) assignPermission(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	body, _ := readBody(r)
	name := gjson.GetBytes(body, "permissionName").String()
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, held := range g.UserPerms[userID] {
		if held == name {
			g.fail(w, http.StatusUnprocessableEntity, "user %s already has permission %s", userID, name)
			return
		}
	}
	g.UserPerms[userID] = append(g.UserPerms[userID], name)
	writeJSON(w, map[string]string{"permissionName": name})
}

func (g *Gateway) unassignPermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, name := vars["id"], vars["name"]
	g.mu.Lock()
	defer g.mu.Unlock()
	held := g.UserPerms[userID]
	for i, p := range held {
		if p == name {
			g.UserPerms[userID] = append(held[:i:i], held[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	g.fail(w, http.StatusNotFound, "user %s does not contain %s", userID, name)
}

func (g *Gateway) listPermissions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	g.mu.Lock()
	names := append([]string{}, g.UserPerms[userID]...)
	g.mu.Unlock()
	writeJSON(w, map[string]interface{}{
		"permissionNames": names,
		"totalRecords":    len(names),
	})
}

func (g *Gateway) lookupUser(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	username := ""
	if n := len("username="); len(query) > n && query[:n] == "username=" {
		username = query[n:]
	}
	g.mu.Lock()
	id, ok := g.Users[username]
	g.mu.Unlock()
	users := []map[string]string{}
	if ok {
		users = append(users, map[string]string{"id": id, "username": username})
	}
	writeJSON(w, map[string]interface{}{
		"users":        users,
		"totalRecords": len(users),
	})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
