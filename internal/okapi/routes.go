package okapi

import (
	"context"
	"fmt"
	"net/url"
)

// Routes is a catalog of named gateway REST operations built on Client.
// Authn, discovery, and proxy-module CRUD endpoints omit the okapi headers;
// everything else carries tenant and token.
type Routes struct {
	client *Client
}

// NewRoutes creates the route catalog.
func NewRoutes(client *Client) *Routes {
	return &Routes{client: client}
}

// Client exposes the underlying gateway client.
func (r *Routes) Client() *Client { return r.client }

// Login authenticates a user and returns the raw response so the caller can
// extract the issued credentials from its headers.
func (r *Routes) Login(ctx context.Context, username, password string) (*Response, error) {
	body := map[string]string{"username": username, "password": password}
	return r.client.Post(ctx, "/authn/login-with-expiry", body, WithoutToken())
}

// AddModuleDescriptor registers a module descriptor with the gateway.
func (r *Routes) AddModuleDescriptor(ctx context.Context, descriptor interface{}) (*Response, error) {
	return r.client.Post(ctx, "/_/proxy/modules", descriptor, WithoutAuth())
}

// RemoveModuleDescriptor deletes a module descriptor by id.
func (r *Routes) RemoveModuleDescriptor(ctx context.Context, id string) (*Response, error) {
	return r.client.Delete(ctx, "/_/proxy/modules/"+url.PathEscape(id), WithoutAuth())
}

// GetModuleDescriptor fetches one module descriptor.
func (r *Routes) GetModuleDescriptor(ctx context.Context, id string) (*Response, error) {
	return r.client.Get(ctx, "/_/proxy/modules/"+url.PathEscape(id), WithoutAuth())
}

// ListModuleDescriptors lists module descriptors, optionally narrowed by a
// required or provided interface.
func (r *Routes) ListModuleDescriptors(ctx context.Context, query url.Values) (*Response, error) {
	resource := "/_/proxy/modules"
	if len(query) > 0 {
		resource += "?" + query.Encode()
	}
	return r.client.Get(ctx, resource, WithoutAuth())
}

// EnableModuleForTenant associates a module with a tenant.
func (r *Routes) EnableModuleForTenant(ctx context.Context, tenant, id string) (*Response, error) {
	resource := fmt.Sprintf("/_/proxy/tenants/%s/modules", url.PathEscape(tenant))
	return r.client.Post(ctx, resource, map[string]string{"id": id})
}

// DisableModuleForTenant removes a module's tenant association.
func (r *Routes) DisableModuleForTenant(ctx context.Context, tenant, id string) (*Response, error) {
	resource := fmt.Sprintf("/_/proxy/tenants/%s/modules/%s", url.PathEscape(tenant), url.PathEscape(id))
	return r.client.Delete(ctx, resource)
}

// ListModulesForTenant lists the modules enabled for a tenant.
func (r *Routes) ListModulesForTenant(ctx context.Context, tenant string) (*Response, error) {
	resource := fmt.Sprintf("/_/proxy/tenants/%s/modules", url.PathEscape(tenant))
	return r.client.Get(ctx, resource)
}

// InstallOptions map to the install endpoint's query parameters.
type InstallOptions struct {
	Simulate   bool
	Deploy     bool
	PreRelease bool
}

// InstallModulesForTenant posts a bulk install payload of {id, action} records.
func (r *Routes) InstallModulesForTenant(ctx context.Context, tenant string, payload interface{}, opts InstallOptions) (*Response, error) {
	query := url.Values{}
	query.Set("simulate", fmt.Sprintf("%t", opts.Simulate))
	query.Set("deploy", fmt.Sprintf("%t", opts.Deploy))
	query.Set("preRelease", fmt.Sprintf("%t", opts.PreRelease))
	resource := fmt.Sprintf("/_/proxy/tenants/%s/install?%s", url.PathEscape(tenant), query.Encode())
	return r.client.Post(ctx, resource, payload)
}

// PullModuleDescriptors asks the gateway to pull descriptors from remote
// registries.
func (r *Routes) PullModuleDescriptors(ctx context.Context, urls []string) (*Response, error) {
	return r.client.Post(ctx, "/_/proxy/pull/modules", map[string][]string{"urls": urls})
}

// ListDiscoveryInstances lists deployed instances for one backend module.
func (r *Routes) ListDiscoveryInstances(ctx context.Context, serviceID string) (*Response, error) {
	return r.client.Get(ctx, "/_/discovery/modules/"+url.PathEscape(serviceID), WithoutAuth())
}

// AddDiscoveryInstance registers a deployment descriptor instance.
func (r *Routes) AddDiscoveryInstance(ctx context.Context, descriptor interface{}) (*Response, error) {
	return r.client.Post(ctx, "/_/discovery/modules", descriptor, WithoutAuth())
}

// RemoveDiscoveryInstances removes all instances of one backend module.
func (r *Routes) RemoveDiscoveryInstances(ctx context.Context, serviceID string) (*Response, error) {
	return r.client.Delete(ctx, "/_/discovery/modules/"+url.PathEscape(serviceID), WithoutAuth())
}

// AssignPermissionToUser grants one permission to a user id.
func (r *Routes) AssignPermissionToUser(ctx context.Context, userID, permissionName string) (*Response, error) {
	resource := fmt.Sprintf("/perms/users/%s/permissions?indexField=userId", url.PathEscape(userID))
	return r.client.Post(ctx, resource, map[string]string{"permissionName": permissionName})
}

// UnassignPermissionFromUser revokes one permission from a user id.
func (r *Routes) UnassignPermissionFromUser(ctx context.Context, userID, permissionName string) (*Response, error) {
	resource := fmt.Sprintf("/perms/users/%s/permissions/%s?indexField=userId",
		url.PathEscape(userID), url.PathEscape(permissionName))
	return r.client.Delete(ctx, resource)
}

// GetUserPermissions lists a user's permission names.
func (r *Routes) GetUserPermissions(ctx context.Context, userID string) (*Response, error) {
	resource := fmt.Sprintf("/perms/users/%s/permissions?indexField=userId", url.PathEscape(userID))
	return r.client.Get(ctx, resource)
}

// LookupUser finds a user record by username.
func (r *Routes) LookupUser(ctx context.Context, username string) (*Response, error) {
	query := url.Values{}
	query.Set("query", "username="+username)
	return r.client.Get(ctx, "/users?"+query.Encode())
}
