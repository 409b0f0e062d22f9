// Package permissions manages user permission assignment against the gateway
// and permission-set declarations in a local package file.
package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/folio-tools/stripesctl/internal/app/domain/module"
	"github.com/folio-tools/stripesctl/internal/app/services/modules"
	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/pkg/logger"
)

// Result is one permission operation outcome. Exactly one flag is set.
type Result struct {
	PermissionName   string `json:"permissionName"`
	Success          bool   `json:"success,omitempty"`
	AlreadyExists    bool   `json:"alreadyExists,omitempty"`
	AlreadySatisfied bool   `json:"alreadySatisfied,omitempty"`
}

// ModuleListing is the subset of the module service the tenant-wide
// reconciliation needs.
type ModuleListing interface {
	ListModulesForTenant(ctx context.Context, tenant string, opts modules.ListOptions) ([]string, error)
	ListModulePermissions(ctx context.Context, ids []string, expand bool) ([]string, error)
}

// Service performs permission administration.
type Service struct {
	routes *okapi.Routes
	log    *logger.Logger
}

// New constructs a permission service.
func New(routes *okapi.Routes, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("permissions")
	}
	return &Service{routes: routes, log: log}
}

// AddPermissionToPackage appends a permission set to the package file in dir.
// Returns false without writing when a permission with the same name already
// exists. A missing package file is an error, not an empty result.
func (s *Service) AddPermissionToPackage(dir string, perm module.PermissionSet) (bool, error) {
	path := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read package metadata: %w", err)
	}

	// Decode into generic maps so unrelated fields survive the round-trip.
	var pkg map[string]interface{}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, fmt.Errorf("parse package metadata: %w", err)
	}

	stripes, _ := pkg["stripes"].(map[string]interface{})
	if stripes == nil {
		stripes = map[string]interface{}{}
		pkg["stripes"] = stripes
	}
	sets, _ := stripes["permissionSets"].([]interface{})
	for _, raw := range sets {
		existing, _ := raw.(map[string]interface{})
		if existing != nil && existing["permissionName"] == perm.PermissionName {
			return false, nil
		}
	}

	encoded, err := json.Marshal(perm)
	if err != nil {
		return false, fmt.Errorf("encode permission: %w", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(encoded, &entry); err != nil {
		return false, fmt.Errorf("encode permission: %w", err)
	}
	stripes["permissionSets"] = append(sets, entry)

	out, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode package metadata: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return false, fmt.Errorf("write package metadata: %w", err)
	}
	return true, nil
}

// AssignPermissionToUserID grants one permission to a resolved user id;
// "already has permission" counts as idempotent success.
func (s *Service) AssignPermissionToUserID(ctx context.Context, permissionName, userID string) (Result, error) {
	if _, err := s.routes.AssignPermissionToUser(ctx, userID, permissionName); err != nil {
		if _, ok := okapi.Classify(okapi.OpAssignPermission, err); ok {
			return Result{PermissionName: permissionName, AlreadyExists: true}, nil
		}
		return Result{}, err
	}
	return Result{PermissionName: permissionName, Success: true}, nil
}

// UnassignPermissionFromUserID revokes one permission; revoking a permission
// the user does not hold counts as already satisfied.
func (s *Service) UnassignPermissionFromUserID(ctx context.Context, permissionName, userID string) (Result, error) {
	if _, err := s.routes.UnassignPermissionFromUser(ctx, userID, permissionName); err != nil {
		if _, ok := okapi.Classify(okapi.OpUnassignPermission, err); ok {
			return Result{PermissionName: permissionName, AlreadySatisfied: true}, nil
		}
		return Result{}, err
	}
	return Result{PermissionName: permissionName, Success: true}, nil
}

// AssignPermissionToUser resolves a username and grants one permission.
func (s *Service) AssignPermissionToUser(ctx context.Context, permissionName, username string) (Result, error) {
	userID, err := s.resolveUserID(ctx, username)
	if err != nil {
		return Result{}, err
	}
	return s.AssignPermissionToUserID(ctx, permissionName, userID)
}

// AssignPermissionsToUser grants each permission in order, one request at a
// time, results index-aligned with the input.
func (s *Service) AssignPermissionsToUser(ctx context.Context, permissionNames []string, username string) ([]Result, error) {
	userID, err := s.resolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(permissionNames))
	for _, name := range permissionNames {
		result, err := s.AssignPermissionToUserID(ctx, name, userID)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// UnassignPermissionsFromUser revokes each permission in order.
func (s *Service) UnassignPermissionsFromUser(ctx context.Context, permissionNames []string, username string) ([]Result, error) {
	userID, err := s.resolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(permissionNames))
	for _, name := range permissionNames {
		result, err := s.UnassignPermissionFromUserID(ctx, name, userID)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ListPermissionsForUser returns the permission names a user holds.
func (s *Service) ListPermissionsForUser(ctx context.Context, username string) ([]string, error) {
	userID, err := s.resolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	resp, err := s.routes.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	matches := gjson.GetBytes(resp.Body, "permissionNames").Array()
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.String())
	}
	return names, nil
}

// AssignAllTenantPermissionsToUser reconciles a user up to the full
// permission surface of a tenant's installed modules: fetch what the user
// holds, fetch what the tenant's modules declare, assign the difference, and
// return only the ids actually assigned now (a racing assign that comes back
// already-exists is filtered out).
func (s *Service) AssignAllTenantPermissionsToUser(ctx context.Context, tenant, username string, listing ModuleListing) ([]string, error) {
	held, err := s.ListPermissionsForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	moduleIDs, err := listing.ListModulesForTenant(ctx, tenant, modules.ListOptions{})
	if err != nil {
		return nil, err
	}
	declared, err := listing.ListModulePermissions(ctx, moduleIDs, false)
	if err != nil {
		return nil, err
	}

	heldSet := make(map[string]bool, len(held))
	for _, name := range held {
		heldSet[name] = true
	}
	var missing []string
	seen := make(map[string]bool)
	for _, name := range declared {
		if name == "" || heldSet[name] || seen[name] {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}

	results, err := s.AssignPermissionsToUser(ctx, missing, username)
	if err != nil {
		return nil, err
	}
	assigned := make([]string, 0, len(results))
	for _, result := range results {
		if result.Success {
			assigned = append(assigned, result.PermissionName)
		}
	}
	s.log.WithField("tenant", tenant).
		WithField("username", username).
		WithField("assigned", len(assigned)).
		Info("tenant permissions reconciled")
	return assigned, nil
}

// resolveUserID looks a username up and returns the matching user record id.
func (s *Service) resolveUserID(ctx context.Context, username string) (string, error) {
	resp, err := s.routes.LookupUser(ctx, username)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(resp.Body, "users.0.id").String()
	if id == "" {
		return "", fmt.Errorf("no user found with username %q", username)
	}
	return id, nil
}
