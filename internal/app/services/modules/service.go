// Package modules implements descriptor CRUD and tenant module sequencing
// against the gateway.
//
// Bulk operations are deliberately sequential: the gateway mutates per-tenant
// module state destructively on each step, so requests are never issued
// concurrently and result index i always corresponds to input index i.
package modules

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/folio-tools/stripesctl/internal/app/domain/module"
	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/pkg/logger"
)

// Service performs module administration against the gateway.
type Service struct {
	routes *okapi.Routes
	log    *logger.Logger
}

// New constructs a module service.
func New(routes *okapi.Routes, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("modules")
	}
	return &Service{routes: routes, log: log}
}

// AddModuleDescriptor registers one descriptor. A gateway "exists already"
// response counts as idempotent success, not failure.
func (s *Service) AddModuleDescriptor(ctx context.Context, descriptor module.Descriptor) (module.InstallResult, error) {
	if _, err := s.routes.AddModuleDescriptor(ctx, descriptor); err != nil {
		if _, ok := okapi.Classify(okapi.OpAddModuleDescriptor, err); ok {
			return module.InstallResult{ID: descriptor.ID, AlreadyExists: true}, nil
		}
		return module.InstallResult{}, err
	}
	s.log.WithField("id", descriptor.ID).Info("module descriptor added")
	return module.InstallResult{ID: descriptor.ID, Success: true}, nil
}

// RemoveModuleDescriptor removes one descriptor. Removing a descriptor the
// gateway does not know yields DoesNotExist rather than an error.
func (s *Service) RemoveModuleDescriptor(ctx context.Context, descriptor module.Descriptor) (module.InstallResult, error) {
	if _, err := s.routes.RemoveModuleDescriptor(ctx, descriptor.ID); err != nil {
		if _, ok := okapi.Classify(okapi.OpRemoveModuleDescriptor, err); ok {
			return module.InstallResult{ID: descriptor.ID, DoesNotExist: true}, nil
		}
		return module.InstallResult{}, err
	}
	s.log.WithField("id", descriptor.ID).Info("module descriptor removed")
	return module.InstallResult{ID: descriptor.ID, Success: true}, nil
}

// EnableModuleForTenant associates one module with a tenant; "already
// provided" counts as idempotent success.
func (s *Service) EnableModuleForTenant(ctx context.Context, id, tenant string) (module.InstallResult, error) {
	if _, err := s.routes.EnableModuleForTenant(ctx, tenant, id); err != nil {
		if _, ok := okapi.Classify(okapi.OpEnableModuleForTenant, err); ok {
			return module.InstallResult{ID: id, AlreadyExists: true}, nil
		}
		return module.InstallResult{}, err
	}
	return module.InstallResult{ID: id, Success: true}, nil
}

// DisableModuleForTenant removes one module's tenant association. Unlike
// enable there is no already-disabled tolerance here: the gateway answers a
// repeat disable with success itself, and any error it does report propagates.
func (s *Service) DisableModuleForTenant(ctx context.Context, id, tenant string) (module.InstallResult, error) {
	if _, err := s.routes.DisableModuleForTenant(ctx, tenant, id); err != nil {
		return module.InstallResult{}, err
	}
	return module.InstallResult{ID: id, Success: true}, nil
}

// EnableModulesForTenant enables each id in order, one request at a time.
func (s *Service) EnableModulesForTenant(ctx context.Context, ids []string, tenant string) ([]module.InstallResult, error) {
	results := make([]module.InstallResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.EnableModuleForTenant(ctx, id, tenant)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// DisableModulesForTenant disables each id in order, one request at a time.
func (s *Service) DisableModulesForTenant(ctx context.Context, ids []string, tenant string) ([]module.InstallResult, error) {
	results := make([]module.InstallResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.DisableModuleForTenant(ctx, id, tenant)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// usedByTenantRE extracts the tenant id from the gateway's refusal to delete
// an in-use descriptor ("... is used by tenant diku").
var usedByTenantRE = regexp.MustCompile(`is used by tenant ([^\s:,]+)`)

func usedByTenant(err error) (string, bool) {
	var gw *okapi.Error
	if !errors.As(err, &gw) {
		return "", false
	}
	m := usedByTenantRE.FindStringSubmatch(gw.Message)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// UpdateModuleDescriptor replaces a descriptor by remove-then-add. When the
// gateway refuses the remove because a tenant still uses the module, the
// module is disabled for that tenant, removed, re-added, and re-enabled, in
// that order; the call succeeds only after re-association completes.
func (s *Service) UpdateModuleDescriptor(ctx context.Context, descriptor module.Descriptor) (module.InstallResult, error) {
	var tenant string
	if _, err := s.routes.RemoveModuleDescriptor(ctx, descriptor.ID); err != nil {
		t, ok := usedByTenant(err)
		if !ok {
			return module.InstallResult{}, err
		}
		tenant = t
		s.log.WithField("id", descriptor.ID).
			WithField("tenant", tenant).
			Info("descriptor in use, disabling for update")
		if _, err := s.DisableModuleForTenant(ctx, descriptor.ID, tenant); err != nil {
			return module.InstallResult{}, err
		}
		if _, err := s.routes.RemoveModuleDescriptor(ctx, descriptor.ID); err != nil {
			return module.InstallResult{}, err
		}
	}
	if _, err := s.routes.AddModuleDescriptor(ctx, descriptor); err != nil {
		return module.InstallResult{}, err
	}
	if tenant != "" {
		if _, err := s.EnableModuleForTenant(ctx, descriptor.ID, tenant); err != nil {
			return module.InstallResult{}, err
		}
	}
	return module.InstallResult{ID: descriptor.ID, Success: true}, nil
}

// InstallOptions control a bulk install call.
type InstallOptions struct {
	Simulate   bool
	Deploy     bool
	PreRelease bool
	// DefaultAction fills requests without an explicit action; enable when
	// empty. Explicit actions are never overwritten.
	DefaultAction module.Action
}

// InstallModulesForTenant posts a normalized bulk install payload and returns
// the gateway's per-module action results.
func (s *Service) InstallModulesForTenant(ctx context.Context, requests []module.InstallRequest, tenant string, opts InstallOptions) ([]module.InstallResult, error) {
	action := opts.DefaultAction
	if action == "" {
		action = module.ActionEnable
	}
	payload := module.NormalizeInstallRequests(requests, action)

	resp, err := s.routes.InstallModulesForTenant(ctx, tenant, payload, okapi.InstallOptions{
		Simulate:   opts.Simulate,
		Deploy:     opts.Deploy,
		PreRelease: opts.PreRelease,
	})
	if err != nil {
		return nil, err
	}

	var results []module.InstallResult
	if err := resp.JSON(&results); err != nil {
		return nil, fmt.Errorf("decode install response: %w", err)
	}
	return results, nil
}

// SimulateInstallModulesForTenant dry-runs an install: the gateway computes
// the action for each module without applying anything.
func (s *Service) SimulateInstallModulesForTenant(ctx context.Context, requests []module.InstallRequest, tenant string, opts InstallOptions) ([]module.InstallResult, error) {
	opts.Simulate = true
	opts.Deploy = false
	return s.InstallModulesForTenant(ctx, requests, tenant, opts)
}

// DeployBackendModulesForTenantWithActions reissues a simulation's backend
// subset as a real deploying install.
func (s *Service) DeployBackendModulesForTenantWithActions(ctx context.Context, simulated []module.InstallResult, tenant string, opts InstallOptions) ([]module.InstallResult, error) {
	backend := module.FilterBackendRequests(module.RequestsFromResults(simulated))
	opts.Simulate = false
	opts.Deploy = true
	return s.InstallModulesForTenant(ctx, backend, tenant, opts)
}

// InstallFrontendModulesForTenantWithActions reissues a simulation's
// front-end subset as a real non-deploying install.
func (s *Service) InstallFrontendModulesForTenantWithActions(ctx context.Context, simulated []module.InstallResult, tenant string, opts InstallOptions) ([]module.InstallResult, error) {
	frontend := module.FilterFrontendRequests(module.RequestsFromResults(simulated))
	opts.Simulate = false
	opts.Deploy = false
	return s.InstallModulesForTenant(ctx, frontend, tenant, opts)
}

// PullModuleDescriptorsFromRemote asks the gateway to pull descriptors from a
// remote registry and returns the pulled descriptor ids.
func (s *Service) PullModuleDescriptorsFromRemote(ctx context.Context, remoteURL string) ([]string, error) {
	resp, err := s.routes.PullModuleDescriptors(ctx, []string{remoteURL})
	if err != nil {
		return nil, err
	}
	return idsFromBody(resp.Body), nil
}

// ListOptions narrow a module listing by interface dependency.
type ListOptions struct {
	RequireInterface string
	ProvideInterface string
}

func (o ListOptions) empty() bool {
	return o.RequireInterface == "" && o.ProvideInterface == ""
}

// ListModules lists all registered descriptor ids, optionally narrowed to
// modules requiring or providing an interface.
func (s *Service) ListModules(ctx context.Context, opts ListOptions) ([]string, error) {
	query := url.Values{}
	if opts.RequireInterface != "" {
		query.Set("require", opts.RequireInterface)
	}
	if opts.ProvideInterface != "" {
		query.Set("provide", opts.ProvideInterface)
	}
	resp, err := s.routes.ListModuleDescriptors(ctx, query)
	if err != nil {
		return nil, err
	}
	return idsFromBody(resp.Body), nil
}

// ListModulesForTenant lists the ids enabled for a tenant. The tenant
// endpoint cannot filter by interface, so a filtered listing intersects the
// tenant's ids with a separately fetched filtered global list instead of
// trusting the tenant-scoped endpoint alone.
func (s *Service) ListModulesForTenant(ctx context.Context, tenant string, opts ListOptions) ([]string, error) {
	resp, err := s.routes.ListModulesForTenant(ctx, tenant)
	if err != nil {
		return nil, err
	}
	tenantIDs := idsFromBody(resp.Body)
	if opts.empty() {
		return tenantIDs, nil
	}

	global, err := s.ListModules(ctx, opts)
	if err != nil {
		return nil, err
	}
	matching := make(map[string]bool, len(global))
	for _, id := range global {
		matching[id] = true
	}
	out := make([]string, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		if matching[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// ListModulePermissions fetches each module's descriptor and flattens its
// declared permission set names, optionally expanded with sub-permissions.
func (s *Service) ListModulePermissions(ctx context.Context, ids []string, expand bool) ([]string, error) {
	var perms []string
	for _, id := range ids {
		resp, err := s.routes.GetModuleDescriptor(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, ps := range gjson.GetBytes(resp.Body, "permissionSets").Array() {
			perms = append(perms, ps.Get("permissionName").String())
			if expand {
				for _, sub := range ps.Get("subPermissions").Array() {
					perms = append(perms, sub.String())
				}
			}
		}
	}
	return perms, nil
}

// idsFromBody extracts the id field from a JSON array of descriptor stubs.
func idsFromBody(body []byte) []string {
	matches := gjson.GetBytes(body, "#.id").Array()
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.String())
	}
	return ids
}
