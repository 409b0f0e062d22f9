// Package descriptor computes gateway module descriptors from package
// metadata.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/folio-tools/stripesctl/internal/app/domain/module"
)

// StripesMetadata is the stripes section of a front-end package file.
type StripesMetadata struct {
	Type                    string                 `json:"type,omitempty"`
	DisplayName             string                 `json:"displayName,omitempty"`
	PermissionSets          []module.PermissionSet `json:"permissionSets,omitempty"`
	OkapiInterfaces         map[string]string      `json:"okapiInterfaces,omitempty"`
	OptionalOkapiInterfaces map[string]string      `json:"optionalOkapiInterfaces,omitempty"`
}

// PackageMetadata is the package-level metadata a descriptor is computed
// from. Parsing a package file into this shape is the collaborator boundary;
// LoadPackageMetadata is a convenience for the CLI.
type PackageMetadata struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Stripes     StripesMetadata `json:"stripes,omitempty"`
}

// LoadPackageMetadata reads a package.json from dir.
func LoadPackageMetadata(dir string) (PackageMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return PackageMetadata{}, fmt.Errorf("read package metadata: %w", err)
	}
	var meta PackageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return PackageMetadata{}, fmt.Errorf("parse package metadata: %w", err)
	}
	return meta, nil
}

// Service computes module descriptors.
type Service struct{}

// New constructs a descriptor service.
func New() *Service { return &Service{} }

// Descriptor computes the module descriptor for a package. In strict mode
// the interface dependency lists and residual metadata are included; the
// loose form carries only identity and permissions.
func (s *Service) Descriptor(meta PackageMetadata, strict bool) (module.Descriptor, error) {
	if meta.Name == "" || meta.Version == "" {
		return module.Descriptor{}, fmt.Errorf("package metadata needs name and version")
	}

	name := meta.Stripes.DisplayName
	if name == "" {
		name = meta.Name
	}

	desc := module.Descriptor{
		ID:             module.DescriptorID(meta.Name, meta.Version),
		Name:           name,
		PermissionSets: meta.Stripes.PermissionSets,
	}

	if strict {
		desc.Requires = interfaceRefs(meta.Stripes.OkapiInterfaces)
		desc.Optional = interfaceRefs(meta.Stripes.OptionalOkapiInterfaces)
		desc.Metadata = map[string]interface{}{
			"description": meta.Description,
			"type":        meta.Stripes.Type,
		}
	}

	return desc, nil
}

// BackendDescriptor passes a backend module's pre-built descriptor file
// through unchanged.
func (s *Service) BackendDescriptor(dir string) (module.Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, "target", "ModuleDescriptor.json"))
	if err != nil {
		return module.Descriptor{}, fmt.Errorf("read module descriptor: %w", err)
	}
	var desc module.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return module.Descriptor{}, fmt.Errorf("parse module descriptor: %w", err)
	}
	return desc, nil
}

// interfaceRefs converts an interface-version map into a sorted dependency
// list; map iteration order must not leak into the descriptor.
func interfaceRefs(interfaces map[string]string) []module.InterfaceRef {
	if len(interfaces) == 0 {
		return nil
	}
	refs := make([]module.InterfaceRef, 0, len(interfaces))
	for id, version := range interfaces {
		refs = append(refs, module.InterfaceRef{ID: id, Version: version})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
