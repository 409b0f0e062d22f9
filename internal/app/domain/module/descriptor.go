// Package module defines module descriptor and install payload types shared
// by the gateway-facing services.
package module

import (
	"fmt"
	"strings"
)

// PermissionSet is one permission declared by a module.
type PermissionSet struct {
	PermissionName string   `json:"permissionName"`
	DisplayName    string   `json:"displayName,omitempty"`
	Description    string   `json:"description,omitempty"`
	SubPermissions []string `json:"subPermissions,omitempty"`
	Visible        *bool    `json:"visible,omitempty"`
}

// InterfaceRef is an interface dependency record.
type InterfaceRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// Descriptor identifies a deployable module and its contract for the gateway.
// A descriptor is computed on demand, never mutated after construction, and
// superseded (not patched) on update.
type Descriptor struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name,omitempty"`
	Requires       []InterfaceRef         `json:"requires,omitempty"`
	Optional       []InterfaceRef         `json:"optional,omitempty"`
	Provides       []interface{}          `json:"provides,omitempty"`
	PermissionSets []PermissionSet        `json:"permissionSets,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// DescriptorID computes the stable gateway id for a package name and version:
// the scope's leading "@" is stripped and "/" becomes "_", so
// "@folio/users" at 2.15.0 yields "folio_users-2.15.0".
func DescriptorID(name, version string) string {
	id := strings.TrimPrefix(name, "@")
	id = strings.TrimPrefix(id, "/")
	id = strings.ReplaceAll(id, "/", "_")
	return fmt.Sprintf("%s-%s", id, version)
}

// IsBackend reports whether a module id follows the backend naming
// convention ("mod-" prefix). Everything else is treated as a front-end
// module (an "@scope/" package, or "folio_"/"ui-" style ids).
func IsBackend(id string) bool {
	return strings.HasPrefix(id, "mod-")
}
