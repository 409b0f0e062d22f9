package descriptor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/folio-tools/stripesctl/internal/app/domain/module"
)

func testMetadata() PackageMetadata {
	return PackageMetadata{
		Name:        "@folio/users",
		Version:     "2.15.0",
		Description: "User management",
		Stripes: StripesMetadata{
			Type:        "app",
			DisplayName: "Users",
			PermissionSets: []module.PermissionSet{
				{PermissionName: "module.users.enabled"},
			},
			OkapiInterfaces: map[string]string{
				"users":       "15.0",
				"permissions": "5.2",
			},
			OptionalOkapiInterfaces: map[string]string{
				"tags": "1.0",
			},
		},
	}
}

func TestDescriptor_Loose(t *testing.T) {
	svc := New()
	desc, err := svc.Descriptor(testMetadata(), false)
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}

	if desc.ID != "folio_users-2.15.0" {
		t.Errorf("ID = %q, want folio_users-2.15.0", desc.ID)
	}
	if desc.Name != "Users" {
		t.Errorf("Name = %q, want display name", desc.Name)
	}
	if len(desc.PermissionSets) != 1 || desc.PermissionSets[0].PermissionName != "module.users.enabled" {
		t.Errorf("PermissionSets = %v", desc.PermissionSets)
	}
	if desc.Requires != nil || desc.Optional != nil || desc.Metadata != nil {
		t.Errorf("loose descriptor carries strict fields: %+v", desc)
	}
}

func TestDescriptor_Strict(t *testing.T) {
	svc := New()
	desc, err := svc.Descriptor(testMetadata(), true)
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}

	wantRequires := []module.InterfaceRef{
		{ID: "permissions", Version: "5.2"},
		{ID: "users", Version: "15.0"},
	}
	if !reflect.DeepEqual(desc.Requires, wantRequires) {
		t.Errorf("Requires = %v, want sorted %v", desc.Requires, wantRequires)
	}
	if want := []module.InterfaceRef{{ID: "tags", Version: "1.0"}}; !reflect.DeepEqual(desc.Optional, want) {
		t.Errorf("Optional = %v, want %v", desc.Optional, want)
	}
	if desc.Metadata["description"] != "User management" || desc.Metadata["type"] != "app" {
		t.Errorf("Metadata = %v", desc.Metadata)
	}
}

func TestDescriptor_NameFallsBackToPackageName(t *testing.T) {
	meta := testMetadata()
	meta.Stripes.DisplayName = ""

	desc, err := New().Descriptor(meta, false)
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if desc.Name != "@folio/users" {
		t.Errorf("Name = %q, want package name fallback", desc.Name)
	}
}

func TestDescriptor_RequiresIdentity(t *testing.T) {
	for _, meta := range []PackageMetadata{
		{Version: "1.0.0"},
		{Name: "@folio/users"},
	} {
		if _, err := New().Descriptor(meta, false); err == nil {
			t.Errorf("Descriptor(%+v) error = nil, want identity error", meta)
		}
	}
}

func TestLoadPackageMetadata(t *testing.T) {
	dir := t.TempDir()
	raw, _ := json.Marshal(testMetadata())
	if err := os.WriteFile(filepath.Join(dir, "package.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := LoadPackageMetadata(dir)
	if err != nil {
		t.Fatalf("LoadPackageMetadata() error = %v", err)
	}
	if meta.Name != "@folio/users" || meta.Stripes.Type != "app" {
		t.Errorf("meta = %+v", meta)
	}

	if _, err := LoadPackageMetadata(t.TempDir()); err == nil {
		t.Error("LoadPackageMetadata() on empty dir error = nil, want error")
	}
}

func TestBackendDescriptor(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	desc := module.Descriptor{
		ID:   "mod-users-17.1.0",
		Name: "users",
		Requires: []module.InterfaceRef{
			{ID: "permissions", Version: "5.2"},
		},
	}
	raw, _ := json.Marshal(desc)
	if err := os.WriteFile(filepath.Join(target, "ModuleDescriptor.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := New().BackendDescriptor(dir)
	if err != nil {
		t.Fatalf("BackendDescriptor() error = %v", err)
	}
	if !reflect.DeepEqual(got, desc) {
		t.Errorf("BackendDescriptor() = %+v, want %+v", got, desc)
	}
}
