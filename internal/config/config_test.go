package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/folio-tools/stripesctl/internal/okapi"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.OkapiURL != "http://localhost:9130" {
		t.Errorf("OkapiURL = %q, want http://localhost:9130", cfg.OkapiURL)
	}
	if cfg.Tenant != "diku" {
		t.Errorf("Tenant = %q, want diku", cfg.Tenant)
	}
	if cfg.Namespace != "stripesctl" {
		t.Errorf("Namespace = %q, want stripesctl", cfg.Namespace)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, "okapi: https://folio-snapshot-okapi.dev.folio.org\ntenant: testlib\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.OkapiURL != "https://folio-snapshot-okapi.dev.folio.org" {
		t.Errorf("OkapiURL = %q", cfg.OkapiURL)
	}
	if cfg.Tenant != "testlib" {
		t.Errorf("Tenant = %q, want testlib", cfg.Tenant)
	}
	// unset file keys keep their defaults
	if cfg.Namespace != "stripesctl" {
		t.Errorf("Namespace = %q, want default", cfg.Namespace)
	}
}

func TestLoadFromPath_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "okapi: http://from-file:9130\ntenant: filetenant\n")
	t.Setenv("STRIPES_OKAPI_URL", "http://from-env:9130")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.OkapiURL != "http://from-env:9130" {
		t.Errorf("OkapiURL = %q, want the environment value", cfg.OkapiURL)
	}
	if cfg.Tenant != "filetenant" {
		t.Errorf("Tenant = %q, want the file value", cfg.Tenant)
	}
}

func TestLoadFromPath_Malformed(t *testing.T) {
	path := writeConfig(t, "okapi: [unclosed\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("LoadFromPath() error = nil, want parse error")
	}
	var cliErr *okapi.CLIError
	if !errors.As(err, &cliErr) {
		t.Errorf("error type = %T, want *okapi.CLIError", err)
	}
}

func TestLoadFromPath_Unreadable(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadFromPath() error = nil, want read error")
	}
}

func TestLoad_NoFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("STRIPES_TENANT", "envtenant")
	t.Setenv("HOME", t.TempDir())
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tenant != "envtenant" {
		t.Errorf("Tenant = %q, want envtenant", cfg.Tenant)
	}
	if cfg.OkapiURL != "http://localhost:9130" {
		t.Errorf("OkapiURL = %q, want default", cfg.OkapiURL)
	}
}

func TestLoadOrDefault_SwallowsErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("okapi: [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg := LoadOrDefault()
	if cfg.OkapiURL != "http://localhost:9130" {
		t.Errorf("OkapiURL = %q, want default despite broken file", cfg.OkapiURL)
	}
}
