package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.RegistryURL != DefaultRegistryURL {
		t.Errorf("RegistryURL = %q", cfg.RegistryURL)
	}
	if !strings.HasSuffix(cfg.GlobalRoot, filepath.Join(".orbit", "modules")) {
		t.Errorf("GlobalRoot = %q, want .orbit/modules under home", cfg.GlobalRoot)
	}
	if cfg.LocalRoot != filepath.Join(".", ".orbit", "modules") {
		t.Errorf("LocalRoot = %q", cfg.LocalRoot)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() on missing file error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("registry: https://mirror.test\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RegistryURL != "https://mirror.test" {
		t.Errorf("RegistryURL = %q", cfg.RegistryURL)
	}
	if cfg.GlobalRoot != Default().GlobalRoot {
		t.Errorf("GlobalRoot = %q, want default preserved", cfg.GlobalRoot)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("registry: [unclosed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() on malformed YAML should fail")
	}
}
