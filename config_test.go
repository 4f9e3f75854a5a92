package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDatabaseURL_Priority(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://config"}

	t.Setenv("DATABASE_URL", "postgres://env")
	if got := GetDatabaseURL("postgres://flag", cfg); got != "postgres://flag" {
		t.Errorf("explicit flag must win, got %q", got)
	}
	if got := GetDatabaseURL("", cfg); got != "postgres://env" {
		t.Errorf("environment must beat config, got %q", got)
	}

	t.Setenv("DATABASE_URL", "")
	if got := GetDatabaseURL("", cfg); got != "postgres://config" {
		t.Errorf("config must be the fallback, got %q", got)
	}
	if got := GetDatabaseURL("", &Config{}); got != "" {
		t.Errorf("no configuration must yield empty, got %q", got)
	}
}

func TestGetManagedSchemas(t *testing.T) {
	if got := GetManagedSchemas(nil, &Config{}); len(got) != 1 || got[0] != "public" {
		t.Errorf("default must be [public], got %v", got)
	}
	if got := GetManagedSchemas([]string{"a", "b"}, &Config{Schemas: []string{"c"}}); len(got) != 2 || got[0] != "a" {
		t.Errorf("flags must win, got %v", got)
	}
	if got := GetManagedSchemas(nil, &Config{Schemas: []string{"c"}}); len(got) != 1 || got[0] != "c" {
		t.Errorf("config must beat the default, got %v", got)
	}
}

func TestLoadConfig_WalksUpToFindFile(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "database_url = \"postgres://from-toml\"\nschema_file = \"schema.sql\"\nschemas = [\"public\", \"billing\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "dbterra.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()
	if err := os.Chdir(sub); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DatabaseURL != "postgres://from-toml" {
		t.Errorf("unexpected database_url: %q", cfg.DatabaseURL)
	}
	if cfg.SchemaFile != "schema.sql" || len(cfg.Schemas) != 2 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfig_MissingFileIsEmptyConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("a missing dbterra.toml must not error: %v", err)
	}
	if cfg.DatabaseURL != "" || cfg.SchemaFile != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}
