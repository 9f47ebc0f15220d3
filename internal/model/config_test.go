package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Jira.Auth != "basic" {
		t.Errorf("defaults = %+v / %+v", cfg.Store, cfg.Jira)
	}
	if cfg.Sync.Interval() != 15*time.Minute {
		t.Errorf("interval = %v", cfg.Sync.Interval())
	}
	if cfg.Sync.FullEvery() != 24*time.Hour {
		t.Errorf("full every = %v", cfg.Sync.FullEvery())
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadConfigFileAndFloors(t *testing.T) {
	path := writeConfig(t, `
jira:
  base_url: https://acme.atlassian.net
  auth: bearer
  project_keys: [PROJ, OPS]
  page_size: 0
sync:
  interval_minutes: -5
  fetch_concurrency: 8
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Jira.BaseURL != "https://acme.atlassian.net" || cfg.Jira.Auth != "bearer" {
		t.Errorf("jira = %+v", cfg.Jira)
	}
	if len(cfg.Jira.ProjectKeys) != 2 || cfg.Jira.ProjectKeys[1] != "OPS" {
		t.Errorf("project keys = %v", cfg.Jira.ProjectKeys)
	}
	if cfg.Jira.PageSize != 100 {
		t.Errorf("page size floor = %d", cfg.Jira.PageSize)
	}
	if cfg.Sync.IntervalMinutes != 15 {
		t.Errorf("interval floor = %d", cfg.Sync.IntervalMinutes)
	}
	if cfg.Sync.FetchConcurrency != 8 {
		t.Errorf("fetch concurrency = %d", cfg.Sync.FetchConcurrency)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PMSYNC_SYNC_INTERVAL_MINUTES", "5")
	path := writeConfig(t, "sync:\n  interval_minutes: 30\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Sync.IntervalMinutes != 5 {
		t.Errorf("interval = %d, want env value 5", cfg.Sync.IntervalMinutes)
	}
}

func TestLoadConfigRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"driver", "store:\n  driver: mysql\n"},
		{"auth", "jira:\n  auth: oauth\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Jira.BaseURL = "https://jira.acme.io"
	cfg.Jira.Auth = "bearer"
	cfg.Jira.ProjectKeys = []string{"PROJ"}
	cfg.Sync.IntervalMinutes = 45

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Jira.BaseURL != "https://jira.acme.io" || loaded.Jira.Auth != "bearer" {
		t.Errorf("jira = %+v", loaded.Jira)
	}
	if len(loaded.Jira.ProjectKeys) != 1 || loaded.Jira.ProjectKeys[0] != "PROJ" {
		t.Errorf("project keys = %v", loaded.Jira.ProjectKeys)
	}
	if loaded.Sync.IntervalMinutes != 45 {
		t.Errorf("interval = %d", loaded.Sync.IntervalMinutes)
	}
}
