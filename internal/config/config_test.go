package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://localhost/notealarm")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.URI != "postgres://localhost/notealarm" {
		t.Fatalf("uri=%q", cfg.Database.URI)
	}
	if cfg.AI.BaseURL != "https://openrouter.ai/api/v1" || cfg.AI.Model != "openai/gpt-4o-mini" {
		t.Fatalf("ai=%+v", cfg.AI)
	}
	if cfg.TickInterval() != time.Minute || cfg.ReconcileInterval() != 5*time.Minute {
		t.Fatalf("tick=%s reconcile=%s", cfg.TickInterval(), cfg.ReconcileInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notealarm.yaml")
	yaml := `
database:
  uri: postgres://file/db
scheduler:
  tick_seconds: 5
  permission: granted
cache:
  path: /var/lib/notealarm/cache.db
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOTEALARM_CONFIG", path)
	t.Setenv("NOTEALARM_SCHEDULER__TICK_SECONDS", "10")
	t.Setenv("NOTEALARM_MCP__DEFAULT_USER", "42")
	t.Setenv("AI_MODEL", "gpt-4.1-mini")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.URI != "postgres://file/db" {
		t.Fatalf("uri=%q", cfg.Database.URI)
	}
	if cfg.Scheduler.TickSeconds != 10 {
		t.Fatalf("tick_seconds=%d want env override 10", cfg.Scheduler.TickSeconds)
	}
	if cfg.Scheduler.Permission != "granted" || cfg.Cache.Path != "/var/lib/notealarm/cache.db" {
		t.Fatalf("scheduler=%+v cache=%+v", cfg.Scheduler, cfg.Cache)
	}
	if cfg.MCP.DefaultUser != "42" || cfg.AI.Model != "gpt-4.1-mini" {
		t.Fatalf("mcp=%+v ai=%+v", cfg.MCP, cfg.AI)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("NOTEALARM_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Timezone:  "Mars/Olympus",
		Scheduler: SchedulerConfig{Permission: "sometimes"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"database uri", "cache path", "tick_seconds", "interval_seconds", "sometimes", "Mars/Olympus"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
