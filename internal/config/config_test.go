package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresSelfID(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "test")

	if _, err := Load(); err == nil {
		t.Fatal("load without self_id succeeded")
	}
}

func TestLoadParsesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "test")

	yaml := `
mode: debug
port: 9123
self_id: alice
display_name: Alice
ring_timeout: 45s
microphone: granted
contacts:
  - id: bob
    username: Bob
`
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9123 || cfg.SelfID != "alice" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RingTimeout != 45*time.Second {
		t.Fatalf("ring_timeout = %v, want 45s", cfg.RingTimeout)
	}
	if len(cfg.Contacts) != 1 || cfg.Contacts[0].ID != "bob" {
		t.Fatalf("contacts = %+v", cfg.Contacts)
	}
	// Defaults still fill unset keys.
	if cfg.DBPath != "dial.db" || len(cfg.StunServers) == 0 {
		t.Fatalf("defaults missing: %+v", cfg)
	}
}
