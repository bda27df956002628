package rankport

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "3000" {
		t.Errorf("Port = %q, want %q", cfg.Port, "3000")
	}
	if cfg.AdminDB.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d, want 10", cfg.AdminDB.MaxOpenConns)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v, want 30s", cfg.LockTimeout)
	}
	if cfg.Debug {
		t.Error("Debug = true, want false by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RANKPORT_APP_PORT", "8080")
	t.Setenv("RANKPORT_DEBUG", "true")
	t.Setenv("RANKPORT_DB_MAX_OPEN_CONNS", "50")
	t.Setenv("RANKPORT_LOCK_TIMEOUT", "5s")
	t.Setenv("RANKPORT_DB_HOST", "db.internal")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.AdminDB.MaxOpenConns != 50 {
		t.Errorf("MaxOpenConns = %d, want 50", cfg.AdminDB.MaxOpenConns)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.AdminDB.Addr() != "db.internal:3306" {
		t.Errorf("Addr = %q, want %q", cfg.AdminDB.Addr(), "db.internal:3306")
	}
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("RANKPORT_DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("RANKPORT_DEBUG", "maybe")
	t.Setenv("RANKPORT_LOCK_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AdminDB.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d, want default 10", cfg.AdminDB.MaxOpenConns)
	}
	if cfg.Debug {
		t.Error("Debug = true, want default false")
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v, want default 30s", cfg.LockTimeout)
	}
}
