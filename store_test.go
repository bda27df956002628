package rankport

import (
	"errors"
	"testing"
)

func TestTenantStoreProvisionAndResolve(t *testing.T) {
	m := NewTenantStoreManager(t.TempDir(), "sqlite3")

	if err := m.Provision(1); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	db, err := m.Resolve(1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer db.Close()

	// スキーマが適用されていること
	for _, table := range []string{"competition", "player", "player_score"} {
		var count int
		if err := db.Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
			t.Errorf("table %s not usable: %v", table, err)
		}
	}
}

func TestTenantStoreResolveMissing(t *testing.T) {
	m := NewTenantStoreManager(t.TempDir(), "sqlite3")

	_, err := m.Resolve(42)
	if !errors.Is(err, ErrTenantStoreUnavailable) {
		t.Errorf("err = %v, want ErrTenantStoreUnavailable", err)
	}
}

func TestTenantStoreProvisionTwice(t *testing.T) {
	m := NewTenantStoreManager(t.TempDir(), "sqlite3")

	if err := m.Provision(1); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Provision(1); err == nil {
		t.Fatal("second Provision succeeded, want error")
	}
}

func TestTenantStoresAreIsolated(t *testing.T) {
	m := NewTenantStoreManager(t.TempDir(), "sqlite3")

	for _, id := range []int64{1, 2} {
		if err := m.Provision(id); err != nil {
			t.Fatalf("Provision(%d): %v", id, err)
		}
	}
	db1, err := m.Resolve(1)
	if err != nil {
		t.Fatalf("Resolve(1): %v", err)
	}
	defer db1.Close()
	db2, err := m.Resolve(2)
	if err != nil {
		t.Fatalf("Resolve(2): %v", err)
	}
	defer db2.Close()

	if _, err := db1.Exec(
		"INSERT INTO player (id, tenant_id, display_name, is_disqualified, created_at, updated_at) VALUES ('p1', 1, 'one', 0, 0, 0)",
	); err != nil {
		t.Fatalf("insert into tenant 1: %v", err)
	}

	var count int
	if err := db2.Get(&count, "SELECT COUNT(*) FROM player"); err != nil {
		t.Fatalf("count tenant 2 players: %v", err)
	}
	if count != 0 {
		t.Errorf("tenant 2 sees %d players from tenant 1, want 0", count)
	}
}
