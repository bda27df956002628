package rankport

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

//go:embed sql/tenant/10_schema.sql
var tenantDBSchema string

// ErrTenantStoreUnavailable is returned when a tenant's store file does not
// exist. Resolution never creates a store; only Provision does.
var ErrTenantStoreUnavailable = errors.New("tenant store unavailable")

// 管理用DBに接続する
func connectAdminDB(cfg AdminDBConfig) (*sqlx.DB, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Addr()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Name
	mc.ParseTime = true

	db, err := sqlx.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("error sqlx.Open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	return db, nil
}

// TenantStoreManager maps a tenant ID to its isolated SQLite store.
// One value is constructed at startup and shared by every request.
type TenantStoreManager struct {
	dir        string
	driverName string
}

func NewTenantStoreManager(dir, driverName string) *TenantStoreManager {
	return &TenantStoreManager{dir: dir, driverName: driverName}
}

// テナントDBのパスを返す
func (m *TenantStoreManager) path(tenantID int64) string {
	return filepath.Join(m.dir, fmt.Sprintf("%d.db", tenantID))
}

// Resolve opens the store of an existing tenant. A missing store file is a
// recognized inconsistency (tenant row without a store), not a cue to
// create one.
func (m *TenantStoreManager) Resolve(tenantID int64) (*sqlx.DB, error) {
	p := m.path(tenantID)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("%w: id=%d, path=%s: %s", ErrTenantStoreUnavailable, tenantID, p, err)
	}
	db, err := sqlx.Open(m.driverName, fmt.Sprintf("file:%s?mode=rw", p))
	if err != nil {
		return nil, fmt.Errorf("error sqlx.Open tenant store: id=%d, %w", tenantID, err)
	}
	return db, nil
}

// Provision creates a brand-new tenant store and applies the fixed schema.
// Tenant IDs are globally unique, so a second call for the same ID means a
// misconfigured deployment and fails loudly.
func (m *TenantStoreManager) Provision(tenantID int64) error {
	p := m.path(tenantID)
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("tenant store already exists: id=%d, path=%s", tenantID, p)
	}
	db, err := sqlx.Open(m.driverName, fmt.Sprintf("file:%s?mode=rwc", p))
	if err != nil {
		return fmt.Errorf("error sqlx.Open new tenant store: id=%d, %w", tenantID, err)
	}
	defer db.Close()
	if _, err := db.Exec(tenantDBSchema); err != nil {
		return fmt.Errorf("error apply tenant schema: id=%d, path=%s, %w", tenantID, p, err)
	}
	return nil
}
