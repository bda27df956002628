package rankport

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment at startup.
// A single value is loaded in Run() and carried on the Server.
type Config struct {
	ServiceName string

	Port  string
	Env   string
	Debug bool

	AdminDB AdminDBConfig

	// TenantDBDir holds one SQLite file and one lock file per tenant,
	// both addressed by the tenant's numeric ID.
	TenantDBDir string

	JWTKeyFile    string
	CookieName    string
	BaseHostname  string
	AdminHostname string

	InitializeScript string
	SQLiteTraceFile  string

	LogLevel    string
	LockTimeout time.Duration
}

// AdminDBConfig holds the shared (cross-tenant) MySQL store configuration.
type AdminDBConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	MaxOpenConns int
}

func (c AdminDBConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LoadConfig reads configuration from the environment, with an optional
// .env file for local development.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional; environment variables alone are fine.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error godotenv.Load: %w", err)
		}
	}

	cfg := &Config{
		ServiceName: "rankport",
		Port:        getEnv("RANKPORT_APP_PORT", "3000"),
		Env:         getEnv("RANKPORT_ENV", "development"),
		Debug:       getEnvAsBool("RANKPORT_DEBUG", false),
		AdminDB: AdminDBConfig{
			Host:         getEnv("RANKPORT_DB_HOST", "127.0.0.1"),
			Port:         getEnv("RANKPORT_DB_PORT", "3306"),
			User:         getEnv("RANKPORT_DB_USER", "rankport"),
			Password:     getEnv("RANKPORT_DB_PASSWORD", "rankport"),
			Name:         getEnv("RANKPORT_DB_NAME", "rankport"),
			MaxOpenConns: getEnvAsInt("RANKPORT_DB_MAX_OPEN_CONNS", 10),
		},
		TenantDBDir:      getEnv("RANKPORT_TENANT_DB_DIR", "../tenant_db"),
		JWTKeyFile:       getEnv("RANKPORT_JWT_KEY_FILE", "./public.pem"),
		CookieName:       getEnv("RANKPORT_COOKIE_NAME", "rankport_session"),
		BaseHostname:     getEnv("RANKPORT_BASE_HOSTNAME", ".t.rankport.dev"),
		AdminHostname:    getEnv("RANKPORT_ADMIN_HOSTNAME", "admin.t.rankport.dev"),
		InitializeScript: getEnv("RANKPORT_INITIALIZE_SCRIPT", "../sql/init.sh"),
		SQLiteTraceFile:  getEnv("RANKPORT_SQLITE_TRACE_FILE", ""),
		LogLevel:         getEnv("RANKPORT_LOG_LEVEL", "info"),
		LockTimeout:      getEnvAsDuration("RANKPORT_LOCK_TIMEOUT", 30*time.Second),
	}
	return cfg, nil
}

// 環境変数を取得する、なければデフォルト値を返す
func getEnv(key string, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}
