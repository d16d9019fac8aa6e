package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	OTLPEndpoint string

	// SchedulerSecret authenticates internal job endpoints. It is a shared
	// secret distinct from user authentication.
	SchedulerSecret string

	// SchedulerEnabled starts the in-process ticker loop. Deployments that
	// drive jobs through the internal endpoints leave it off.
	SchedulerEnabled bool

	OrderNumberPrefix string
	OperatorTimezone  string

	AuditExportDir string

	SessionTTL time.Duration

	// BootstrapAdminEmail/Password seed the first admin account on an empty
	// database. Seeding is skipped when the password is unset.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "mealgrid"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       normalizeEnvironment(getenv("ENVIRONMENT", EnvDevelopment)),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mealgrid"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		SchedulerSecret:   strings.TrimSpace(getenv("SCHEDULER_SECRET", "")),
		SchedulerEnabled:  getenvBool("SCHEDULER_ENABLED", true),
		OrderNumberPrefix: getenv("ORDER_NUMBER_PREFIX", "ORD"),
		OperatorTimezone:  getenv("OPERATOR_TIMEZONE", "Asia/Almaty"),
		AuditExportDir:    getenv("AUDIT_EXPORT_DIR", "/var/lib/mealgrid/audit-export"),
		SessionTTL:        time.Duration(getenvInt("SESSION_TTL_HOURS", 72)) * time.Hour,

		BootstrapAdminEmail:    strings.ToLower(strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMAIL", "admin@mealgrid.local"))),
		BootstrapAdminPassword: getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Validate rejects configurations that must not boot. In production the
// throttle backing store and the scheduler secret are mandatory: their absence
// would silently disable protections instead of degrading visibly.
func (c Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required in production")
	}
	if c.SchedulerSecret == "" {
		return errors.New("SCHEDULER_SECRET is required in production")
	}
	return nil
}

func normalizeEnvironment(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case EnvProduction, "prod":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
