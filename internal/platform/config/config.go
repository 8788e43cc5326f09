package config

import (
	"os"
	"strconv"
	"time"

	pstrings "phiguard/pkg/platform/strings"
)

// Environment selects the fail-closed posture of the security core.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
)

// IsProduction reports whether missing key material must be fatal.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// Config is the full process configuration, built from environment variables so
// main stays lean.
type Config struct {
	Env      Environment
	LogLevel string
	Server   Server
	Crypto   Crypto
	Session  Session
	Audit    Audit
	Redis    RedisConfig
	Postgres Postgres
	Kafka    Kafka
	JWT      JWT
	Auth     Auth
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Crypto holds the master secret for field-level encryption.
type Crypto struct {
	MasterSecret string
}

// Session configures the idle-expiry monitor.
type Session struct {
	IdleTimeout    time.Duration
	WarningWindow  time.Duration
	ExemptPrefixes []string
}

// Audit configures PHI detection and diagnostics.
type Audit struct {
	PHIPrefixes     []string
	SensitiveFields []string
	// DiagnosticMode attaches panic stack traces to audit records. Ignored in production.
	DiagnosticMode bool
	// QueueSize buffers records bound for the stream sink.
	QueueSize int
}

// RedisConfig configures the shared session store. An empty URL selects the
// in-memory store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the append-only audit table. Empty DSN disables the sink.
type Postgres struct {
	DSN string
}

// Kafka configures the audit stream sink. No brokers disables the sink.
type Kafka struct {
	Brokers     []string
	AuditTopic  string
	CreateTopic bool
}

// JWT configures bearer token validation at the boundary.
type JWT struct {
	SigningKey string
	Issuer     string
	Audience   string
	TokenTTL   time.Duration
}

// Auth configures the demo login directory. Outside production an empty UsersFile
// seeds one account per role.
type Auth struct {
	UsersFile string
}

// Defaults used when the environment does not override them.
var (
	DefaultIdleTimeout   = 15 * time.Minute
	DefaultWarningWindow = 2 * time.Minute

	DefaultExemptPrefixes = []string{"/auth/login", "/auth/register", "/auth/password-reset", "/health", "/metrics"}

	DefaultPHIPrefixes = []string{"/api/clients", "/api/caregivers", "/api/care-plans", "/api/medications", "/api/notes"}

	DefaultSensitiveFields = []string{
		"ssn", "socialsecurity", "dob", "dateofbirth", "diagnosis", "medication",
		"allergies", "medicalhistory", "insurance", "phone", "email", "address",
	}
)

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	env := Environment(getEnv("PHIGUARD_ENV", string(EnvDevelopment)))

	return Config{
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            getEnv("PHIGUARD_ADDR", ":8080"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Crypto: Crypto{
			// No default: the engine owns the development fallback and its warning.
			MasterSecret: os.Getenv("FIELD_ENCRYPTION_KEY"),
		},
		Session: Session{
			IdleTimeout:    getDuration("SESSION_IDLE_TIMEOUT", DefaultIdleTimeout),
			WarningWindow:  getDuration("SESSION_WARNING_WINDOW", DefaultWarningWindow),
			ExemptPrefixes: getList("SESSION_EXEMPT_PREFIXES", DefaultExemptPrefixes),
		},
		Audit: Audit{
			PHIPrefixes:     getList("AUDIT_PHI_PREFIXES", DefaultPHIPrefixes),
			SensitiveFields: pstrings.DedupeAndTrimLower(getList("AUDIT_SENSITIVE_FIELDS", DefaultSensitiveFields)),
			DiagnosticMode:  !env.IsProduction() && os.Getenv("AUDIT_DIAGNOSTIC_MODE") == "true",
			QueueSize:       getInt("AUDIT_QUEUE_SIZE", 1024),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Kafka: Kafka{
			Brokers:     pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:  getEnv("AUDIT_KAFKA_TOPIC", "phiguard.audit"),
			CreateTopic: os.Getenv("AUDIT_KAFKA_CREATE_TOPIC") == "true",
		},
		JWT: JWT{
			SigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     getEnv("JWT_ISSUER", "phiguard"),
			Audience:   getEnv("JWT_AUDIENCE", "phiguard-api"),
			TokenTTL:   getDuration("JWT_TOKEN_TTL", time.Hour),
		},
		Auth: Auth{
			UsersFile: os.Getenv("PHIGUARD_USERS_FILE"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	if v := pstrings.SplitList(os.Getenv(key)); len(v) > 0 {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
