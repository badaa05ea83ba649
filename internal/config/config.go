package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	HookGin  = "gin"
	HookHTTP = "http"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	SiteURL     string
	// NodeID seeds snowflake record ids; unique per replica.
	NodeID int64

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Tracking TrackingConfig
	APIToken APITokenConfig
	Session  SessionConfig
	Redis    RedisConfig
	Export   ExportConfig

	UpstreamURL string
}

// ObservabilityConfig feeds the logger, tracer, and meter providers.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

// TrackingConfig carries the usage tracking feature flags.
type TrackingConfig struct {
	TrackLogin     bool
	TrackLogout    bool
	TrackAnonymous bool
	Hooks          []string
	RecordTimeout  time.Duration
	PathsFile      string
	PathsDirs      []string
}

type APITokenConfig struct {
	HeaderName   string
	JWTSecret    string
	JWTAlgorithm string
	CacheTTL     time.Duration
}

type SessionConfig struct {
	CookieName    string
	CookieSecure  bool
	TrustedHeader string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ExportConfig throttles CSV report downloads. Rate is tokens per second per user.
type ExportConfig struct {
	Rate    float64
	Burst   int
	LockTTL time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "usagetrack"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		SiteURL:      strings.TrimRight(strings.TrimSpace(getenv("SITE_URL", "")), "/"),

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtlpEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtlpProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ckan"),
		DBUser:            getenv("DATABASE_USER", "ckan"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "usagetrack.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Tracking: TrackingConfig{
			TrackLogin:     getenvBool("TRACKING_TRACK_LOGIN", false),
			TrackLogout:    getenvBool("TRACKING_TRACK_LOGOUT", false),
			TrackAnonymous: getenvBool("TRACKING_TRACK_ANON", false),
			Hooks:          parseHooks(getenv("TRACKING_HOOKS", HookGin)),
			RecordTimeout:  getenvDuration("TRACKING_RECORD_TIMEOUT", 2*time.Second),
			PathsFile:      getenv("TRACKING_PATHS_FILE", "tracking"),
			PathsDirs:      splitList(getenv("TRACKING_PATHS_DIRS", "/etc/usagetrack,.")),
		},
		APIToken: APITokenConfig{
			HeaderName:   getenv("APITOKEN_HEADER_NAME", "Authorization"),
			JWTSecret:    strings.TrimSpace(getenv("API_TOKEN_JWT_SECRET", "")),
			JWTAlgorithm: strings.ToUpper(getenv("API_TOKEN_JWT_ALGORITHM", "HS256")),
			CacheTTL:     getenvDuration("TOKEN_CACHE_TTL", time.Minute),
		},
		Session: SessionConfig{
			CookieName:    getenv("SESSION_COOKIE_NAME", "_sid"),
			CookieSecure:  environment == "production" || getenvBool("SESSION_COOKIE_SECURE", false),
			TrustedHeader: strings.TrimSpace(getenv("SESSION_TRUSTED_HEADER", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Export: ExportConfig{
			Rate:    getenvFloat("EXPORT_RATE_LIMIT", 0),
			Burst:   getenvInt("EXPORT_RATE_BURST", 5),
			LockTTL: getenvDuration("EXPORT_LOCK_TTL", time.Minute),
		},
		UpstreamURL: strings.TrimSpace(getenv("UPSTREAM_URL", "")),
	}

	return cfg
}

// HookEnabled reports whether the named tracking front door is active.
func (c Config) HookEnabled(name string) bool {
	for _, hook := range c.Tracking.Hooks {
		if hook == name {
			return true
		}
	}
	return false
}

// otlpProtocol prefers the traces-specific variable, as the OTel SDKs do.
func otlpProtocol() string {
	if p := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); p != "" {
		return strings.ToLower(p)
	}
	return strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
}

func parseHooks(raw string) []string {
	out := make([]string, 0, 2)
	for _, hook := range splitList(strings.ToLower(raw)) {
		switch hook {
		case HookGin, HookHTTP:
			out = append(out, hook)
		}
	}
	if len(out) == 0 {
		out = append(out, HookGin)
	}
	return out
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
