package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("TALKDESK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("TALKDESK_LOG_LEVEL", "info"),
		LogFormat: EnvString("TALKDESK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("TALKDESK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TALKDESK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TALKDESK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TALKDESK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TALKDESK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("TALKDESK_DATABASE_URL", ""),
		DBSchema:    EnvString("TALKDESK_DB_SCHEMA", "talkdesk"),
		DBMaxConns:  EnvInt32("TALKDESK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TALKDESK_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("TALKDESK_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("TALKDESK_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("TALKDESK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("TALKDESK_CORS_MAX_AGE_SECONDS", 600),
	}
}
