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
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// If true:
	// - /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool

	// SecretKey signs session tokens and email action tokens.
	// Must be at least 32 bytes when set; see ValidateSecurityConfig.
	SecretKey string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	CookieSecure bool
	TrustProxy   bool

	// BackendURL is this service's public base URL (verification links).
	// FrontendURL is the web client base (redirects, reset links).
	BackendURL         string
	FrontendURL        string
	FrontendProfileURL string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	LoginMax    int
	LoginWindow time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("REPTRACK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("REPTRACK_LOG_LEVEL", "info"),
		LogFormat: EnvString("REPTRACK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("REPTRACK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("REPTRACK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("REPTRACK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("REPTRACK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("REPTRACK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("REPTRACK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("REPTRACK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("REPTRACK_DB_MIN_CONNS", 0),

		RedisAddr:     EnvString("REPTRACK_REDIS_ADDR", ""),
		RedisPassword: EnvString("REPTRACK_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("REPTRACK_REDIS_DB", 0),

		ReadinessRequireDB: EnvBool("REPTRACK_READINESS_REQUIRE_DB", false),

		SecretKey: EnvString("REPTRACK_SECRET_KEY", ""),

		AccessTTL:  EnvDuration("REPTRACK_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: EnvDuration("REPTRACK_REFRESH_TTL", 24*time.Hour),

		CookieSecure: EnvBool("REPTRACK_COOKIE_SECURE", true),
		TrustProxy:   EnvBool("REPTRACK_TRUST_PROXY", false),

		BackendURL:         EnvString("REPTRACK_BACKEND_URL", "http://localhost:8080"),
		FrontendURL:        EnvString("REPTRACK_FRONTEND_URL", "http://localhost:3000"),
		FrontendProfileURL: EnvString("REPTRACK_FRONTEND_PROFILE_URL", "http://localhost:3000/profile"),

		CORSAllowedOrigins:   EnvStringList("REPTRACK_CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CORSAllowCredentials: EnvBool("REPTRACK_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("REPTRACK_CORS_MAX_AGE_SECONDS", 600),

		LoginMax:    EnvInt("REPTRACK_LOGIN_MAX", 5),
		LoginWindow: EnvDuration("REPTRACK_LOGIN_WINDOW", time.Minute),

		SMTPHost:     EnvString("REPTRACK_SMTP_HOST", ""),
		SMTPPort:     EnvString("REPTRACK_SMTP_PORT", "587"),
		SMTPUsername: EnvString("REPTRACK_SMTP_USERNAME", ""),
		SMTPPassword: EnvString("REPTRACK_SMTP_PASSWORD", ""),
		SMTPFrom:     EnvString("REPTRACK_SMTP_FROM", ""),

		GoogleClientID:     EnvString("REPTRACK_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: EnvString("REPTRACK_GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  EnvString("REPTRACK_GOOGLE_REDIRECT_URL", ""),
	}
}
