package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	LogLevel   string

	// Token signing settings. Access and refresh tokens use distinct
	// secrets by design.
	AccessSecret  string
	RefreshSecret string
	AccessExpire  time.Duration
	RefreshExpire time.Duration

	// CORS
	AllowedOrigins []string

	// Rate limiting on credential endpoints
	RateLimitPerMinute int

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Media host (S3-compatible). When Bucket is empty the server falls
	// back to the in-memory media store, like the memory DB adapter.
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3BaseURL   string

	// Token revocation denylist. Stateless tokens cannot be revoked
	// server-side unless this is enabled.
	RevocationEnabled bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getduration(key, def string) (time.Duration, error) {
	v := getenv(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	// If DSN is provided directly, use it
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	// Build DSN from individual components
	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:       getenv("PORT", "8080"),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/voicejournal.db"),
		LogLevel:   getenv("LOG_LEVEL", "info"),

		AccessSecret:  getenv("JWT_ACCESS_SECRET", "change-me"),
		RefreshSecret: getenv("JWT_REFRESH_SECRET", "change-me-too"),

		RateLimitPerMinute: 60,

		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "journal")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "journalpass")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "voicejournal")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),

		S3Region:    getenv("S3_REGION", "us-east-1"),
		S3Endpoint:  getenv("S3_ENDPOINT", ""),
		S3AccessKey: getenv("S3_ACCESS_KEY", ""),
		S3SecretKey: getenv("S3_SECRET_KEY", ""),
		S3Bucket:    getenv("S3_BUCKET", ""),
		S3BaseURL:   getenv("S3_BASE_URL", ""),

		RevocationEnabled: getenv("REVOCATION_ENABLED", "false") == "true",
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
	}

	var err error
	// access tokens are short-lived; refresh tokens run on a days scale
	if c.AccessExpire, err = getduration("JWT_ACCESS_EXPIRE", "15m"); err != nil {
		return nil, err
	}
	if c.RefreshExpire, err = getduration("JWT_REFRESH_EXPIRE", "168h"); err != nil {
		return nil, err
	}

	if v := getenv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %s", v)
		}
		c.RateLimitPerMinute = n
	}

	if v := getenv("REDIS_DB", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %s", v)
		}
		c.RedisDB = n
	}

	if origins := getenv("ALLOWED_ORIGINS", getenv("FRONTEND_URL", "")); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	// Validate PostgreSQL configuration if using postgres
	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" {
		// ensure sqlite file path is not empty
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	}

	// Validate secrets in production
	env := strings.ToLower(getenv("ENV", getenv("NODE_ENV", "")))
	if env == "production" || env == "prod" {
		if c.AccessSecret == "" || c.AccessSecret == "change-me" {
			return nil, errors.New("JWT_ACCESS_SECRET must be set in production")
		}
		if c.RefreshSecret == "" || c.RefreshSecret == "change-me-too" {
			return nil, errors.New("JWT_REFRESH_SECRET must be set in production")
		}
		if c.AccessSecret == c.RefreshSecret {
			return nil, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
		}
	}

	// normalize port
	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
