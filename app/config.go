package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"directory-api/internal/mail"
	"directory-api/internal/maintenance"
	"directory-api/internal/storage"
)

type Config struct {
	AppEnv      string
	Release     string
	Port        string
	DatabaseURL string
	JWTSecret   string
	SentryDSN   string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	LoginMaxAttempts     int
	LoginLockDuration    time.Duration
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	AdminUsername string
	AdminPassword string

	Cleanup maintenance.Options

	SessionTTL         time.Duration
	ResetCodeTTL       time.Duration
	DocumentURLTTL     time.Duration
	CORSAllowedOrigins []string
	TrustedProxyHops   int

	RedisURL      string
	S3            storage.S3Config
	LocalFilesURL string
	CloudinaryURL string
	SES           mail.SESConfig
	MailLogBodies bool

	SeedCatalogs  bool
	RunMigrations bool
}

// LoadConfig reads the process environment. DATABASE_URL and JWT_SECRET are
// required; everything else has a default.
func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	appEnv := envOrDefault("APP_ENV", "development")
	region := envOrDefault("AWS_REGION", "us-east-1")
	accessKey := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	secretKey := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	return Config{
		AppEnv:      appEnv,
		Release:     strings.TrimSpace(os.Getenv("APP_RELEASE")),
		Port:        envOrDefault("PORT", "8080"),
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),

		LoginMaxAttempts:     envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockDuration:    envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
		AccessTokenTTL:       envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTL:      envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		Cleanup: maintenance.Options{
			CronSecret:            os.Getenv("CRON_SECRET"),
			RefreshRetention:      envDaysOrDefault("AUTH_REFRESH_TOKEN_RETENTION_DAYS", 14),
			LoginAttemptRetention: envDaysOrDefault("AUTH_LOGIN_ATTEMPT_RETENTION_DAYS", 30),
			BatchSize:             envIntOrDefault("CLEANUP_BATCH_SIZE", 500),
		},

		SessionTTL:         envHoursOrDefault("SESSION_TTL_HOURS", 24),
		ResetCodeTTL:       envMinutesOrDefault("RESET_CODE_TTL_MINUTES", 15),
		DocumentURLTTL:     envMinutesOrDefault("DOCUMENT_URL_TTL_MINUTES", 15),
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
		TrustedProxyHops:   envIntOrDefault("TRUSTED_PROXY_HOPS", 0),

		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		S3: storage.S3Config{
			Bucket:          strings.TrimSpace(os.Getenv("S3_BUCKET")),
			Region:          region,
			Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			UsePathStyle:    EnvBoolOrDefault("S3_USE_PATH_STYLE", false),
		},
		LocalFilesURL: envOrDefault("LOCAL_FILES_BASE_URL", "http://localhost:8080/files"),
		CloudinaryURL: strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		SES: mail.SESConfig{
			Region:          envOrDefault("SES_REGION", region),
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			FromEmail:       strings.TrimSpace(os.Getenv("SES_FROM_EMAIL")),
			FromName:        envOrDefault("SES_FROM_NAME", "Directory"),
		},
		MailLogBodies: EnvBoolOrDefault("MAIL_LOG_BODIES", appEnv == "development"),

		SeedCatalogs:  EnvBoolOrDefault("SEED_CATALOGS", false),
		RunMigrations: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
	}, nil
}

// SecureCookies reports whether session cookies carry the Secure flag.
func (c Config) SecureCookies() bool {
	return c.AppEnv != "development"
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func envList(name string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
