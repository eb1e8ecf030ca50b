package app

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"honkspotter/internal/auth"
)

const defaultCORSOrigins = "http://localhost:5174,https://localhost:5174"

// Config is read once at startup and never mutated afterwards.
type Config struct {
	DatabaseURL   string
	JWTSecret     string
	CloudinaryURL string
	AppEnv        string
	Port          string
	SentryDSN     string

	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	LoginMaxAttempts  int
	LoginLockDuration time.Duration
	BcryptCost        int
	Cookies           auth.CookieConfig

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
	CORSAllowedOrigins   []string

	CronSecret           string
	ImageOrphanRetention time.Duration
	MaintenanceBatchSize int

	DBMaxConns    int32
	DBMinConns    int32
	RunMigrations bool

	SeedUserEmail    string
	SeedUserPassword string
}

// LoadConfig reads the environment. DATABASE_URL and JWT_SECRET are
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

	cfg := Config{
		DatabaseURL:   databaseURL,
		JWTSecret:     jwtSecret,
		CloudinaryURL: strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		AppEnv:        envOrDefault("APP_ENV", "development"),
		Port:          envOrDefault("PORT", "8080"),
		SentryDSN:     strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		AccessTokenTTL:    envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTL:   envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 7),
		LoginMaxAttempts:  envIntOrDefault("LOGIN_MAX_ATTEMPTS", 4),
		LoginLockDuration: envSecondsOrDefault("LOGIN_LOCK_SECONDS", 60),
		BcryptCost:        envIntOrDefault("BCRYPT_COST", 12),
		Cookies: auth.CookieConfig{
			Secure:   EnvBoolOrDefault("COOKIE_SECURE", true),
			SameSite: auth.ParseSameSite(envOrDefault("COOKIE_SAMESITE", "Strict")),
			Domain:   strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),
		},

		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		CORSAllowedOrigins:   splitList(envOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins)),

		CronSecret:           strings.TrimSpace(os.Getenv("CRON_SECRET")),
		ImageOrphanRetention: envHoursOrDefault("IMAGE_ORPHAN_RETENTION_HOURS", 24),
		MaintenanceBatchSize: envIntOrDefault("MAINTENANCE_BATCH_SIZE", 100),

		DBMaxConns:    int32(envIntOrDefault("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(envIntOrDefault("DB_MIN_CONNS", 1)),
		RunMigrations: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),

		SeedUserEmail:    strings.TrimSpace(os.Getenv("SEED_USER_EMAIL")),
		SeedUserPassword: os.Getenv("SEED_USER_PASSWORD"),
	}

	if cfg.Cookies.SameSite == http.SameSiteNoneMode && !cfg.Cookies.Secure {
		return Config{}, fmt.Errorf("COOKIE_SAMESITE=None requires COOKIE_SECURE=true")
	}

	return cfg, nil
}

// Debug enables the debug log channel.
func (c Config) Debug() bool {
	return c.AppEnv == "development"
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
