package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"honkspotter/internal/auth"
	"honkspotter/internal/db"
	"honkspotter/internal/maintenance"
	"honkspotter/internal/media"
	"honkspotter/internal/observability"
	"honkspotter/internal/profile"
	"honkspotter/internal/sighting"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  Config
	Logger  *observability.Logger
	Close   func() error
}

// Build loads the configuration from the environment and wires the service.
func Build(ctx context.Context, options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	return BuildWithConfig(ctx, cfg, options)
}

func BuildWithConfig(ctx context.Context, cfg Config, options Options) (*Runtime, error) {
	logger := observability.NewLogger(os.Stdout, cfg.Debug())

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}

	if options.RunMigrations || cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	handler, err := newHandler(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			pool.Close()
			return nil
		},
	}, nil
}

// newHandler builds every component on top of pool and returns the
// fully wrapped router.
func newHandler(ctx context.Context, cfg Config, pool db.Pool, logger *observability.Logger) (http.Handler, error) {
	metrics := observability.NewMetrics()

	authService, err := NewAuthService(cfg, pool, logger)
	if err != nil {
		return nil, err
	}
	authService.WithMetrics(metrics)

	if err := authService.BootstrapFromEnv(ctx, cfg.SeedUserEmail, cfg.SeedUserPassword); err != nil {
		return nil, fmt.Errorf("bootstrap seed user: %w", err)
	}

	var storage media.Storage
	if cfg.CloudinaryURL != "" {
		cloudinaryClient, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		storage = cloudinaryClient
	} else {
		logger.Warn("cloudinary_not_configured", nil)
	}

	imageRepo := media.NewRepository(pool)

	authHandler := auth.NewHandler(authService, cfg.Cookies, logger)
	sightingHandler := sighting.NewHandler(sighting.NewRepository(pool), logger)
	profileHandler := profile.NewHandler(profile.NewRepository(pool), logger)
	mediaHandler := media.NewHandler(imageRepo, storage, logger)
	cleanupHandler := maintenance.NewCleanupHandler(
		imageRepo,
		storage,
		logger,
		cfg.CronSecret,
		cfg.ImageOrphanRetention,
		cfg.MaintenanceBatchSize,
	)

	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(authService, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/signup", loginLimiter.Middleware(http.HandlerFunc(authHandler.Signup)))
	mux.HandleFunc("POST /api/refresh", authHandler.Refresh)
	mux.Handle("POST /api/logout", protected(authHandler.Logout))
	mux.HandleFunc("GET /api/sightings", sightingHandler.List)
	mux.Handle("POST /api/submit-sighting", protected(sightingHandler.Submit))
	mux.Handle("POST /api/update-profile", protected(profileHandler.Update))
	mux.Handle("POST /api/image-upload", protected(mediaHandler.Upload))
	mux.HandleFunc("GET /api/image/{id}", mediaHandler.Get)
	mux.Handle("DELETE /api/image-delete/{id}", protected(mediaHandler.Delete))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(pool))
	mux.Handle("GET /metrics", metrics.Handler())

	handler := observability.RequestLoggingMiddleware(logger, metrics, mux)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	return observability.RecoverMiddleware(logger, handler), nil
}

// NewAuthService wires the Postgres credential store, bcrypt and the token
// issuer with the configured lockout and token lifetimes.
func NewAuthService(cfg Config, pool db.Pool, logger *observability.Logger) (*auth.Service, error) {
	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	service := auth.NewService(auth.NewRepository(pool), auth.NewBcryptHasher(cfg.BcryptCost), issuer, logger)
	service.WithSecurityConfig(
		cfg.LoginMaxAttempts,
		cfg.LoginLockDuration,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)
	return service, nil
}

func healthHandler(pool db.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := pool.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
