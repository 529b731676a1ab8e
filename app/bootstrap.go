package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"docvault/internal/auth"
	"docvault/internal/config"
	"docvault/internal/db"
	"docvault/internal/document"
	"docvault/internal/ingestion"
	"docvault/internal/maintenance"
	"docvault/internal/observability"
	"docvault/internal/storage"
)

type Options struct {
	RunMigrations bool
	StartCron     bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *observability.Logger
	Close   func() error
}

// Build wires configuration, storage, the auth core and the resource modules
// into one http.Handler plus the scheduled sweeps.
func Build(ctx context.Context, cfg *config.Config, options Options) (*Runtime, error) {
	logger := observability.NewLogger(cfg.AppEnv)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var redisClient *redis.Client
	var attemptStore auth.AttemptStore
	if cfg.Auth.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Auth.RedisURL)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		attemptStore = auth.NewRedisAttemptStore(redisClient, cfg.Auth.LockoutWindow)
	} else {
		attemptStore = auth.NewMemoryAttemptStore(cfg.Auth.LockoutWindow)
	}

	blobs, err := storage.NewClient(ctx, storage.Options{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	userRepo := auth.NewRepository(database)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	throttle := auth.NewThrottle(attemptStore, cfg.Auth.LockoutThreshold, cfg.Auth.LockoutWindow)
	revocations := auth.NewRevocationStore(database)
	authService := auth.NewService(userRepo, tokens, throttle, revocations)
	authHandler := auth.NewHandler(authService, logger)
	userAdminHandler := auth.NewUserAdminHandler(userRepo, logger)
	authenticate := auth.NewAuthenticate(tokens, revocations, userRepo)

	documentRepo := document.NewRepository(database)
	documentHandler := document.NewHandler(documentRepo, blobs, logger)

	ingestionRepo := ingestion.NewRepository(database)
	processor := ingestion.NewProcessor(cfg.Processor.URL, cfg.Processor.Timeout)
	ingestionHandler := ingestion.NewHandler(ingestionRepo, documentRepo, processor, logger)

	cleanupHandler := maintenance.NewCleanupHandler(revocations, ingestionRepo, logger, cfg.Auth.CronSecret, 30*24*time.Hour)

	protect := func(handler http.HandlerFunc, roles ...auth.Role) http.Handler {
		return authenticate.Middleware(auth.RequireRoles(roles...)(handler))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.Handle("POST /auth/logout", protect(authHandler.Logout))

	mux.Handle("GET /users", protect(userAdminHandler.List, auth.RoleAdmin))
	mux.Handle("PATCH /users/{id}/role", protect(userAdminHandler.UpdateRole, auth.RoleAdmin))

	mux.Handle("POST /documents", protect(documentHandler.Upload, auth.RoleAdmin, auth.RoleEditor))
	mux.Handle("GET /documents", protect(documentHandler.List))
	mux.Handle("GET /documents/{id}", protect(documentHandler.Get))
	mux.Handle("GET /documents/{id}/download", protect(documentHandler.Download))
	mux.Handle("PATCH /documents/{id}", protect(documentHandler.Update, auth.RoleAdmin, auth.RoleEditor))
	mux.Handle("DELETE /documents/{id}", protect(documentHandler.Delete, auth.RoleAdmin))

	mux.Handle("POST /ingestions", protect(ingestionHandler.Create, auth.RoleAdmin, auth.RoleEditor))
	mux.Handle("GET /ingestions", protect(ingestionHandler.List))
	mux.Handle("GET /ingestions/{id}", protect(ingestionHandler.Get))
	mux.Handle("PATCH /ingestions/{id}/status", protect(ingestionHandler.UpdateStatus, auth.RoleAdmin))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	metrics := observability.NewMetrics()
	mux.Handle("GET /metrics", metrics.Handler())

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, metrics, mux))

	var scheduler *cron.Cron
	if options.StartCron {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Auth.SweepSchedule, func() {
			sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			deleted, err := revocations.SweepExpired(sweepCtx)
			if err != nil {
				logger.Error("revocation_sweep_failed", map[string]any{"error": err.Error()})
				return
			}
			logger.Info("revocation_sweep_completed", map[string]any{"deleted": deleted})
		}); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("schedule revocation sweep: %w", err)
		}
		if _, err := scheduler.AddFunc("@daily", func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := cleanupHandler.Run(cleanupCtx); err != nil {
				logger.Error("scheduled_cleanup_failed", map[string]any{"error": err.Error()})
			}
		}); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("schedule cleanup: %w", err)
		}
		scheduler.Start()
	}

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			if scheduler != nil {
				scheduler.Stop()
			}
			observability.FlushSentry()
			logger.Sync()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
