package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crucial707/hci-auth/internal/auth"
	"github.com/crucial707/hci-auth/internal/config"
	"github.com/crucial707/hci-auth/internal/db"
	"github.com/crucial707/hci-auth/internal/handlers"
	"github.com/crucial707/hci-auth/internal/middleware"
	"github.com/crucial707/hci-auth/internal/password"
	"github.com/crucial707/hci-auth/internal/ratelimit"
	"github.com/crucial707/hci-auth/internal/repo"
	"github.com/crucial707/hci-auth/internal/scheduler"
	"github.com/crucial707/hci-auth/internal/token"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// sweepTimeout bounds one revocation sweep.
const sweepTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database FIRST
	database, err := db.Connect(ctx, cfg.DatabaseDriver, cfg.DSN(), cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("connected to database", "driver", cfg.DatabaseDriver, "host", cfg.DBHost)

	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	limiter, memLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up rate limiter", "error", err)
		os.Exit(1)
	}

	svc, err := newService(database, cfg, limiter)
	if err != nil {
		slog.Error("failed to set up auth service", "error", err)
		os.Exit(1)
	}

	// Background jobs
	sched := scheduler.New()
	clock := scheduler.NewRevocationClock(svc.Sweep, sweepTimeout)
	sched.Every(cfg.RevocationInterval, clock.Job())
	if memLimiter != nil {
		sched.Every(memLimiter.Window(), func() {
			if n := memLimiter.Sweep(time.Now()); n > 0 {
				slog.Debug("rate limiter: evicted idle keys", "keys", n)
			}
		})
	}
	sched.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(svc, database, cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server LAST
	go func() {
		useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
		slog.Info("starting server", "addr", srv.Addr, "tls", useTLS, "trusted_proxies", len(cfg.TrustedProxies))
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		slog.Warn("background jobs still running at exit")
	}
}

func setupLogger(format string) {
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		h = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(h))
}

// newLimiter returns the configured limiter. The second value is set only for
// the in-memory backend, which needs periodic eviction.
func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, *ratelimit.Memory, error) {
	if cfg.RateLimitBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		slog.Info("rate limiter: redis", "addr", cfg.RedisAddr, "quota", cfg.RateLimitQuota, "window", cfg.RateLimitWindow.String())
		return ratelimit.NewRedis(client, cfg.RateLimitQuota, cfg.RateLimitWindow), nil, nil
	}
	mem := ratelimit.NewMemory(cfg.RateLimitQuota, cfg.RateLimitWindow)
	slog.Info("rate limiter: memory", "quota", cfg.RateLimitQuota, "window", cfg.RateLimitWindow.String())
	return mem, mem, nil
}

func newService(database *sql.DB, cfg config.Config, limiter ratelimit.Limiter) (*auth.Service, error) {
	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	secret := []byte(cfg.JWTSecret)
	return auth.NewService(
		repo.NewUserRepo(database),
		hasher,
		token.NewIssuer(secret, cfg.JWTIssuer),
		token.NewValidator(secret, cfg.JWTIssuer),
		limiter,
		cfg.TokenTTL,
	)
}

func newRouter(svc *auth.Service, database *sql.DB, cfg config.Config) http.Handler {
	// Already validated by config.Load.
	trusted, _ := cfg.TrustedProxyPrefixes()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.TrustedRealIP(trusted))
	r.Use(middleware.RequestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			handlers.JSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	authHandler := &handlers.AuthHandler{Service: svc}
	userHandler := &handlers.UserHandler{Repo: repo.NewUserRepo(database)}

	// Public: limited per client IP
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
		r.Use(middleware.RateLimit(svc))
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
	})

	// Protected: limited per user
	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(svc))
		r.Use(middleware.RateLimit(svc))
		r.Get("/profile", authHandler.Profile)
		r.Post("/auth/revoke", authHandler.Revoke)
		r.Get("/users", userHandler.ListUsers)
	})

	return r
}
