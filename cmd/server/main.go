package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-insights/internal/auth"
	"expense-insights/internal/config"
	"expense-insights/internal/handlers"
	"expense-insights/internal/log"
	"expense-insights/internal/storage"
	"expense-insights/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: level, Format: cfg.LogFormat, Component: log.ComponentApp, Output: os.Stdout})
	log.SetDefault(logger)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DataBackend, err)
	}
	defer store.Close()
	logger.Info("store ready", "backend", cfg.DataBackend)

	if err := bootstrapAdmin(ctx, store, cfg.AdminUser, cfg.AdminPassword, logger); err != nil {
		return err
	}

	h := handlers.NewHandlers(store, cfg.TemplateDir, cfg.SecureCookie,
		handlers.WithSessionDuration(cfg.SessionDuration))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, cfg.StaticDir, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		cleanSessions(gctx, store, cfg.SessionCleanupInterval, logger.WithComponent(log.ComponentSession))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DataBackend == config.BackendPostgres {
		return postgres.New(ctx, cfg.DatabaseURL)
	}
	return storage.NewDB(cfg.DBPath)
}

// bootstrapAdmin creates the configured account on first run, when the store has no users.
func bootstrapAdmin(ctx context.Context, store storage.Store, username, password string, logger *log.Logger) error {
	if username == "" {
		return nil
	}
	count, err := store.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	user, err := store.CreateUser(ctx, username, hash)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	logger.Info("created initial user", "username", user.Username, log.FieldUserID, user.ID)
	return nil
}

// cleanSessions deletes expired sessions every interval until ctx is done.
func cleanSessions(ctx context.Context, store storage.Store, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("session cleanup failed", log.FieldError, err)
				}
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func setupRouter(h *handlers.Handlers, staticDir string, logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(handlers.SecurityHeaders)

	r.Get("/healthz", h.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/signup", h.SignupForm)
	r.Post("/signup", h.Signup)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/", h.Dashboard)
		r.Get("/history", h.History)
		r.Get("/expenses/new", h.CreateExpenseForm)
		r.Post("/expenses/new", h.CreateExpense)
		r.Get("/expenses/{id}/edit", h.EditExpenseForm)
		r.Post("/expenses/{id}/edit", h.UpdateExpense)
		r.Post("/expenses/{id}/delete", h.DeleteExpense)
		r.Get("/insights", h.Insights)
		r.Get("/api/insights", h.APIInsights)
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
	})

	return r
}
