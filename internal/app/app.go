package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-api/internal/config"
	"identity-api/internal/database"
	"identity-api/internal/handler"
	"identity-api/internal/middleware"
	"identity-api/internal/model"
	"identity-api/internal/repository"
	"identity-api/internal/router"
	"identity-api/internal/service"
)

type auditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// stores groups the persistence backends selected by STORE_DRIVER.
type stores struct {
	users  service.UserStore
	roles  service.RoleLookup
	audit  auditStore
	health healthChecker
}

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	backends, cleanup, err := openStores(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	appHandler, err := buildHandler(cfg, backends)
	if err != nil {
		cleanup()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appHandler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		cleanupFuncs: []func(){cleanup},
	}, nil
}

func openStores(ctx context.Context, cfg *config.Config) (stores, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; accounts are lost on restart")
		memory := repository.NewMemoryStore()
		return stores{users: memory, roles: memory, audit: memory, health: memory}, func() {}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return stores{}, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return stores{}, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	return stores{
		users:  repository.NewUserRepository(db.Pool),
		roles:  repository.NewRoleRepository(db.Pool),
		audit:  repository.NewAuditRepository(db.Pool),
		health: db,
	}, db.Close, nil
}

func buildHandler(cfg *config.Config, backends stores) (http.Handler, error) {
	tokenIssuer, err := service.NewTokenIssuer(cfg.Token, backends.roles)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	hasher := service.NewPasswordHasher(cfg.Password.BcryptCost)
	verifier := service.NewPasswordVerifier(backends.users, hasher, cfg.Lockout)
	auditService := service.NewAuditService(backends.audit)

	authService := service.NewAuthService(backends.users, hasher, verifier, tokenIssuer, cfg.Password, auditService)
	authService.SetDefaultRole(cfg.DefaultRole)

	return router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(authService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler(backends.health),
		Docs:   handler.NewDocsHandler(),
	}), nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
