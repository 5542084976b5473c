package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "go.uber.org/automaxprocs"

	"report-renderer/internal/config"
	"report-renderer/internal/http/server"
	"report-renderer/internal/infra/cache"
	"report-renderer/internal/infra/logging"
	"report-renderer/internal/infra/postgres"
	"report-renderer/internal/infra/ratelimit"
	"report-renderer/internal/render"
	"report-renderer/internal/report"
	"report-renderer/internal/tokens"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	engine, err := render.New(cfg)
	if err != nil {
		logging.Error("Failed to create render engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	defer func() {
		if err := render.Close(engine); err != nil {
			logging.Warn("Render engine close failed", "error", err)
		}
	}()

	var pdfCache report.Cache
	if cfg.Cache.PDFCacheEnabled {
		c, err := cache.Dial(ctx, cfg.Cache.RedisHost, cfg.Cache.PDFCacheDB, cfg.Cache.PDFCacheTTL)
		if err != nil {
			logging.Warn("PDF cache disabled, Redis unreachable", "addr", cfg.Cache.RedisHost, "error", err)
		} else {
			defer c.Close()
			pdfCache = c
		}
	}

	var tokenCache *tokens.Cache
	if cfg.Auth.Enabled {
		db := postgres.NewDB()
		defer db.Close()
		tokenCache = startTokenReloader(ctx, cfg, db)
	}

	store := ratelimit.NewStore(ratelimit.RedisConfig{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.RateLimitDB})
	defer store.Close()

	app := server.New(server.Deps{
		Config:  cfg,
		Service: report.NewService(cfg, engine, pdfCache),
		Tokens:  tokenCache,
		Store:   store,
		Version: version,
	})

	logging.Info("Starting report renderer", "addr", cfg.Server.Host+cfg.Server.Port, "engine", engine.Name(), "version", version)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startTokenReloader loads API tokens once and keeps them fresh until ctx
// is done. A failed first load leaves the cache not ready; keyed requests
// get 503 until a reload succeeds.
func startTokenReloader(ctx context.Context, cfg config.Config, db *postgres.DB) *tokens.Cache {
	tokenCache := tokens.NewCache()
	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid token database settings", "error", err)
		return tokenCache
	}

	reloader := tokens.NewReloader(postgres.NewTokenRepository(db, dsn), tokenCache, cfg.Auth.ReloadInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
	return tokenCache
}

// startServer starts the Fiber app and blocks until a shutdown signal.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
