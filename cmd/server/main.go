// Command server runs the bookhaven HTTP server.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/m-novikov/bookhaven/internal/config"
	"github.com/m-novikov/bookhaven/internal/enrich"
	"github.com/m-novikov/bookhaven/internal/httpserver"
	"github.com/m-novikov/bookhaven/internal/limiter"
	"github.com/m-novikov/bookhaven/internal/localstore"
	"github.com/m-novikov/bookhaven/internal/migrate"
	"github.com/m-novikov/bookhaven/internal/migration"
	"github.com/m-novikov/bookhaven/internal/repository/postgres"
	"github.com/m-novikov/bookhaven/internal/service"
	"github.com/m-novikov/bookhaven/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		return err
	}
	logger.Info("migrations applied")

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := &postgres.DB{Pool: pool}

	users := postgres.NewUserRepo(db)
	stores := postgres.NewStoreRepo(db)
	lim := limiter.NewPG(pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	auth := service.NewAuthService(users, []byte(cfg.JWTKey), cfg.AccessTTL, lim)

	local := localstore.New(cfg.DataDir)
	ctrl := session.New(local, stores, logger)
	defer ctrl.Close()

	// resume the previous session when a live token is on disk
	if tok, err := local.LoadToken(); err == nil {
		if uid, perr := auth.ParseToken(tok.AccessToken); perr == nil {
			if _, serr := ctrl.SignIn(ctx, uid); serr != nil {
				logger.Warn("session resume failed", zap.Error(serr))
			} else {
				logger.Info("session resumed", zap.String("user_id", uid.String()))
			}
		}
	}

	var enricher enrich.Enricher
	if cfg.AnthropicAPIKey != "" {
		enricher = enrich.NewClaude(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		logger.Info("enrichment enabled", zap.String("model", cfg.AnthropicModel))
	}

	srv := httpserver.New(cfg.ListenAddr, httpserver.Deps{
		Auth:     auth,
		Ctrl:     ctrl,
		Migrator: migration.New(stores, logger),
		Enricher: enricher,
		Local:    local,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.PrettyLog {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewExample()
	}
	return logger
}
