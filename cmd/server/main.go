// Command gn-server serves notes over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gophnote/internal/config"
	"github.com/and161185/gophnote/internal/crypto"
	"github.com/and161185/gophnote/internal/migrate"
	"github.com/and161185/gophnote/internal/repository"
	"github.com/and161185/gophnote/internal/repository/memory"
	"github.com/and161185/gophnote/internal/repository/postgres"
	httpserver "github.com/and161185/gophnote/internal/server/http"
	"github.com/and161185/gophnote/internal/service"
	"github.com/and161185/gophnote/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, prepares the store and serves HTTP until a signal arrives.
func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Rollback {
		if err := migrate.Down(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate down", zap.Error(err))
		}
		logger.Info("rolled back one migration")
		return
	}

	// Repositories
	var (
		notes  repository.NoteRepository
		shares repository.ShareRepository
	)
	switch cfg.Store {
	case config.StoreMemory:
		notes, shares = memory.NewNoteRepo(), memory.NewShareRepo()
	default:
		ver, err := migrate.Up(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		logger.Info("schema ready", zap.Int64("version", ver))

		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("postgres.New", zap.Error(err))
		}
		defer db.Close()
		notes, shares = postgres.NewNoteRepo(db), postgres.NewShareRepo(db)
	}

	// Services
	shareSvc := service.NewShareService(shares)
	noteSvc := service.NewNoteService(
		notes, shareSvc,
		crypto.NewHasher([]byte(cfg.PasswordPepper)),
		session.NewIssuer([]byte(cfg.SessionKey), cfg.SessionTTL),
	)

	app, err := httpserver.New(noteSvc, shareSvc, logger, cfg.SecureCookie)
	if err != nil {
		logger.Fatal("templates", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCert != "" {
			logger.Info("listening (TLS)", zap.String("addr", cfg.Addr))
			errCh <- srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			return
		}
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
