// Command server wires every layer of the runtime together and starts
// listening, the Go shape of the teacher's main.go (connection pool, then
// repositories, then services, then the mux) generalized to this runtime's
// extra layers (Universe, WebSocketController, session issuer) and upgraded
// to structured logging and graceful shutdown per SPEC_FULL.md's ambient
// stack expansion.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
	"github.com/codingarctic/loreshifter-runtime/internal/applog"
	"github.com/codingarctic/loreshifter-runtime/internal/auth"
	"github.com/codingarctic/loreshifter-runtime/internal/config"
	"github.com/codingarctic/loreshifter-runtime/internal/httpapi"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/universe"
	"github.com/codingarctic/loreshifter-runtime/internal/wsctl"
)

// sessionTTL is the lifetime minted session tokens carry; spec.md names no
// explicit value, so a generous one is applied here rather than in the auth
// package itself, since reconnect/grace-period durations are this process's
// concern.
const sessionTTL = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	apperr.LogStacktrace = cfg.LogStacktrace

	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	log := applog.New(cfg.LogJSON, logLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	userRepo := store.NewUserRepository()
	worldRepo := store.NewWorldRepository()
	gameRepo := store.NewGameRepository()
	playerRepo := store.NewPlayerRepository()
	chatRepo := store.NewChatRepository()
	messageRepo := store.NewMessageRepository()

	beginner := store.PoolBeginner{Pool: pool}

	uni := universe.New(pool, beginner, userRepo, worldRepo, gameRepo, playerRepo, chatRepo, messageRepo, cfg.KickPlayerAfter())
	defer uni.Stop()

	ctl := wsctl.NewController(pool, uni)
	go ctl.Listen()

	issuer := auth.NewIssuer(cfg.JWTSecret, sessionTTL)

	srv := httpapi.New(uni, ctl, pool, userRepo, issuer, cfg)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      srv.Routes(log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
