package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
)

// Run is the process entrypoint: load config, build the app, serve until
// SIGINT/SIGTERM, then drain.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.fail", "err", err)
		return err
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app.run.fail", "err", err)
		return err
	}
	return nil
}
