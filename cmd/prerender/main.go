// Command prerender renders the configured sites into self-contained HTML.
//
// Usage:
//
//	prerender                               # ./prerender.yaml, render once
//	prerender -config site.yaml -strict     # exit 1 if any URL failed
//	prerender -config site.yaml -serve      # HTTP render service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/prerender/prerender"
)

var errRunFailed = errors.New("one or more URLs failed")

func main() {
	configPath := flag.String("config", prerender.DefaultConfigPath, "path to the YAML config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	serve := flag.Bool("serve", false, "serve POST /render instead of rendering once")
	addr := flag.String("addr", ":8080", "listen address for -serve")
	allowPrivate := flag.Bool("allow-private", false, "let -serve render loopback and private addresses")
	strict := flag.Bool("strict", false, "exit 1 when any URL fails")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if *serve {
		err = runServe(ctx, logger, *configPath, *addr, *allowPrivate)
	} else {
		err = runOnce(ctx, logger, *configPath, *strict)
	}
	if err != nil {
		logger.Error("prerender: fatal", "error", err)
		os.Exit(1)
	}
}

func load(logger *slog.Logger, path string) (*prerender.Runner, error) {
	cfg, err := prerender.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	r, err := prerender.New(cfg, prerender.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}

func runOnce(ctx context.Context, logger *slog.Logger, path string, strict bool) error {
	r, err := load(logger, path)
	if err != nil {
		return err
	}
	defer r.Close()

	rep := r.Run(ctx)
	if strict && rep.Failed() {
		return fmt.Errorf("%w: %d of %d", errRunFailed, rep.Summary.Failed, rep.Summary.Failed+rep.Summary.Completed)
	}
	return nil
}

func runServe(ctx context.Context, logger *slog.Logger, path, addr string, allowPrivate bool) error {
	r, err := load(logger, path)
	if err != nil {
		return err
	}
	defer r.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(allowPrivate),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("prerender: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("prerender: stopped")
	return nil
}
