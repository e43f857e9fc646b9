package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/example/matlab-dojo/internal/api"
	"github.com/example/matlab-dojo/internal/config"
	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/events"
	"github.com/example/matlab-dojo/internal/storage/kv"
	"github.com/example/matlab-dojo/internal/storage/local"
	"github.com/example/matlab-dojo/internal/storage/postgres"
	"github.com/example/matlab-dojo/internal/storage/sqlite"
)

const pidFileName = "dojod.pid"

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dojoDir, err := config.EnsureDojoDir()
	if err != nil {
		return fmt.Errorf("ensure dojo dir: %w", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogging(dojoDir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	pidPath := filepath.Join(dojoDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	catalog, err := loadCatalog(cfg, dojoDir)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	store, err := openStore(cfg, dojoDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.Events.RabbitMQURL, nil)
		if err != nil {
			slog.Warn("event publisher unavailable, continuing without analytics", "error", err)
		} else {
			publisher = amqpPub
		}
	}

	ctx := context.Background()
	server, err := api.NewServer(ctx, api.ServerConfig{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
		Events:  publisher,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

// loadCatalog reads the challenge pack, preferring the configured path
// and falling back to ~/.matlab-dojo/modules.
func loadCatalog(cfg *config.Config, dojoDir string) (*content.Catalog, error) {
	path := cfg.Content.ModulesPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(dojoDir, "modules")
	}
	return content.NewLoader(path).LoadCatalog()
}

func openStore(cfg *config.Config, dojoDir string) (kv.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		path := cfg.Storage.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dojoDir, "data", path)
		}
		return sqlite.Open(path)
	case "postgres":
		return postgres.Open(context.Background(), cfg.Storage.PostgresURL)
	default:
		path := cfg.Storage.LocalPath
		if path == "" {
			path = filepath.Join(dojoDir, "data")
		}
		return local.New(path)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(dojoDir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(dojoDir, "logs", "dojod.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// JSON to the log file, text to stderr for foreground runs.
	handler := &multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}),
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		},
	}
	slog.SetDefault(slog.New(handler))

	return logFile, nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// multiHandler fans log records out to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
