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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the JSON configuration file")
	flag.Parse()

	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(*configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			os.Exit(1)
		}

		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Nepenthes has shut down.")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ensureDataDir creates the directory holding a file-backed SQLite database.
func ensureDataDir(dataSource string) error {
	path, _, _ := strings.Cut(dataSource, "?")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// run hosts one server cycle and returns when the server is shut down or
// restarted.
func run(configPath string, actionChan chan string) (string, error) {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...", "version", Version)

	if err = ensureDataDir(config.Server.DatabasePath); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to setup template schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to setup auth schema: %w", err)
	}

	server, err := NewServer(cm, logger, db, actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watcher *TemplateWatcher
	if config.Server.TemplateDir != "" {
		watcher, err = NewTemplateWatcher(server.store, server.renderer.Cache(), config.Server.TemplateDir, logger)
		if err != nil {
			logger.Error("Failed to create template watcher", "error", err)
		} else {
			if n, err := watcher.ImportAll(ctx); err != nil {
				logger.Error("Initial template import failed", "dir", config.Server.TemplateDir, "error", err)
			} else {
				logger.Info("Imported templates from disk", "dir", config.Server.TemplateDir, "changed", n)
			}
			if config.Server.WatchTemplates {
				go func() {
					if err := watcher.Watch(ctx); err != nil {
						logger.Error("Template watcher stopped", "error", err)
					}
				}()
			}
		}
	}

	scheduler := NewCacheScheduler(server.renderer, logger)
	if err = scheduler.Start(ctx, config.Server.CacheClearSchedule); err != nil {
		logger.Error("Failed to start cache scheduler", "error", err)
	}

	apiHttpServer := &http.Server{
		Addr:              config.Server.ApiAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	cancel()
	scheduler.Stop()
	if watcher != nil {
		if err = watcher.Close(); err != nil {
			logger.Error("Failed to close template watcher", "error", err)
		}
	}

	server.Close()
	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}
