package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/bridge"
	"github.com/wso2/consent-widget/internal/host"
	"github.com/wso2/consent-widget/internal/storage"
	"github.com/wso2/consent-widget/internal/system/config"
	"github.com/wso2/consent-widget/internal/widget"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_date": buildDate,
	}).Info("Starting Consent Widget Engine...")

	// Load configuration
	// Priority: CONFIG_PATH env var > repository/conf/deployment.yaml > cmd/widget/repository/conf/deployment.yaml
	configPath := os.Getenv("CONFIG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.WithFields(logrus.Fields{
		"config_path": configPath,
		"log_level":   logger.GetLevel().String(),
	}).Info("Configuration loaded successfully")

	// Initialize the visitor store backend
	store, err := openStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize visitor store")
	}
	logger.WithField("backend", cfg.Storage.Backend).Info("Visitor store initialized")

	// The page context the engine runs against. Listener wiring and
	// timers go through the host abstraction.
	page := host.NewSimulatedPage(cfg.Widget.PageURL)

	engine := widget.New(cfg, page, store, logger)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()
	if serviceErr := engine.Init(initCtx); serviceErr != nil {
		logger.WithField("code", serviceErr.Code).Fatal("Widget engine failed to initialize")
	}
	logger.Info("Widget engine initialized")

	// Configure the bridge HTTP server
	router := bridge.SetupRouter(engine)
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    serverTimeout(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:   serverTimeout(cfg.Server.WriteTimeout, 15*time.Second),
		IdleTimeout:    serverTimeout(cfg.Server.IdleTimeout, 60*time.Second),
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("address", server.Addr).Info("Starting bridge HTTP server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Flush pending analytics before exit
	engine.Shutdown(5 * time.Second)

	logger.Info("Widget engine exited gracefully")
}

func openStore(cfg *config.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "mysql":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewMySQLStore(ctx, storage.MySQLOptions{
			DSN:             cfg.Storage.Database.GetDSN(),
			MaxOpenConns:    cfg.Storage.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Database.ConnMaxLifetime,
		}, logger)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewFileStore(cfg.Storage.FilePath)
	}
}

func serverTimeout(configured, fallback time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return fallback
}
