package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eventwish/fraudguard/pkg/config"
	"github.com/eventwish/fraudguard/pkg/dependency_container"
	infraLogger "github.com/eventwish/fraudguard/pkg/infra/logger"
	"github.com/eventwish/fraudguard/pkg/server"
	"github.com/eventwish/fraudguard/pkg/server/router"
	"github.com/eventwish/fraudguard/pkg/version"
	"github.com/joho/godotenv"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, logCloser, err := infraLogger.NewLogger(infraLogger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logCloser.Close() }()

	logger.WithField("version", version.Version).Info("starting " + version.AppName)

	container, err := dependency_container.NewContainer(dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return
	}
	defer container.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.Start(ctx, cfg.Alerts.Workers)

	srv := server.NewBaseServer(cfg, logger).WithRouters(
		router.NewAPIRouter(container.MiddlewareTransport, container.HandlerTransport),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server...")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server failed")
		}
	}

	cancel()
	if err := srv.Shutdown(); err != nil {
		logger.WithError(err).Error("error shutting down server")
		return
	}
	logger.Info("server gracefully stopped")
}
