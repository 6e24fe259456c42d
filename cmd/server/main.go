package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dbmon/api/server"
	"dbmon/internal/config"
	"dbmon/internal/elasticsearch"
	"dbmon/internal/logger"
	"dbmon/internal/monitor"
)

var (
	configFile = flag.String("config", "etc/config.yaml", "Path to configuration file")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	// Prefer the config file; fall back to environment variables.
	var cfg *config.Config
	if _, err := os.Stat(*configFile); err == nil {
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Printf("Failed to load config from file: %v\n", err)
			fmt.Println("Falling back to environment variables...")
			cfg = config.Load()
		}
	} else {
		fmt.Println("Config file not found, loading from environment variables...")
		cfg = config.Load()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting SQL Server monitor",
		zap.String("version", version),
		zap.String("config_file", *configFile),
		zap.String("mode", cfg.Collector.Mode),
	)

	esClient, err := elasticsearch.NewClient(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to initialize Elasticsearch", zap.Error(err))
	}
	if err := esClient.WaitForCluster(30 * time.Second); err != nil {
		logger.Fatal("Elasticsearch did not become ready", zap.Error(err))
	}
	if err := esClient.CreateIndexTemplates(); err != nil {
		logger.Warn("Failed to create index templates", zap.Error(err))
	}

	svc, err := monitor.NewService(cfg, esClient)
	if err != nil {
		logger.Fatal("Failed to initialize monitor service", zap.Error(err))
	}
	defer svc.Close()

	if cfg.Collector.Mode == config.ModeLive {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := svc.CheckSQL(ctx); err != nil {
			logger.Warn("SQL Server not reachable at startup", zap.Error(err))
		} else {
			logger.Info("SQL Server connection verified")
		}
		cancel()
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	svc.Start(schedulerCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	go func() {
		httpServer := server.NewServer(svc, cfg)
		logger.Info("Starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.Run(httpAddr); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("Monitor service is running", zap.Int("http_port", cfg.Server.HTTPPort))

	sig := <-sigChan
	logger.Info("Received signal, shutting down...", zap.String("signal", sig.String()))

	stopScheduler()
	logger.Info("Monitor service stopped")
}
