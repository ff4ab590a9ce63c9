package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/linaldb/linal/internal/config"
	"github.com/linaldb/linal/internal/server"
	"github.com/linaldb/linal/pkg/engine"
	"github.com/linaldb/linal/pkg/storage"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting LINAL",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("data_root", cfg.Storage.DataRoot),
	)

	adapter, err := storage.NewSQLite(cfg.Storage.DataRoot, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage adapter", zap.Error(err))
	}
	defer adapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, adapter, cfg.Storage.DefaultDatabase, logger)
	if err != nil {
		logger.Fatal("failed to bootstrap engine", zap.Error(err))
	}

	srv := server.New(cfg, eng, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("stopped gracefully")
}

func printHelp() {
	fmt.Printf(`LINAL - In-Memory Analytical Engine for Relational + Linear-Algebra Data

Usage:
  linal [options]

Options:
  -config string     Path to configuration file (default: linal.yaml)
  -help              Show this help message
  -version           Show version information

Environment Variables:
  LINAL_DATA_ROOT           Data root directory
  LINAL_DEFAULT_DATABASE    Default database name
  LINAL_HTTP_PORT           HTTP port
  LINAL_LOG_LEVEL           Log level (debug, info, warn, error)

Examples:
  linal                           # Start with default config
  linal -config /etc/linal.yaml   # Start with custom config
`)
}

func printVersion() {
	fmt.Printf(`LINAL %s
Commit: %s
Built: %s
Go Version: %s
OS/Arch: %s/%s
`,
		version,
		commit,
		date,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}
