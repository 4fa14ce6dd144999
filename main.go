package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wfunc/bullscows/config"
	"github.com/wfunc/bullscows/logger"
	"github.com/wfunc/bullscows/monitor"
	"github.com/wfunc/bullscows/persistence"
	"github.com/wfunc/bullscows/server"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// 先用默认配置，读取配置失败时也能输出日志
	_ = logger.Init(logger.Options{})

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development}); err != nil {
		logger.Log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database
	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	logger.Log.Infof("Database connection successful (driver=%s).", cfg.Database.Driver)

	opts := server.Options{
		Config:  cfg,
		Store:   store,
		Monitor: monitor.NewMonitor(cfg.Metrics.Namespace),
	}
	if cfg.Archive.Enabled {
		archive, err := persistence.NewPostgresArchive(cfg.Archive.DSN)
		if err != nil {
			logger.Log.Fatalf("Failed to open game archive: %v", err)
		}
		defer archive.Close()
		opts.Archive = archive
		opts.Stats = archive
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 重启后恢复进行中房间的超时检查
	if err := gameServer.Arbitrator().Resume(ctx); err != nil {
		logger.Log.Errorf("Failed to resume turn timers: %v", err)
	}

	if err := gameServer.Run(ctx); err != nil {
		logger.Log.Errorf("Server stopped: %v", err)
	}
	logger.Log.Info("Game server stopped.")
}

func openStore(cfg config.DatabaseConfig) (persistence.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, err
		}
		return persistence.OpenSQLite(cfg.SQLite.Path)
	case "postgres":
		return persistence.OpenPostgres(cfg.Postgres)
	default:
		return persistence.NewMemoryStore(), nil
	}
}
