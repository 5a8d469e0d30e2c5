// Command mirror pulls observations collected by a remote ingest host
// into the local database, then clears the remote table.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gtfs-punctuality/internal/config"
	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/mirror"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}
	if cfg.SSHAddr == "" || cfg.SSHUser == "" || cfg.SSHKeyPath == "" {
		logger.Error("VPS_ADDR, VPS_USERNAME and PRIVATE_KEY_PATH must be set")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("db open error", "err", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		logger.Error("db ping error", "err", err)
		os.Exit(1)
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		logger.Error("schema error", "err", err)
		os.Exit(1)
	}

	m := mirror.New(mirror.Config{
		Addr:       cfg.SSHAddr,
		User:       cfg.SSHUser,
		KeyPath:    cfg.SSHKeyPath,
		DBName:     cfg.RemoteDBName,
		DBUser:     cfg.RemoteDBUser,
		DBPassword: cfg.RemoteDBPassword,
		Table:      cfg.RealtimeTable,
	}, logger)

	n, err := m.Pull(ctx, sqlDB)
	if err != nil {
		logger.Error("mirror failed", "err", err, "inserted", n)
		os.Exit(1)
	}
	logger.Info("mirror complete", "inserted", n)
}
