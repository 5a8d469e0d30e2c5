// Command import fetches the static GTFS archive and replaces the
// reference schedule table. Run it whenever the agency publishes a new
// schedule; the realtime ingest joins against whatever is loaded here.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gtfs-punctuality/internal/config"
	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/sched"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", "err", err)
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

	source := cfg.ScheduleURL
	if len(os.Args) > 1 {
		source = os.Args[1]
	}

	imp := sched.NewImporter(source, cfg.Location, logger)
	n, err := imp.Import(ctx, sqlDB)
	if err != nil {
		logger.Error("schedule import failed", "err", err)
		os.Exit(1)
	}
	logger.Info("schedule import complete", "events", n)
}
