// Command reconcile recomputes stale prep costs once and exits. With -all it
// recomputes every prep, which repairs drift left by out-of-band edits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"prepcost/internal/config"
	"prepcost/internal/costing"
	"prepcost/internal/db"
	applog "prepcost/internal/log"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	all := flags.Bool("all", false, "recompute every prep, not only stale ones")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}
	if err := applog.SetFormat(cfg.Logging.Format); err != nil {
		return fmt.Errorf("set log format: %w", err)
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	store := costing.NewStore(database, nil)
	scheduler := costing.NewScheduler(store, nil, costing.Options{
		MaxAttempts:  cfg.Costing.MaxAttempts,
		RetryBackoff: cfg.Costing.RetryBackoff,
		Concurrency:  cfg.Costing.Concurrency,
		PrepTimeout:  cfg.Costing.PrepTimeout,
	})

	report, err := scheduler.Reconcile(ctx, *all)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	fmt.Fprintf(out, "reconciled %d prep(s)\n", len(report.Updated))
	for _, failure := range report.Failed {
		fmt.Fprintf(out, "prep %d: %s: %s\n", failure.PrepID, failure.Code, failure.Error)
	}
	if !report.OK() {
		return fmt.Errorf("%d prep(s) could not be recomputed", len(report.Failed))
	}
	return nil
}
