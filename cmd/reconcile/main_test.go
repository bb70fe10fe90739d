package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"prepcost/internal/config"
	"prepcost/internal/costing"
	"prepcost/internal/db"
	"prepcost/models"
)

func TestRunRefreshesStalePreps(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "reconcile.db")
	t.Setenv("DATABASE_URL", url)
	t.Setenv("CONFIG_FILE", "")

	ctx := context.Background()
	database, err := db.Initialize(config.DatabaseConfig{URL: url})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := costing.NewStore(database, nil)
	svc := costing.NewService(store, costing.NewScheduler(store, nil, costing.DefaultOptions()))

	garlic := &models.Ingredient{Name: "Garlic", Unit: "g", CostPerUnit: decimal.RequireFromString("0.02"), IsActive: true}
	if err := svc.CreateIngredient(ctx, garlic); err != nil {
		t.Fatalf("create ingredient: %v", err)
	}
	paste, err := svc.CreatePrep(ctx, costing.CreatePrepInput{
		Name:             "Green Curry Paste",
		BatchYieldAmount: decimal.NewFromInt(500),
		BatchYieldUnit:   "g",
		Ingredients:      []costing.PrepEdgeInput{{IngredientID: garlic.ID, Quantity: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatalf("create prep: %v", err)
	}

	// Simulate a cost edit that bypassed propagation.
	if err := database.Exec("UPDATE ingredients SET cost_per_unit = ? WHERE id = ?", "0.04", garlic.ID).Error; err != nil {
		t.Fatalf("raw cost update: %v", err)
	}
	if err := store.MarkPrepStale(ctx, paste.ID); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}

	var out bytes.Buffer
	if err := run(ctx, nil, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "reconciled 1 prep(s)") {
		t.Fatalf("unexpected output %q", out.String())
	}

	database, err = db.Initialize(config.DatabaseConfig{URL: url})
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	var refreshed models.Prep
	if err := database.First(&refreshed, paste.ID).Error; err != nil {
		t.Fatalf("load prep: %v", err)
	}
	if refreshed.CostStale {
		t.Fatal("expected stale flag to be cleared")
	}
	if got := costing.RoundCurrency(refreshed.CostPerBatch).StringFixed(2); got != "4.00" {
		t.Fatalf("expected cost per batch 4.00, got %s", got)
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("CONFIG_FILE", "")

	if err := run(context.Background(), nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error without a database url")
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-bogus"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected flag parse error")
	}
}

func TestRunAppliesLogFormat(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "unused.db"))

	err := run(context.Background(), nil, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "log format") {
		t.Fatalf("expected log format error, got %v", err)
	}
}
