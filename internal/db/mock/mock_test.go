package mock

import (
	"context"
	"testing"

	"prepcost/internal/costing"
	"prepcost/models"
)

func TestNewSeedsExpectedRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := New(ctx)
	if err != nil {
		t.Fatalf("mock database initialization failed: %v", err)
	}

	var ingredients []models.Ingredient
	if err := db.WithContext(ctx).Find(&ingredients).Error; err != nil {
		t.Fatalf("query ingredients: %v", err)
	}
	if len(ingredients) != 6 {
		t.Fatalf("expected 6 seeded ingredients, got %d", len(ingredients))
	}

	var paste models.Prep
	if err := db.WithContext(ctx).Where("name = ?", "Green Curry Paste").First(&paste).Error; err != nil {
		t.Fatalf("query prep: %v", err)
	}
	// 100×0.02 + 80×0.015 + 60×0.012 + 120×0.03
	if got := costing.RoundCurrency(paste.CostPerBatch).StringFixed(2); got != "7.52" {
		t.Fatalf("expected seeded prep to be costed at 7.52, got %s", got)
	}

	var edges []models.MenuItemIngredient
	if err := db.WithContext(ctx).Find(&edges).Error; err != nil {
		t.Fatalf("query menu item edges: %v", err)
	}
	for _, edge := range edges {
		if edge.HasIngredient() == edge.HasPrep() {
			t.Fatalf("edge %d must reference exactly one source", edge.ID)
		}
	}
}

func TestNewIsolatesInstances(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background()); err != nil {
		t.Fatalf("first instance: %v", err)
	}
	if _, err := New(context.Background()); err != nil {
		t.Fatalf("second instance must not collide with the first: %v", err)
	}
}
