package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"prepcost/internal/costing"
	"prepcost/models"
)

func seedGarlic(t *testing.T, svc *costing.Service) *models.Ingredient {
	t.Helper()
	garlic := &models.Ingredient{Name: "Garlic", Unit: "g", CostPerUnit: decimal.RequireFromString("0.02"), IsActive: true}
	if err := svc.CreateIngredient(context.Background(), garlic); err != nil {
		t.Fatalf("failed to seed garlic: %v", err)
	}
	return garlic
}

func createPaste(t *testing.T, garlicID uint) models.Prep {
	t.Helper()
	w := doJSON(t, PrepResource, http.MethodPost, "/preps", map[string]any{
		"name":               "Green Curry Paste",
		"batch_yield_amount": "500",
		"batch_yield_unit":   "g",
		"ingredients": []map[string]any{
			{"ingredient_id": garlicID, "quantity": 100},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decodeBody[models.Prep](t, w)
}

func TestPrepLifecycle(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)

	created := createPaste(t, garlic.ID)
	if !created.CostPerBatch.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected cost_per_batch 2, got %s", created.CostPerBatch)
	}
	if created.CostPerUnit.StringFixed(4) != "0.0040" {
		t.Fatalf("expected cost_per_unit 0.0040, got %s", created.CostPerUnit)
	}

	// Fetch with resolved ingredients.
	w := doJSON(t, PrepResource, http.MethodGet, fmt.Sprintf("/preps?id=%d&include_ingredients=true", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	detail := decodeBody[costing.PrepDetail](t, w)
	if len(detail.Lines) != 1 || detail.Lines[0].IngredientName != "Garlic" {
		t.Fatalf("unexpected lines: %+v", detail.Lines)
	}

	// Search.
	w = doJSON(t, PrepResource, http.MethodGet, "/preps?search=green", nil)
	page := decodeBody[costing.Page[models.Prep]](t, w)
	if page.Total != 1 || page.Items[0].ID != created.ID {
		t.Fatalf("unexpected search page: %+v", page)
	}

	// Halve the yield.
	w = doJSON(t, PrepResource, http.MethodPut, fmt.Sprintf("/preps?id=%d", created.ID), map[string]any{"batch_yield_amount": 250})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := decodeBody[models.Prep](t, w)
	if updated.CostPerUnit.StringFixed(4) != "0.0080" {
		t.Fatalf("expected cost_per_unit 0.0080 after yield change, got %s", updated.CostPerUnit)
	}

	// Stale version is rejected.
	w = doJSON(t, PrepResource, http.MethodPut, fmt.Sprintf("/preps?id=%d", created.ID), map[string]any{"notes": "x", "version": created.Version})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale version, got %d", w.Code)
	}
	if resp := decodeBody[errorResponse](t, w); resp.Code != "concurrency_conflict" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	// Delete.
	w = doJSON(t, PrepResource, http.MethodDelete, fmt.Sprintf("/preps?id=%d", created.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = doJSON(t, PrepResource, http.MethodGet, fmt.Sprintf("/preps?id=%d", created.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCreatePrepRejectsZeroYield(t *testing.T) {
	withTestEngine(t)

	w := doJSON(t, PrepResource, http.MethodPost, "/preps", map[string]any{
		"name":               "Broken",
		"batch_yield_amount": 0,
		"batch_yield_unit":   "g",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := decodeBody[errorResponse](t, w); resp.Code != "validation_error" {
		t.Fatalf("unexpected code %q", resp.Code)
	}
}

func TestPrepIngredientEdges(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)
	paste := createPaste(t, garlic.ID)
	chili := &models.Ingredient{Name: "Chili", Unit: "g", CostPerUnit: decimal.RequireFromString("0.05")}
	if err := svc.CreateIngredient(context.Background(), chili); err != nil {
		t.Fatalf("failed to seed chili: %v", err)
	}

	w := doJSON(t, PrepIngredientResource, http.MethodPost, "/preps/ingredients", map[string]any{
		"prep_id": paste.ID, "ingredient_id": chili.ID, "quantity": 20,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if prep := decodeBody[models.Prep](t, w); prep.CostPerBatch.StringFixed(2) != "3.00" {
		t.Fatalf("expected 3.00, got %s", prep.CostPerBatch)
	}

	w = doJSON(t, PrepIngredientResource, http.MethodPost, "/preps/ingredients", map[string]any{
		"prep_id": paste.ID, "ingredient_id": chili.ID, "quantity": 5,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate edge, got %d", w.Code)
	}
	if resp := decodeBody[errorResponse](t, w); resp.Code != "duplicate_edge" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	w = doJSON(t, PrepIngredientResource, http.MethodPut, "/preps/ingredients", map[string]any{
		"prep_id": paste.ID, "ingredient_id": chili.ID, "quantity": 40,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if prep := decodeBody[models.Prep](t, w); prep.CostPerBatch.StringFixed(2) != "4.00" {
		t.Fatalf("expected 4.00, got %s", prep.CostPerBatch)
	}

	w = doJSON(t, PrepIngredientResource, http.MethodDelete, fmt.Sprintf("/preps/ingredients?prep_id=%d&ingredient_id=%d", paste.ID, chili.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if prep := decodeBody[models.Prep](t, w); prep.CostPerBatch.StringFixed(2) != "2.00" {
		t.Fatalf("expected 2.00, got %s", prep.CostPerBatch)
	}
}

func TestPrepBreakdown(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)
	paste := createPaste(t, garlic.ID)

	w := doJSON(t, PrepBreakdown, http.MethodGet, fmt.Sprintf("/preps/breakdown?id=%d", paste.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	breakdown := decodeBody[costing.Breakdown](t, w)
	if breakdown.Drift || len(breakdown.Lines) != 1 || !breakdown.CostPerBatch.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}

	raw := decodeBody[map[string]any](t, w)
	if total, ok := raw["cost_per_batch"].(float64); !ok || total != 2 {
		t.Fatalf("expected cost_per_batch as a JSON number, got %#v", raw["cost_per_batch"])
	}
	if perUnit, ok := raw["cost_per_unit"].(float64); !ok || perUnit != 0.004 {
		t.Fatalf("expected cost_per_unit 0.004 as a JSON number, got %#v", raw["cost_per_unit"])
	}

	w = doJSON(t, PrepBreakdown, http.MethodGet, "/preps/breakdown?id=999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPrepSchema(t *testing.T) {
	w := doJSON(t, PrepSchema, http.MethodGet, "/preps/schema", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	schema := decodeBody[map[string]any](t, w)
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties in schema: %v", schema)
	}
	yield, ok := props["batch_yield_amount"].(map[string]any)
	if !ok || yield["type"] != "number" {
		t.Fatalf("expected batch_yield_amount to be a number, got %v", props["batch_yield_amount"])
	}
	if _, ok := props["ingredients"]; !ok {
		t.Fatalf("expected ingredients property")
	}
	required, _ := schema["required"].([]any)
	found := false
	for _, field := range required {
		if field == "name" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected name to be required, got %v", required)
	}
}
