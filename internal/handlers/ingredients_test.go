package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"prepcost/internal/costing"
	"prepcost/models"
)

func TestIngredientCostChangePropagates(t *testing.T) {
	svc := withTestEngine(t)

	w := doJSON(t, IngredientResource, http.MethodPost, "/ingredients", map[string]any{
		"name": "Garlic", "unit": "g", "cost_per_unit": "0.02",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	garlic := decodeBody[models.Ingredient](t, w)
	if !garlic.IsActive {
		t.Fatalf("expected new ingredient to be active")
	}
	paste := createPaste(t, garlic.ID)

	w = doJSON(t, IngredientResource, http.MethodPut, fmt.Sprintf("/ingredients?id=%d", garlic.ID), map[string]any{"cost_per_unit": "0.04"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[ingredientUpdateResponse](t, w)
	if resp.Propagation == nil || len(resp.Propagation.Updated) != 1 || resp.Propagation.Updated[0] != paste.ID {
		t.Fatalf("unexpected propagation report: %+v", resp.Propagation)
	}
	if resp.Ingredient.CostPerUnit.StringFixed(2) != "0.04" {
		t.Fatalf("expected stored cost 0.04, got %s", resp.Ingredient.CostPerUnit)
	}

	prep, err := svc.Query().GetPrep(context.Background(), paste.ID)
	if err != nil {
		t.Fatalf("failed to load prep: %v", err)
	}
	if prep.CostPerBatch.StringFixed(2) != "4.00" {
		t.Fatalf("expected 4.00 after propagation, got %s", prep.CostPerBatch)
	}
}

func TestIngredientRenameWithoutCost(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)

	w := doJSON(t, IngredientResource, http.MethodPut, fmt.Sprintf("/ingredients?id=%d", garlic.ID), map[string]any{"alt_name": "Kratiem"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[ingredientUpdateResponse](t, w)
	if resp.Propagation != nil {
		t.Fatalf("expected no propagation without a cost change")
	}
	if resp.Ingredient.AltName != "Kratiem" {
		t.Fatalf("expected alt name to be updated, got %q", resp.Ingredient.AltName)
	}
}

func TestIngredientNegativeCostRejected(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)

	w := doJSON(t, IngredientResource, http.MethodPut, fmt.Sprintf("/ingredients?id=%d", garlic.ID), map[string]any{"cost_per_unit": -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIngredientRenameRolledBackWithRejectedCost(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)

	w := doJSON(t, IngredientResource, http.MethodPut, fmt.Sprintf("/ingredients?id=%d", garlic.ID), map[string]any{"name": "Black Garlic", "cost_per_unit": "-1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := svc.Store().GetIngredient(context.Background(), garlic.ID)
	if err != nil {
		t.Fatalf("failed to load ingredient: %v", err)
	}
	if stored.Name != "Garlic" || stored.CostPerUnit.StringFixed(2) != "0.02" {
		t.Fatalf("expected ingredient untouched, got name=%q cost=%s", stored.Name, stored.CostPerUnit)
	}
}

func TestIngredientDeleteBlocked(t *testing.T) {
	svc := withTestEngine(t)
	garlic := seedGarlic(t, svc)
	createPaste(t, garlic.ID)

	w := doJSON(t, IngredientResource, http.MethodDelete, fmt.Sprintf("/ingredients?id=%d", garlic.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	resp := decodeBody[errorResponse](t, w)
	if resp.Code != string(costing.KindReferentialDeleteBlocked) {
		t.Fatalf("unexpected code %q", resp.Code)
	}
	if len(resp.References) != 1 || resp.References[0].Entity != "prep" || resp.References[0].Names[0] != "Green Curry Paste" {
		t.Fatalf("unexpected references: %+v", resp.References)
	}

	w = doJSON(t, IngredientResource, http.MethodGet, fmt.Sprintf("/ingredients?id=%d", garlic.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected ingredient to survive, got %d", w.Code)
	}
}

func TestIngredientList(t *testing.T) {
	svc := withTestEngine(t)
	seedGarlic(t, svc)

	w := doJSON(t, IngredientResource, http.MethodGet, "/ingredients?search=GAR&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	page := decodeBody[costing.Page[models.Ingredient]](t, w)
	if page.Total != 1 || page.Limit != 10 || page.Items[0].Name != "Garlic" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestIngredientMethodNotAllowed(t *testing.T) {
	withTestEngine(t)

	w := doJSON(t, IngredientResource, http.MethodPatch, "/ingredients", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if w.Header().Get("Allow") == "" {
		t.Fatalf("expected Allow header")
	}
}
