package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"prepcost/internal/costing"
	applog "prepcost/internal/log"
	"prepcost/models"
)

type createIngredientRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	AltName     string          `json:"alt_name,omitempty" validate:"max=200"`
	Unit        string          `json:"unit" validate:"required,max=32"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

type updateIngredientRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	AltName     *string          `json:"alt_name,omitempty" validate:"omitempty,max=200"`
	Unit        *string          `json:"unit,omitempty" validate:"omitempty,min=1,max=32"`
	CostPerUnit *decimal.Decimal `json:"cost_per_unit,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

type ingredientUpdateResponse struct {
	Ingredient  *models.Ingredient `json:"ingredient"`
	Propagation *costing.Report    `json:"propagation,omitempty"`
}

// IngredientResource serves /ingredients.
func IngredientResource(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if strings.TrimSpace(r.URL.Query().Get("id")) != "" {
			showIngredient(w, r)
			return
		}
		listIngredients(w, r)
	case http.MethodPost:
		createIngredient(w, r)
	case http.MethodPut:
		updateIngredient(w, r)
	case http.MethodDelete:
		deleteIngredient(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func listIngredients(w http.ResponseWriter, r *http.Request) {
	page, err := engine.Query().SearchIngredients(r.Context(), costing.IngredientFilter{
		Query:      r.URL.Query().Get("search"),
		ActiveOnly: queryBool(r, "active_only"),
		Offset:     queryInt(r, "offset"),
		Limit:      queryInt(r, "limit"),
	})
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func showIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	ingredient, err := engine.Store().GetIngredient(r.Context(), id)
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingredient)
}

func createIngredient(w http.ResponseWriter, r *http.Request) {
	var payload createIngredientRequest
	if !decodeRequest(w, r, &payload) {
		return
	}
	ingredient := &models.Ingredient{
		Name:        payload.Name,
		AltName:     payload.AltName,
		Unit:        payload.Unit,
		CostPerUnit: payload.CostPerUnit,
		IsActive:    payload.IsActive == nil || *payload.IsActive,
	}
	if err := engine.CreateIngredient(r.Context(), ingredient); err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingredient)
}

func updateIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	var payload updateIngredientRequest
	if !decodeRequest(w, r, &payload) {
		return
	}

	ctx := r.Context()
	ingredient, report, err := engine.UpdateIngredient(ctx, id, costing.IngredientPatch{
		Name:        payload.Name,
		AltName:     payload.AltName,
		Unit:        payload.Unit,
		IsActive:    payload.IsActive,
		CostPerUnit: payload.CostPerUnit,
	})
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	if report != nil && !report.OK() {
		applog.Warn(ctx, "cost change left stale preps", "ingredient_id", id, "failed", len(report.Failed))
	}
	writeJSON(w, http.StatusOK, ingredientUpdateResponse{Ingredient: ingredient, Propagation: report})
}

func deleteIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	if err := engine.DeleteIngredient(r.Context(), id); err != nil {
		writeCostingError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
