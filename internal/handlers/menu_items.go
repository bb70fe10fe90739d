package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"prepcost/internal/costing"
	"prepcost/models"
)

type menuItemLineRequest struct {
	IngredientID *uint           `json:"ingredient_id,omitempty"`
	PrepID       *uint           `json:"prep_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit,omitempty" validate:"max=32"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
}

type createMenuItemRequest struct {
	Name        string                `json:"name" validate:"required,max=200"`
	AltName     string                `json:"alt_name,omitempty" validate:"max=200"`
	Price       decimal.Decimal       `json:"price"`
	IsActive    *bool                 `json:"is_active,omitempty"`
	Ingredients []menuItemLineRequest `json:"ingredients,omitempty" validate:"dive"`
}

type updateMenuItemRequest struct {
	Name     *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	AltName  *string          `json:"alt_name,omitempty" validate:"omitempty,max=200"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	IsActive *bool            `json:"is_active,omitempty"`
}

type menuItemIngredientRequest struct {
	MenuItemID uint `json:"menu_item_id"`
	menuItemLineRequest
}

func (l menuItemLineRequest) edge(menuItemID uint) models.MenuItemIngredient {
	return models.MenuItemIngredient{
		MenuItemID:   menuItemID,
		IngredientID: l.IngredientID,
		PrepID:       l.PrepID,
		Quantity:     l.Quantity,
		Unit:         l.Unit,
		Notes:        l.Notes,
	}
}

// MenuItemResource serves /menu-items.
func MenuItemResource(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		if strings.TrimSpace(r.URL.Query().Get("id")) != "" {
			id, ok := queryID(w, r, "id")
			if !ok {
				return
			}
			item, err := engine.Store().GetMenuItem(ctx, id, queryBool(r, "include_ingredients"))
			if err != nil {
				writeCostingError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
		page, err := engine.Query().SearchMenuItems(ctx, r.URL.Query().Get("search"), queryBool(r, "active_only"), queryInt(r, "offset"), queryInt(r, "limit"))
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var payload createMenuItemRequest
		if !decodeRequest(w, r, &payload) {
			return
		}
		edges := make([]models.MenuItemIngredient, 0, len(payload.Ingredients))
		for _, line := range payload.Ingredients {
			edges = append(edges, line.edge(0))
		}
		item, err := engine.CreateMenuItem(ctx, models.MenuItem{
			Name:     payload.Name,
			AltName:  payload.AltName,
			Price:    payload.Price,
			IsActive: payload.IsActive == nil || *payload.IsActive,
		}, edges)
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	case http.MethodPut:
		id, ok := queryID(w, r, "id")
		if !ok {
			return
		}
		var payload updateMenuItemRequest
		if !decodeRequest(w, r, &payload) {
			return
		}
		item, err := engine.UpdateMenuItem(ctx, id, costing.MenuItemPatch{
			Name:     payload.Name,
			AltName:  payload.AltName,
			Price:    payload.Price,
			IsActive: payload.IsActive,
		})
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		id, ok := queryID(w, r, "id")
		if !ok {
			return
		}
		if err := engine.DeleteMenuItem(ctx, id); err != nil {
			writeCostingError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

// MenuItemIngredientResource serves /menu-items/ingredients.
func MenuItemIngredientResource(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodPost:
		var payload menuItemIngredientRequest
		if !decodeRequest(w, r, &payload) {
			return
		}
		edge, err := engine.AddMenuItemIngredient(ctx, payload.edge(payload.MenuItemID))
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, edge)
	case http.MethodPut:
		id, ok := queryID(w, r, "id")
		if !ok {
			return
		}
		var payload menuItemLineRequest
		if !decodeRequest(w, r, &payload) {
			return
		}
		edge := payload.edge(0)
		edge.ID = id
		updated, err := engine.UpdateMenuItemIngredient(ctx, edge)
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		id, ok := queryID(w, r, "id")
		if !ok {
			return
		}
		if err := engine.RemoveMenuItemIngredient(ctx, id); err != nil {
			writeCostingError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

// MenuItemBreakdown serves GET /menu-items/breakdown.
func MenuItemBreakdown(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	breakdown, err := engine.Query().GetMenuItemCostBreakdown(r.Context(), id)
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}
