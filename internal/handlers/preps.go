package handlers

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"prepcost/internal/costing"
	applog "prepcost/internal/log"
	"prepcost/models"
)

type prepLineRequest struct {
	IngredientID uint            `json:"ingredient_id" validate:"required" jsonschema:"description=Id of an existing ingredient"`
	Quantity     decimal.Decimal `json:"quantity" jsonschema:"description=Amount used per batch in the ingredient's unit"`
	Unit         string          `json:"unit,omitempty" validate:"max=32" jsonschema:"description=Must match the ingredient's unit; defaults to it"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
}

type createPrepRequest struct {
	Name             string            `json:"name" validate:"required,max=200" jsonschema:"maxLength=200"`
	AltName          string            `json:"alt_name,omitempty" validate:"max=200"`
	Description      string            `json:"description,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	BatchYieldAmount decimal.Decimal   `json:"batch_yield_amount" jsonschema:"description=Amount one batch yields; must be positive"`
	BatchYieldUnit   string            `json:"batch_yield_unit" validate:"required,max=32"`
	IsActive         *bool             `json:"is_active,omitempty"`
	Ingredients      []prepLineRequest `json:"ingredients,omitempty" validate:"dive"`
}

type updatePrepRequest struct {
	Name             *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	AltName          *string          `json:"alt_name,omitempty" validate:"omitempty,max=200"`
	Description      *string          `json:"description,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	BatchYieldAmount *decimal.Decimal `json:"batch_yield_amount,omitempty"`
	BatchYieldUnit   *string          `json:"batch_yield_unit,omitempty" validate:"omitempty,min=1,max=32"`
	IsActive         *bool            `json:"is_active,omitempty"`
	Version          *int             `json:"version,omitempty" validate:"omitempty,min=1"`
}

type prepIngredientRequest struct {
	PrepID       uint            `json:"prep_id" validate:"required"`
	IngredientID uint            `json:"ingredient_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit,omitempty" validate:"max=32"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
}

// PrepResource serves /preps.
func PrepResource(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if strings.TrimSpace(r.URL.Query().Get("id")) != "" {
			showPrep(w, r)
			return
		}
		listPreps(w, r)
	case http.MethodPost:
		createPrep(w, r)
	case http.MethodPut:
		updatePrep(w, r)
	case http.MethodDelete:
		deletePrep(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func listPreps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := engine.Query().SearchPreps(r.Context(), costing.PrepFilter{
		Query:      q.Get("search"),
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

func showPrep(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	if queryBool(r, "include_ingredients") {
		detail, err := engine.Query().GetPrepWithIngredients(r.Context(), id)
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}
	prep, err := engine.Query().GetPrep(r.Context(), id)
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prep)
}

func createPrep(w http.ResponseWriter, r *http.Request) {
	var payload createPrepRequest
	if !decodeRequest(w, r, &payload) {
		return
	}

	input := costing.CreatePrepInput{
		Name:             payload.Name,
		AltName:          payload.AltName,
		Description:      payload.Description,
		Notes:            payload.Notes,
		BatchYieldAmount: payload.BatchYieldAmount,
		BatchYieldUnit:   payload.BatchYieldUnit,
		IsActive:         payload.IsActive,
		Ingredients:      make([]costing.PrepEdgeInput, 0, len(payload.Ingredients)),
	}
	for _, line := range payload.Ingredients {
		input.Ingredients = append(input.Ingredients, costing.PrepEdgeInput{
			IngredientID: line.IngredientID,
			Quantity:     line.Quantity,
			Unit:         line.Unit,
			Notes:        line.Notes,
		})
	}

	prep, err := engine.CreatePrep(r.Context(), input)
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, prep)
}

func updatePrep(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	var payload updatePrepRequest
	if !decodeRequest(w, r, &payload) {
		return
	}

	prep, err := engine.UpdatePrep(r.Context(), id, costing.PrepPatch{
		Name:             payload.Name,
		AltName:          payload.AltName,
		Description:      payload.Description,
		Notes:            payload.Notes,
		BatchYieldAmount: payload.BatchYieldAmount,
		BatchYieldUnit:   payload.BatchYieldUnit,
		IsActive:         payload.IsActive,
		Version:          payload.Version,
	})
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prep)
}

func deletePrep(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	if err := engine.DeletePrep(r.Context(), id); err != nil {
		writeCostingError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PrepIngredientResource serves /preps/ingredients.
func PrepIngredientResource(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var payload prepIngredientRequest
		if !decodeRequest(w, r, &payload) {
			return
		}
		edge := models.PrepIngredient{
			PrepID:       payload.PrepID,
			IngredientID: payload.IngredientID,
			Quantity:     payload.Quantity,
			Unit:         payload.Unit,
			Notes:        payload.Notes,
		}

		var (
			prep   *models.Prep
			err    error
			status = http.StatusOK
		)
		if r.Method == http.MethodPost {
			prep, err = engine.AddPrepIngredient(r.Context(), edge)
			status = http.StatusCreated
		} else {
			prep, err = engine.UpdatePrepIngredient(r.Context(), edge)
		}
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, status, prep)
	case http.MethodDelete:
		prepID, ok := queryID(w, r, "prep_id")
		if !ok {
			return
		}
		ingredientID, ok := queryID(w, r, "ingredient_id")
		if !ok {
			return
		}
		prep, err := engine.RemovePrepIngredient(r.Context(), prepID, ingredientID)
		if err != nil {
			writeCostingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, prep)
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

// PrepBreakdown serves GET /preps/breakdown.
func PrepBreakdown(w http.ResponseWriter, r *http.Request) {
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
	breakdown, err := engine.Query().GetCostBreakdown(r.Context(), id)
	if err != nil {
		writeCostingError(w, r, err)
		return
	}
	if breakdown.Drift {
		applog.Warn(r.Context(), "stored prep cost drifted from live cost", "prep_id", id)
	}
	writeJSON(w, http.StatusOK, breakdown)
}

var prepSchema = newPrepSchema()

func newPrepSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(decimal.Decimal{}) {
				return &jsonschema.Schema{Type: "number"}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&createPrepRequest{})
	schema.Title = "Prep"
	schema.Description = "Payload accepted by POST /preps"
	return schema
}

// PrepSchema serves the JSON Schema of the prep create payload.
func PrepSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, prepSchema)
}
