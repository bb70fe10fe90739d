package costing

import (
	"context"

	"github.com/shopspring/decimal"

	"prepcost/internal/log"
	"prepcost/models"
)

// PrepEdgeInput is one ingredient line of a prep being created.
type PrepEdgeInput struct {
	IngredientID uint
	Quantity     decimal.Decimal
	Unit         string
	Notes        string
}

// CreatePrepInput describes a new prep and its initial ingredients.
type CreatePrepInput struct {
	Name             string
	AltName          string
	Description      string
	Notes            string
	BatchYieldAmount decimal.Decimal
	BatchYieldUnit   string
	IsActive         *bool
	Ingredients      []PrepEdgeInput
}

// PrepPatch changes a prep's authored fields. A non-nil Version makes the
// update conditional on that version and disables conflict retries.
type PrepPatch struct {
	Name             *string
	AltName          *string
	Description      *string
	Notes            *string
	BatchYieldAmount *decimal.Decimal
	BatchYieldUnit   *string
	IsActive         *bool
	Version          *int
}

// Service is the write side of the engine. Every mutation that affects a
// prep's cost commits together with the recompute.
type Service struct {
	store     *Store
	scheduler *Scheduler
	query     *Query
}

// NewService wires a Service.
func NewService(store *Store, scheduler *Scheduler) *Service {
	return &Service{store: store, scheduler: scheduler, query: NewQuery(store)}
}

// Store exposes the underlying graph store.
func (s *Service) Store() *Store { return s.store }

// Scheduler exposes the propagation scheduler.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// Query exposes the read side.
func (s *Service) Query() *Query { return s.query }

func (s *Service) mutate(ctx context.Context, retry bool, fn func(tx *Store) error) error {
	op := func(ctx context.Context) error {
		return s.store.Transaction(ctx, fn)
	}
	if !retry {
		return op(ctx)
	}
	return s.scheduler.retry(ctx, op)
}

// --- Ingredients ---

// CreateIngredient adds a raw ingredient.
func (s *Service) CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if err := s.store.CreateIngredient(ctx, ingredient); err != nil {
		return err
	}
	log.Debug(ctx, "ingredient created", "ingredient_id", ingredient.ID, "name", ingredient.Name)
	return nil
}

// UpdateIngredient applies a patch in one transaction. When the patch
// carries a cost, the change is propagated afterwards and its report
// returned; otherwise the report is nil.
func (s *Service) UpdateIngredient(ctx context.Context, id uint, patch IngredientPatch) (*models.Ingredient, *Report, error) {
	ingredient, err := s.store.PutIngredient(ctx, id, patch)
	if err != nil {
		return nil, nil, err
	}
	log.Debug(ctx, "ingredient updated", "ingredient_id", id)
	if patch.CostPerUnit == nil {
		return ingredient, nil, nil
	}

	report, err := s.scheduler.IngredientCostChanged(ctx, id)
	if err != nil {
		return ingredient, nil, err
	}
	return ingredient, &report, nil
}

// UpdateIngredientCost stores a new cost and propagates it to every prep
// that uses the ingredient.
func (s *Service) UpdateIngredientCost(ctx context.Context, id uint, cost decimal.Decimal) (Report, error) {
	var previous decimal.Decimal
	err := s.scheduler.retry(ctx, func(ctx context.Context) error {
		var err error
		previous, err = s.store.PutIngredientCost(ctx, id, cost)
		return err
	})
	if err != nil {
		return Report{IngredientID: id}, err
	}
	log.Info(ctx, "ingredient cost changed",
		"ingredient_id", id,
		"previous", previous.String(),
		"cost_per_unit", cost.String(),
	)
	return s.scheduler.IngredientCostChanged(ctx, id)
}

// DeleteIngredient removes an unreferenced ingredient.
func (s *Service) DeleteIngredient(ctx context.Context, id uint) error {
	if err := s.store.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	log.Info(ctx, "ingredient deleted", "ingredient_id", id)
	return nil
}

// --- Preps ---

// CreatePrep inserts a prep with its initial ingredients and costs it.
func (s *Service) CreatePrep(ctx context.Context, input CreatePrepInput) (*models.Prep, error) {
	var created *models.Prep
	err := s.mutate(ctx, true, func(tx *Store) error {
		prep := &models.Prep{
			Name:             input.Name,
			AltName:          input.AltName,
			Description:      input.Description,
			Notes:            input.Notes,
			BatchYieldAmount: input.BatchYieldAmount,
			BatchYieldUnit:   input.BatchYieldUnit,
			IsActive:         input.IsActive == nil || *input.IsActive,
		}
		if err := tx.CreatePrep(ctx, prep); err != nil {
			return err
		}
		for _, line := range input.Ingredients {
			edge := &models.PrepIngredient{
				PrepID:       prep.ID,
				IngredientID: line.IngredientID,
				Quantity:     line.Quantity,
				Unit:         line.Unit,
				Notes:        line.Notes,
			}
			if err := tx.AddPrepIngredient(ctx, edge); err != nil {
				return err
			}
		}
		var err error
		created, err = s.recomputeAndLoad(ctx, tx, prep.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "prep created", "prep_id", created.ID, "name", created.Name, "ingredients", len(input.Ingredients))
	return created, nil
}

// UpdatePrep applies patch and recomputes the prep's cost in the same commit.
func (s *Service) UpdatePrep(ctx context.Context, id uint, patch PrepPatch) (*models.Prep, error) {
	var updated *models.Prep
	err := s.mutate(ctx, patch.Version == nil, func(tx *Store) error {
		prep, err := tx.GetPrep(ctx, id, false)
		if err != nil {
			return err
		}
		if patch.Version != nil {
			prep.Version = *patch.Version
		}
		applyPrepPatch(prep, patch)
		if err := tx.PutPrep(ctx, prep); err != nil {
			return err
		}
		updated, err = s.recomputeAndLoad(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "prep updated", "prep_id", id, "version", updated.Version)
	return updated, nil
}

// SetPrepActive toggles a prep's active flag.
func (s *Service) SetPrepActive(ctx context.Context, id uint, active bool) (*models.Prep, error) {
	return s.UpdatePrep(ctx, id, PrepPatch{IsActive: &active})
}

// DeletePrep removes a prep that no menu item uses.
func (s *Service) DeletePrep(ctx context.Context, id uint) error {
	if err := s.store.DeletePrep(ctx, id); err != nil {
		return err
	}
	log.Info(ctx, "prep deleted", "prep_id", id)
	return nil
}

// AddPrepIngredient attaches an ingredient to a prep and recomputes it.
func (s *Service) AddPrepIngredient(ctx context.Context, edge models.PrepIngredient) (*models.Prep, error) {
	return s.editPrep(ctx, edge.PrepID, func(tx *Store) error {
		e := edge
		return tx.AddPrepIngredient(ctx, &e)
	})
}

// UpdatePrepIngredient changes an existing prep edge and recomputes the prep.
func (s *Service) UpdatePrepIngredient(ctx context.Context, edge models.PrepIngredient) (*models.Prep, error) {
	return s.editPrep(ctx, edge.PrepID, func(tx *Store) error {
		e := edge
		return tx.UpdatePrepIngredient(ctx, &e)
	})
}

// RemovePrepIngredient detaches an ingredient from a prep and recomputes it.
func (s *Service) RemovePrepIngredient(ctx context.Context, prepID, ingredientID uint) (*models.Prep, error) {
	return s.editPrep(ctx, prepID, func(tx *Store) error {
		return tx.RemovePrepIngredient(ctx, prepID, ingredientID)
	})
}

func (s *Service) editPrep(ctx context.Context, prepID uint, edit func(tx *Store) error) (*models.Prep, error) {
	var prep *models.Prep
	err := s.mutate(ctx, true, func(tx *Store) error {
		if err := edit(tx); err != nil {
			return err
		}
		var err error
		prep, err = s.recomputeAndLoad(ctx, tx, prepID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "prep ingredients changed", "prep_id", prepID, "cost_per_batch", prep.CostPerBatch.String())
	return prep, nil
}

func (s *Service) recomputeAndLoad(ctx context.Context, tx *Store, prepID uint) (*models.Prep, error) {
	if _, err := s.scheduler.recomputeWith(ctx, tx, prepID); err != nil {
		return nil, err
	}
	prep, err := tx.GetPrep(ctx, prepID, false)
	if err != nil {
		return nil, err
	}
	roundPrep(prep)
	return prep, nil
}

func applyPrepPatch(prep *models.Prep, patch PrepPatch) {
	if patch.Name != nil {
		prep.Name = *patch.Name
	}
	if patch.AltName != nil {
		prep.AltName = *patch.AltName
	}
	if patch.Description != nil {
		prep.Description = *patch.Description
	}
	if patch.Notes != nil {
		prep.Notes = *patch.Notes
	}
	if patch.BatchYieldAmount != nil {
		prep.BatchYieldAmount = *patch.BatchYieldAmount
	}
	if patch.BatchYieldUnit != nil {
		prep.BatchYieldUnit = *patch.BatchYieldUnit
	}
	if patch.IsActive != nil {
		prep.IsActive = *patch.IsActive
	}
}

// --- Menu items ---

// CreateMenuItem inserts a menu item together with its edges.
func (s *Service) CreateMenuItem(ctx context.Context, item models.MenuItem, edges []models.MenuItemIngredient) (*models.MenuItem, error) {
	var created *models.MenuItem
	err := s.mutate(ctx, true, func(tx *Store) error {
		row := item
		row.Ingredients = nil
		if err := tx.CreateMenuItem(ctx, &row); err != nil {
			return err
		}
		for _, edge := range edges {
			e := edge
			e.MenuItemID = row.ID
			if err := tx.AddMenuItemIngredient(ctx, &e); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.GetMenuItem(ctx, row.ID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "menu item created", "menu_item_id", created.ID, "name", created.Name)
	return created, nil
}

// UpdateMenuItem changes a menu item's authored fields.
func (s *Service) UpdateMenuItem(ctx context.Context, id uint, patch MenuItemPatch) (*models.MenuItem, error) {
	return s.store.PutMenuItem(ctx, id, patch)
}

// DeleteMenuItem removes a menu item and its edges.
func (s *Service) DeleteMenuItem(ctx context.Context, id uint) error {
	if err := s.store.DeleteMenuItem(ctx, id); err != nil {
		return err
	}
	log.Info(ctx, "menu item deleted", "menu_item_id", id)
	return nil
}

// AddMenuItemIngredient attaches an ingredient or a prep to a menu item.
func (s *Service) AddMenuItemIngredient(ctx context.Context, edge models.MenuItemIngredient) (*models.MenuItemIngredient, error) {
	e := edge
	e.Ingredient, e.Prep = nil, nil
	if err := s.store.AddMenuItemIngredient(ctx, &e); err != nil {
		return nil, err
	}
	log.Debug(ctx, "menu item ingredient added", "menu_item_id", e.MenuItemID, "edge_id", e.ID)
	return &e, nil
}

// UpdateMenuItemIngredient rewrites a menu item edge.
func (s *Service) UpdateMenuItemIngredient(ctx context.Context, edge models.MenuItemIngredient) (*models.MenuItemIngredient, error) {
	e := edge
	e.Ingredient, e.Prep = nil, nil
	if err := s.store.UpdateMenuItemIngredient(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// RemoveMenuItemIngredient deletes a menu item edge.
func (s *Service) RemoveMenuItemIngredient(ctx context.Context, id uint) error {
	return s.store.RemoveMenuItemIngredient(ctx, id)
}
