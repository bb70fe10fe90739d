package costing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prepcost/models"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// PrepFilter selects preps for listing and search.
type PrepFilter struct {
	Query      string
	ActiveOnly bool
	Offset     int
	Limit      int
}

// IngredientFilter selects ingredients for listing and search.
type IngredientFilter struct {
	Query      string
	ActiveOnly bool
	Offset     int
	Limit      int
}

// IngredientPatch carries the authored ingredient fields an update may change.
// Cost is not part of it; see Store.PutIngredientCost.
type IngredientPatch struct {
	Name        *string
	AltName     *string
	Unit        *string
	IsActive    *bool
	CostPerUnit *decimal.Decimal
}

// MenuItemPatch carries the menu item fields an update may change.
type MenuItemPatch struct {
	Name     *string
	AltName  *string
	Price    *decimal.Decimal
	IsActive *bool
}

// Store is the composition graph: ingredients, preps, menu items and the
// edges between them. Every write is checked by the Guard first.
type Store struct {
	db    *gorm.DB
	guard *Guard
}

// NewStore wraps a gorm handle.
func NewStore(db *gorm.DB, guard *Guard) *Store {
	if guard == nil {
		guard = NewGuard(nil)
	}
	return &Store{db: db, guard: guard}
}

// DB returns the handle the store is bound to.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Guard returns the guard the store writes through.
func (s *Store) Guard() *Guard {
	return s.guard
}

// Transaction runs fn against a store bound to a single database transaction.
// Nested calls become savepoints.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return &Error{Kind: KindUpstreamUnavailable, Message: "no database configured", Err: gorm.ErrInvalidDB}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, guard: s.guard})
	})
	return classify(err, "", 0)
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.db == nil {
		return nil, &Error{Kind: KindUpstreamUnavailable, Message: "no database configured", Err: gorm.ErrInvalidDB}
	}
	return s.db.WithContext(ctx), nil
}

// --- Ingredients ---

// GetIngredient loads one ingredient.
func (s *Store) GetIngredient(ctx context.Context, id uint) (*models.Ingredient, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ingredient models.Ingredient
	if err := db.First(&ingredient, id).Error; err != nil {
		return nil, classify(err, "ingredient", id)
	}
	return &ingredient, nil
}

// ListIngredients returns one page of ingredients ordered by name and the total match count.
func (s *Store) ListIngredients(ctx context.Context, filter IngredientFilter) ([]models.Ingredient, int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	query := db.Model(&models.Ingredient{})
	query = applyNameSearch(query, filter.Query)
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "ingredient", 0)
	}

	offset, limit := normalizePage(filter.Offset, filter.Limit)
	var results []models.Ingredient
	if err := query.Order("name asc, id asc").Offset(offset).Limit(limit).Find(&results).Error; err != nil {
		return nil, 0, classify(err, "ingredient", 0)
	}
	return results, total, nil
}

// CreateIngredient inserts a new ingredient.
func (s *Store) CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if err := s.guard.CheckIngredient(ingredient); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	ingredient.ID = 0
	ingredient.Name = strings.TrimSpace(ingredient.Name)
	ingredient.Unit = strings.TrimSpace(ingredient.Unit)
	if err := db.Create(ingredient).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.guard.reject(validationError("ingredient", "name", "%q already exists", ingredient.Name))
		}
		return classify(err, "ingredient", 0)
	}
	return nil
}

// PutIngredient updates the authored, non-cost fields of an ingredient. The
// unit of an ingredient that edges already reference cannot change.
func (s *Store) PutIngredient(ctx context.Context, id uint, patch IngredientPatch) (*models.Ingredient, error) {
	if patch.CostPerUnit != nil {
		if err := s.guard.CheckIngredientCost(*patch.CostPerUnit); err != nil {
			return nil, err
		}
	}
	var updated *models.Ingredient
	err := s.Transaction(ctx, func(tx *Store) error {
		current, err := tx.GetIngredient(ctx, id)
		if err != nil {
			return err
		}
		next := *current
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.AltName != nil {
			next.AltName = strings.TrimSpace(*patch.AltName)
		}
		if patch.Unit != nil {
			next.Unit = strings.TrimSpace(*patch.Unit)
		}
		if patch.IsActive != nil {
			next.IsActive = *patch.IsActive
		}
		if err := tx.guard.CheckIngredient(&next); err != nil {
			return err
		}
		if !strings.EqualFold(next.Unit, current.Unit) {
			if err := tx.guard.CheckIngredientUnitChange(ctx, tx.db, id); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"name":      next.Name,
			"alt_name":  next.AltName,
			"unit":      next.Unit,
			"is_active": next.IsActive,
		}
		costChanged := patch.CostPerUnit != nil && !patch.CostPerUnit.Equal(current.CostPerUnit)
		if costChanged {
			updates["cost_per_unit"] = *patch.CostPerUnit
		}
		if err := tx.db.WithContext(ctx).Model(&models.Ingredient{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return tx.guard.reject(validationError("ingredient", "name", "%q already exists", next.Name))
			}
			return classify(err, "ingredient", id)
		}
		if costChanged {
			if err := tx.markDependentsStale(ctx, id); err != nil {
				return err
			}
		}
		updated, err = tx.GetIngredient(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PutIngredientCost sets an ingredient's cost per unit and returns the
// previous value. Every prep using the ingredient is flagged stale in the
// same commit; propagation clears the flag (see Scheduler.IngredientCostChanged)
// and Reconcile picks up whatever it missed.
func (s *Store) PutIngredientCost(ctx context.Context, id uint, cost decimal.Decimal) (decimal.Decimal, error) {
	if err := s.guard.CheckIngredientCost(cost); err != nil {
		return decimal.Zero, err
	}
	var previous decimal.Decimal
	err := s.Transaction(ctx, func(tx *Store) error {
		current, err := tx.GetIngredient(ctx, id)
		if err != nil {
			return err
		}
		previous = current.CostPerUnit
		res := tx.db.WithContext(ctx).Model(&models.Ingredient{}).Where("id = ?", id).Update("cost_per_unit", cost)
		if res.Error != nil {
			return classify(res.Error, "ingredient", id)
		}
		if res.RowsAffected == 0 {
			return notFound("ingredient", id)
		}
		return tx.markDependentsStale(ctx, id)
	})
	return previous, err
}

func (s *Store) markDependentsStale(ctx context.Context, ingredientID uint) error {
	users := s.db.Model(&models.PrepIngredient{}).Select("prep_id").Where("ingredient_id = ?", ingredientID)
	err := s.db.WithContext(ctx).Model(&models.Prep{}).
		Where("id IN (?)", users).
		Update("cost_stale", true).Error
	if err != nil {
		return classify(err, "prep", 0)
	}
	return nil
}

// DeleteIngredient hard-deletes an ingredient that nothing references.
func (s *Store) DeleteIngredient(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.guard.CheckIngredientDelete(ctx, tx.db, id); err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Delete(&models.Ingredient{}, id).Error; err != nil {
			return classify(err, "ingredient", id)
		}
		return nil
	})
}

// --- Preps ---

// GetPrep loads one prep, optionally with its edges and their ingredients.
func (s *Store) GetPrep(ctx context.Context, id uint, includeEdges bool) (*models.Prep, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if includeEdges {
		db = db.
			Preload("Ingredients", func(q *gorm.DB) *gorm.DB { return q.Order("prep_ingredients.id asc") }).
			Preload("Ingredients.Ingredient")
	}
	var prep models.Prep
	if err := db.First(&prep, id).Error; err != nil {
		return nil, classify(err, "prep", id)
	}
	return &prep, nil
}

// ListPreps returns one page of preps ordered by name and the total match count.
func (s *Store) ListPreps(ctx context.Context, filter PrepFilter) ([]models.Prep, int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	query := db.Model(&models.Prep{})
	query = applyNameSearch(query, filter.Query)
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "prep", 0)
	}

	offset, limit := normalizePage(filter.Offset, filter.Limit)
	var results []models.Prep
	if err := query.Order("name asc, id asc").Offset(offset).Limit(limit).Find(&results).Error; err != nil {
		return nil, 0, classify(err, "prep", 0)
	}
	return results, total, nil
}

// CreatePrep inserts a prep row at version 1 with zero cost. Edges are added
// separately through AddPrepIngredient.
func (s *Store) CreatePrep(ctx context.Context, prep *models.Prep) error {
	if err := s.guard.CheckPrep(prep); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	prep.ID = 0
	prep.Name = strings.TrimSpace(prep.Name)
	prep.BatchYieldUnit = strings.TrimSpace(prep.BatchYieldUnit)
	prep.CostPerBatch = decimal.Zero
	prep.CostPerUnit = decimal.Zero
	prep.CostStale = false
	prep.CostedAt = nil
	prep.Version = 1
	if err := db.Omit(clause.Associations).Create(prep).Error; err != nil {
		return classify(err, "prep", 0)
	}
	return nil
}

// PutPrep writes a prep's authored fields, provided prep.Version is still the
// stored version. Derived cost fields are never written here. On success
// prep.Version holds the new version.
func (s *Store) PutPrep(ctx context.Context, prep *models.Prep) error {
	if err := s.guard.CheckPrep(prep); err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *Store) error {
		current, err := tx.GetPrep(ctx, prep.ID, false)
		if err != nil {
			return err
		}
		if current.Version != prep.Version {
			return conflict("prep", prep.ID, prep.Version)
		}
		if !strings.EqualFold(strings.TrimSpace(prep.BatchYieldUnit), current.BatchYieldUnit) {
			if err := tx.guard.CheckPrepUnitChange(ctx, tx.db, prep.ID); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"name":               strings.TrimSpace(prep.Name),
			"alt_name":           strings.TrimSpace(prep.AltName),
			"description":        prep.Description,
			"notes":              prep.Notes,
			"batch_yield_amount": prep.BatchYieldAmount,
			"batch_yield_unit":   strings.TrimSpace(prep.BatchYieldUnit),
			"is_active":          prep.IsActive,
			"version":            gorm.Expr("version + 1"),
		}
		res := tx.db.WithContext(ctx).Model(&models.Prep{}).
			Where("id = ? AND version = ?", prep.ID, prep.Version).
			Updates(updates)
		if res.Error != nil {
			return classify(res.Error, "prep", prep.ID)
		}
		if res.RowsAffected == 0 {
			return conflict("prep", prep.ID, prep.Version)
		}
		prep.Version++
		return nil
	})
}

// WritePrepCost stores freshly calculated costs if the prep is still at
// expectedVersion, clears the stale flag and returns the new version.
func (s *Store) WritePrepCost(ctx context.Context, id uint, expectedVersion int, cost PrepCost) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res := db.Model(&models.Prep{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"cost_per_batch": cost.PerBatch,
			"cost_per_unit":  cost.PerUnit,
			"cost_stale":     false,
			"costed_at":      now,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, classify(res.Error, "prep", id)
	}
	if res.RowsAffected == 0 {
		if err := exists(ctx, s.db, &models.Prep{}, "prep", id); err != nil {
			return 0, err
		}
		return 0, conflict("prep", id, expectedVersion)
	}
	return expectedVersion + 1, nil
}

// MarkPrepStale flags a prep whose stored cost could not be refreshed.
func (s *Store) MarkPrepStale(ctx context.Context, id uint) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Model(&models.Prep{}).Where("id = ?", id).Update("cost_stale", true).Error; err != nil {
		return classify(err, "prep", id)
	}
	return nil
}

// DeletePrep hard-deletes a prep no menu item uses, together with its own edges.
func (s *Store) DeletePrep(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.guard.CheckPrepDelete(ctx, tx.db, id); err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Where("prep_id = ?", id).Delete(&models.PrepIngredient{}).Error; err != nil {
			return classify(err, "prep_ingredient", 0)
		}
		if err := tx.db.WithContext(ctx).Delete(&models.Prep{}, id).Error; err != nil {
			return classify(err, "prep", id)
		}
		return nil
	})
}

// PrepIDsUsingIngredient is the reverse index lookup used by propagation.
func (s *Store) PrepIDsUsingIngredient(ctx context.Context, ingredientID uint) ([]uint, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uint
	if err := db.Model(&models.PrepIngredient{}).
		Where("ingredient_id = ?", ingredientID).
		Distinct().
		Order("prep_id asc").
		Pluck("prep_id", &ids).Error; err != nil {
		return nil, classify(err, "prep_ingredient", 0)
	}
	return ids, nil
}

// StalePrepIDs lists preps flagged by MarkPrepStale.
func (s *Store) StalePrepIDs(ctx context.Context) ([]uint, error) {
	return s.prepIDs(ctx, "cost_stale = ?", true)
}

// AllPrepIDs lists every prep.
func (s *Store) AllPrepIDs(ctx context.Context) ([]uint, error) {
	return s.prepIDs(ctx, "")
}

func (s *Store) prepIDs(ctx context.Context, where string, args ...any) ([]uint, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	query := db.Model(&models.Prep{})
	if where != "" {
		query = query.Where(where, args...)
	}
	var ids []uint
	if err := query.Order("id asc").Pluck("id", &ids).Error; err != nil {
		return nil, classify(err, "prep", 0)
	}
	return ids, nil
}

// --- Prep edges ---

// AddPrepIngredient inserts a prep edge. The caller is responsible for
// recomputing the prep in the same transaction.
func (s *Store) AddPrepIngredient(ctx context.Context, edge *models.PrepIngredient) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	edge.ID = 0
	if err := s.guard.CheckPrepIngredient(ctx, s.db, edge); err != nil {
		return err
	}
	if err := db.Omit(clause.Associations).Create(edge).Error; err != nil {
		return classify(err, "prep_ingredient", 0)
	}
	return nil
}

// UpdatePrepIngredient changes the quantity, unit or notes of the edge
// identified by (edge.PrepID, edge.IngredientID).
func (s *Store) UpdatePrepIngredient(ctx context.Context, edge *models.PrepIngredient) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	var current models.PrepIngredient
	if err := db.Where("prep_id = ? AND ingredient_id = ?", edge.PrepID, edge.IngredientID).First(&current).Error; err != nil {
		return classify(err, "prep_ingredient", 0)
	}
	edge.ID = current.ID
	if err := s.guard.CheckPrepIngredient(ctx, s.db, edge); err != nil {
		return err
	}
	if err := db.Model(&models.PrepIngredient{}).Where("id = ?", current.ID).Updates(map[string]any{
		"quantity": edge.Quantity,
		"unit":     edge.Unit,
		"notes":    strings.TrimSpace(edge.Notes),
	}).Error; err != nil {
		return classify(err, "prep_ingredient", current.ID)
	}
	return nil
}

// RemovePrepIngredient deletes the edge between a prep and an ingredient.
func (s *Store) RemovePrepIngredient(ctx context.Context, prepID, ingredientID uint) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Where("prep_id = ? AND ingredient_id = ?", prepID, ingredientID).Delete(&models.PrepIngredient{})
	if res.Error != nil {
		return classify(res.Error, "prep_ingredient", 0)
	}
	if res.RowsAffected == 0 {
		return &Error{
			Kind:    KindNotFound,
			Entity:  "prep_ingredient",
			Message: fmt.Sprintf("prep %d does not use ingredient %d", prepID, ingredientID),
		}
	}
	return nil
}

// --- Menu items ---

// CreateMenuItem inserts a menu item without edges.
func (s *Store) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	if err := s.guard.CheckMenuItem(item); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	item.ID = 0
	item.Name = strings.TrimSpace(item.Name)
	if err := db.Omit(clause.Associations).Create(item).Error; err != nil {
		return classify(err, "menu_item", 0)
	}
	return nil
}

// GetMenuItem loads a menu item, optionally with its edges and their sources.
func (s *Store) GetMenuItem(ctx context.Context, id uint, includeEdges bool) (*models.MenuItem, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if includeEdges {
		db = db.
			Preload("Ingredients", func(q *gorm.DB) *gorm.DB { return q.Order("menu_item_ingredients.id asc") }).
			Preload("Ingredients.Ingredient").
			Preload("Ingredients.Prep")
	}
	var item models.MenuItem
	if err := db.First(&item, id).Error; err != nil {
		return nil, classify(err, "menu_item", id)
	}
	return &item, nil
}

// ListMenuItems returns one page of menu items ordered by name and the total match count.
func (s *Store) ListMenuItems(ctx context.Context, query string, activeOnly bool, offset, limit int) ([]models.MenuItem, int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	q := applyNameSearch(db.Model(&models.MenuItem{}), query)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err, "menu_item", 0)
	}
	offset, limit = normalizePage(offset, limit)
	var items []models.MenuItem
	if err := q.Order("name asc, id asc").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, classify(err, "menu_item", 0)
	}
	return items, total, nil
}

// PutMenuItem updates a menu item's authored fields.
func (s *Store) PutMenuItem(ctx context.Context, id uint, patch MenuItemPatch) (*models.MenuItem, error) {
	var updated *models.MenuItem
	err := s.Transaction(ctx, func(tx *Store) error {
		current, err := tx.GetMenuItem(ctx, id, false)
		if err != nil {
			return err
		}
		next := *current
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.AltName != nil {
			next.AltName = strings.TrimSpace(*patch.AltName)
		}
		if patch.Price != nil {
			next.Price = *patch.Price
		}
		if patch.IsActive != nil {
			next.IsActive = *patch.IsActive
		}
		if err := tx.guard.CheckMenuItem(&next); err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Model(&models.MenuItem{}).Where("id = ?", id).Updates(map[string]any{
			"name":      next.Name,
			"alt_name":  next.AltName,
			"price":     next.Price,
			"is_active": next.IsActive,
		}).Error; err != nil {
			return classify(err, "menu_item", id)
		}
		updated, err = tx.GetMenuItem(ctx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMenuItem removes a menu item and its edges. Nothing references menu items.
func (s *Store) DeleteMenuItem(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := exists(ctx, tx.db, &models.MenuItem{}, "menu_item", id); err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).Where("menu_item_id = ?", id).Delete(&models.MenuItemIngredient{}).Error; err != nil {
			return classify(err, "menu_item_ingredient", 0)
		}
		if err := tx.db.WithContext(ctx).Delete(&models.MenuItem{}, id).Error; err != nil {
			return classify(err, "menu_item", id)
		}
		return nil
	})
}

// AddMenuItemIngredient attaches a raw ingredient or a prep to a menu item.
func (s *Store) AddMenuItemIngredient(ctx context.Context, edge *models.MenuItemIngredient) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	edge.ID = 0
	if err := s.guard.CheckMenuItemIngredient(ctx, s.db, edge); err != nil {
		return err
	}
	edge.Notes = strings.TrimSpace(edge.Notes)
	if err := db.Omit(clause.Associations).Create(edge).Error; err != nil {
		return classify(err, "menu_item_ingredient", 0)
	}
	return nil
}

// UpdateMenuItemIngredient rewrites a menu item edge. The exclusivity check
// runs again on the new shape.
func (s *Store) UpdateMenuItemIngredient(ctx context.Context, edge *models.MenuItemIngredient) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	var current models.MenuItemIngredient
	if err := db.First(&current, edge.ID).Error; err != nil {
		return classify(err, "menu_item_ingredient", edge.ID)
	}
	edge.MenuItemID = current.MenuItemID
	if err := s.guard.CheckMenuItemIngredient(ctx, s.db, edge); err != nil {
		return err
	}
	if err := db.Model(&models.MenuItemIngredient{}).Where("id = ?", edge.ID).Updates(map[string]any{
		"ingredient_id": edge.IngredientID,
		"prep_id":       edge.PrepID,
		"quantity":      edge.Quantity,
		"unit":          edge.Unit,
		"notes":         strings.TrimSpace(edge.Notes),
	}).Error; err != nil {
		return classify(err, "menu_item_ingredient", edge.ID)
	}
	return nil
}

// RemoveMenuItemIngredient deletes one menu item edge.
func (s *Store) RemoveMenuItemIngredient(ctx context.Context, id uint) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Delete(&models.MenuItemIngredient{}, id)
	if res.Error != nil {
		return classify(res.Error, "menu_item_ingredient", id)
	}
	if res.RowsAffected == 0 {
		return notFound("menu_item_ingredient", id)
	}
	return nil
}

func applyNameSearch(query *gorm.DB, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" {
		return query
	}
	pattern := likePattern(search)
	return query.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(alt_name) LIKE ? ESCAPE '\')`, pattern, pattern)
}

func likePattern(search string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(strings.ToLower(search)) + "%"
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	return offset, limit
}
