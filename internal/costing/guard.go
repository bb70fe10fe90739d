package costing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"prepcost/models"
)

const maxReferenceNames = 10

// Guard rejects mutations that would break a structural invariant of the
// composition graph. It is the only place those invariants are checked.
type Guard struct {
	metrics *Metrics
}

// NewGuard returns a Guard that reports rejections to metrics (may be nil).
func NewGuard(metrics *Metrics) *Guard {
	return &Guard{metrics: metrics}
}

func (g *Guard) reject(err error) error {
	if err != nil && g != nil {
		g.metrics.rejected(err)
	}
	return err
}

// CheckIngredient validates an ingredient's authored attributes.
func (g *Guard) CheckIngredient(ingredient *models.Ingredient) error {
	if ingredient == nil {
		return g.reject(validationError("ingredient", "", "is required"))
	}
	if strings.TrimSpace(ingredient.Name) == "" {
		return g.reject(validationError("ingredient", "name", "is required"))
	}
	if strings.TrimSpace(ingredient.Unit) == "" {
		return g.reject(validationError("ingredient", "unit", "is required"))
	}
	return g.CheckIngredientCost(ingredient.CostPerUnit)
}

// CheckIngredientCost enforces a non-negative cost per unit.
func (g *Guard) CheckIngredientCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return g.reject(validationError("ingredient", "cost_per_unit", "must not be negative, got %s", cost))
	}
	return nil
}

// CheckPrep validates a prep's authored attributes.
func (g *Guard) CheckPrep(prep *models.Prep) error {
	if prep == nil {
		return g.reject(validationError("prep", "", "is required"))
	}
	if strings.TrimSpace(prep.Name) == "" {
		return g.reject(validationError("prep", "name", "is required"))
	}
	if !prep.BatchYieldAmount.IsPositive() {
		return g.reject(validationError("prep", "batch_yield_amount", "must be greater than zero, got %s", prep.BatchYieldAmount))
	}
	if strings.TrimSpace(prep.BatchYieldUnit) == "" {
		return g.reject(validationError("prep", "batch_yield_unit", "is required"))
	}
	return nil
}

// CheckMenuItem validates a menu item's authored attributes.
func (g *Guard) CheckMenuItem(item *models.MenuItem) error {
	if item == nil {
		return g.reject(validationError("menu_item", "", "is required"))
	}
	if strings.TrimSpace(item.Name) == "" {
		return g.reject(validationError("menu_item", "name", "is required"))
	}
	if item.Price.IsNegative() {
		return g.reject(validationError("menu_item", "price", "must not be negative, got %s", item.Price))
	}
	return nil
}

// CheckPrepIngredient validates a prep edge before insert or update. An edge
// with a non-zero ID is treated as an update of that row. An empty unit is
// filled in from the referenced ingredient.
func (g *Guard) CheckPrepIngredient(ctx context.Context, db *gorm.DB, edge *models.PrepIngredient) error {
	if edge == nil {
		return g.reject(validationError("prep_ingredient", "", "is required"))
	}
	if edge.PrepID == 0 {
		return g.reject(validationError("prep_ingredient", "prep_id", "is required"))
	}
	if edge.IngredientID == 0 {
		return g.reject(validationError("prep_ingredient", "ingredient_id", "is required"))
	}

	var duplicates int64
	query := db.WithContext(ctx).Model(&models.PrepIngredient{}).
		Where("prep_id = ? AND ingredient_id = ?", edge.PrepID, edge.IngredientID)
	if edge.ID != 0 {
		query = query.Where("id <> ?", edge.ID)
	}
	if err := query.Count(&duplicates).Error; err != nil {
		return classify(err, "prep_ingredient", edge.ID)
	}
	if duplicates > 0 {
		return g.reject(&Error{
			Kind:    KindDuplicateEdge,
			Entity:  "prep_ingredient",
			Message: fmt.Sprintf("prep %d already uses ingredient %d", edge.PrepID, edge.IngredientID),
		})
	}

	if !edge.Quantity.IsPositive() {
		return g.reject(validationError("prep_ingredient", "quantity", "must be greater than zero, got %s", edge.Quantity))
	}

	if err := exists(ctx, db, &models.Prep{}, "prep", edge.PrepID); err != nil {
		return g.reject(err)
	}
	var ingredient models.Ingredient
	if err := db.WithContext(ctx).Select("id", "unit").First(&ingredient, edge.IngredientID).Error; err != nil {
		return g.reject(classify(err, "ingredient", edge.IngredientID))
	}

	unit, err := matchUnit("prep_ingredient", edge.Unit, ingredient.Unit)
	if err != nil {
		return g.reject(err)
	}
	edge.Unit = unit
	return nil
}

// CheckMenuItemIngredient validates a menu item edge before insert or update.
// The edge must reference exactly one of an ingredient or a prep. An empty
// unit is filled in from the ingredient unit or the prep's yield unit.
func (g *Guard) CheckMenuItemIngredient(ctx context.Context, db *gorm.DB, edge *models.MenuItemIngredient) error {
	if edge == nil {
		return g.reject(validationError("menu_item_ingredient", "", "is required"))
	}

	hasIngredient := edge.HasIngredient()
	hasPrep := edge.HasPrep()
	if hasIngredient && hasPrep {
		return g.reject(&Error{
			Kind:    KindExclusivity,
			Entity:  "menu_item_ingredient",
			ID:      edge.ID,
			Message: "only one of ingredient_id or prep_id may be set",
		})
	}
	if !hasIngredient && !hasPrep {
		return g.reject(&Error{
			Kind:    KindExclusivity,
			Entity:  "menu_item_ingredient",
			ID:      edge.ID,
			Message: "either ingredient_id or prep_id must be provided",
		})
	}

	if edge.MenuItemID == 0 {
		return g.reject(validationError("menu_item_ingredient", "menu_item_id", "is required"))
	}
	if !edge.Quantity.IsPositive() {
		return g.reject(validationError("menu_item_ingredient", "quantity", "must be greater than zero, got %s", edge.Quantity))
	}

	if err := exists(ctx, db, &models.MenuItem{}, "menu_item", edge.MenuItemID); err != nil {
		return g.reject(err)
	}

	var sourceUnit string
	if hasIngredient {
		edge.PrepID = nil
		var ingredient models.Ingredient
		if err := db.WithContext(ctx).Select("id", "unit").First(&ingredient, *edge.IngredientID).Error; err != nil {
			return g.reject(classify(err, "ingredient", *edge.IngredientID))
		}
		sourceUnit = ingredient.Unit
	} else {
		edge.IngredientID = nil
		var prep models.Prep
		if err := db.WithContext(ctx).Select("id", "batch_yield_unit").First(&prep, *edge.PrepID).Error; err != nil {
			return g.reject(classify(err, "prep", *edge.PrepID))
		}
		sourceUnit = prep.BatchYieldUnit
	}

	unit, err := matchUnit("menu_item_ingredient", edge.Unit, sourceUnit)
	if err != nil {
		return g.reject(err)
	}
	edge.Unit = unit
	return nil
}

// CheckPrepDelete blocks deleting a prep that a menu item still uses.
func (g *Guard) CheckPrepDelete(ctx context.Context, db *gorm.DB, prepID uint) error {
	if err := exists(ctx, db, &models.Prep{}, "prep", prepID); err != nil {
		return err
	}

	ref, err := menuItemReferences(ctx, db, "menu_item_ingredients.prep_id = ?", prepID)
	if err != nil {
		return classify(err, "prep", prepID)
	}
	if ref.Count == 0 {
		return nil
	}
	return g.reject(&Error{
		Kind:       KindReferentialDeleteBlocked,
		Entity:     "prep",
		ID:         prepID,
		Message:    "still in use by " + describeReferences(ref),
		References: []Reference{ref},
	})
}

// CheckIngredientDelete blocks deleting an ingredient that a prep or a menu
// item still uses.
func (g *Guard) CheckIngredientDelete(ctx context.Context, db *gorm.DB, ingredientID uint) error {
	if err := exists(ctx, db, &models.Ingredient{}, "ingredient", ingredientID); err != nil {
		return err
	}

	var refs []Reference

	prepRef := Reference{Entity: "prep"}
	if err := db.WithContext(ctx).Model(&models.PrepIngredient{}).
		Where("ingredient_id = ?", ingredientID).
		Count(&prepRef.Count).Error; err != nil {
		return classify(err, "ingredient", ingredientID)
	}
	if prepRef.Count > 0 {
		var names []string
		if err := db.WithContext(ctx).Model(&models.PrepIngredient{}).
			Joins("JOIN preps ON preps.id = prep_ingredients.prep_id").
			Where("prep_ingredients.ingredient_id = ?", ingredientID).
			Order("preps.name asc").
			Limit(maxReferenceNames).
			Pluck("preps.name", &names).Error; err != nil {
			return classify(err, "ingredient", ingredientID)
		}
		prepRef.Names = names
		refs = append(refs, prepRef)
	}

	menuRef, err := menuItemReferences(ctx, db, "menu_item_ingredients.ingredient_id = ?", ingredientID)
	if err != nil {
		return classify(err, "ingredient", ingredientID)
	}
	if menuRef.Count > 0 {
		refs = append(refs, menuRef)
	}

	if len(refs) == 0 {
		return nil
	}

	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, describeReferences(ref))
	}
	return g.reject(&Error{
		Kind:       KindReferentialDeleteBlocked,
		Entity:     "ingredient",
		ID:         ingredientID,
		Message:    "still in use by " + strings.Join(parts, " and "),
		References: refs,
	})
}

// CheckPrepUnitChange rejects a new yield unit while menu item edges still
// measure the prep in the old one.
func (g *Guard) CheckPrepUnitChange(ctx context.Context, db *gorm.DB, prepID uint) error {
	ref, err := menuItemReferences(ctx, db, "menu_item_ingredients.prep_id = ?", prepID)
	if err != nil {
		return classify(err, "prep", prepID)
	}
	if ref.Count > 0 {
		return g.reject(validationError("prep", "batch_yield_unit", "cannot change while used by %s", describeReferences(ref)))
	}
	return nil
}

// CheckIngredientUnitChange rejects a new unit while any edge still measures
// the ingredient in the old one.
func (g *Guard) CheckIngredientUnitChange(ctx context.Context, db *gorm.DB, ingredientID uint) error {
	var edges int64
	if err := db.WithContext(ctx).Model(&models.PrepIngredient{}).
		Where("ingredient_id = ?", ingredientID).
		Count(&edges).Error; err != nil {
		return classify(err, "ingredient", ingredientID)
	}
	if edges == 0 {
		if err := db.WithContext(ctx).Model(&models.MenuItemIngredient{}).
			Where("ingredient_id = ?", ingredientID).
			Count(&edges).Error; err != nil {
			return classify(err, "ingredient", ingredientID)
		}
	}
	if edges > 0 {
		return g.reject(validationError("ingredient", "unit", "cannot change while the ingredient is in use"))
	}
	return nil
}

func menuItemReferences(ctx context.Context, db *gorm.DB, where string, id uint) (Reference, error) {
	ref := Reference{Entity: "menu_item"}
	if err := db.WithContext(ctx).Model(&models.MenuItemIngredient{}).
		Where(where, id).
		Count(&ref.Count).Error; err != nil {
		return Reference{}, err
	}
	if ref.Count == 0 {
		return ref, nil
	}

	var names []string
	if err := db.WithContext(ctx).Model(&models.MenuItemIngredient{}).
		Joins("JOIN menu_items ON menu_items.id = menu_item_ingredients.menu_item_id").
		Where(where, id).
		Order("menu_items.name asc").
		Pluck("menu_items.name", &names).Error; err != nil {
		return Reference{}, err
	}
	ref.Names = uniqueNames(names, maxReferenceNames)
	return ref, nil
}

func describeReferences(ref Reference) string {
	label := ref.Entity + "s"
	if ref.Count == 1 {
		label = ref.Entity
	}
	desc := fmt.Sprintf("%d %s", ref.Count, label)
	if len(ref.Names) > 0 {
		desc += " (" + strings.Join(ref.Names, ", ") + ")"
	}
	return desc
}

func exists(ctx context.Context, db *gorm.DB, model any, entity string, id uint) error {
	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return classify(err, entity, id)
	}
	if count == 0 {
		return notFound(entity, id)
	}
	return nil
}

func matchUnit(entity, edgeUnit, sourceUnit string) (string, error) {
	trimmed := strings.TrimSpace(edgeUnit)
	if trimmed == "" {
		return sourceUnit, nil
	}
	if !strings.EqualFold(trimmed, strings.TrimSpace(sourceUnit)) {
		return "", validationError(entity, "unit", "%q does not match the source unit %q", trimmed, sourceUnit)
	}
	return sourceUnit, nil
}

func uniqueNames(names []string, limit int) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}
