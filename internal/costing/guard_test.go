package costing

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepcost/models"
)

func TestGuardAttributeChecks(t *testing.T) {
	t.Parallel()
	g := NewGuard(nil)

	tests := []struct {
		name  string
		err   error
		field string
	}{
		{"ingredient without name", g.CheckIngredient(&models.Ingredient{Unit: "g"}), "name"},
		{"ingredient without unit", g.CheckIngredient(&models.Ingredient{Name: "Garlic"}), "unit"},
		{"negative ingredient cost", g.CheckIngredient(&models.Ingredient{Name: "Garlic", Unit: "g", CostPerUnit: dec("-0.01")}), "cost_per_unit"},
		{"zero yield", g.CheckPrep(&models.Prep{Name: "Paste", BatchYieldUnit: "g"}), "batch_yield_amount"},
		{"negative yield", g.CheckPrep(&models.Prep{Name: "Paste", BatchYieldAmount: dec("-1"), BatchYieldUnit: "g"}), "batch_yield_amount"},
		{"prep without yield unit", g.CheckPrep(&models.Prep{Name: "Paste", BatchYieldAmount: dec("1")}), "batch_yield_unit"},
		{"negative price", g.CheckMenuItem(&models.MenuItem{Name: "Curry", Price: dec("-1")}), "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			var e *Error
			require.True(t, errors.As(tt.err, &e))
			assert.Equal(t, KindValidation, e.Kind)
			assert.Equal(t, tt.field, e.Field)
		})
	}

	assert.NoError(t, g.CheckIngredient(&models.Ingredient{Name: "Salt", Unit: "g"}), "a free ingredient is valid")
	assert.NoError(t, g.CheckMenuItem(&models.MenuItem{Name: "Water"}), "a zero price is valid")
}

func TestGuardMenuItemExclusivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	garlic, paste := greenCurry(t, f)
	item := f.menuItem(t, "Curry Dish", "12")

	both := &models.MenuItemIngredient{MenuItemID: item.ID, IngredientID: idPtr(garlic.ID), PrepID: idPtr(paste.ID), Quantity: dec("1")}
	err := f.store.AddMenuItemIngredient(ctx, both)
	assert.True(t, errors.Is(err, ErrExclusivity), "got %v", err)

	neither := &models.MenuItemIngredient{MenuItemID: item.ID, Quantity: dec("1")}
	err = f.store.AddMenuItemIngredient(ctx, neither)
	assert.True(t, errors.Is(err, ErrExclusivity), "got %v", err)

	var edges int64
	require.NoError(t, f.db.Model(&models.MenuItemIngredient{}).Count(&edges).Error)
	assert.Zero(t, edges, "rejected edges are not stored")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.guardRejections.WithLabelValues(string(KindExclusivity))))
}

func TestGuardDuplicatePrepEdge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	garlic, paste := greenCurry(t, f)

	err := f.store.AddPrepIngredient(ctx, &models.PrepIngredient{PrepID: paste.ID, IngredientID: garlic.ID, Quantity: dec("5")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateEdge), "got %v", err)

	prep, err := f.store.GetPrep(ctx, paste.ID, true)
	require.NoError(t, err)
	require.Len(t, prep.Ingredients, 1)
	assert.True(t, prep.Ingredients[0].Quantity.Equal(dec("100")))
}

func TestGuardUpdateIgnoresOwnEdge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	garlic, paste := greenCurry(t, f)

	edge := &models.PrepIngredient{PrepID: paste.ID, IngredientID: garlic.ID, Quantity: dec("150")}
	require.NoError(t, f.store.UpdatePrepIngredient(context.Background(), edge))
	assert.NotZero(t, edge.ID)
}

func TestGuardEdgeChecks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	garlic, paste := greenCurry(t, f)
	item := f.menuItem(t, "Curry Dish", "12")

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "zero quantity",
			run: func() error {
				return f.store.AddMenuItemIngredient(ctx, &models.MenuItemIngredient{MenuItemID: item.ID, IngredientID: idPtr(garlic.ID)})
			},
			want: ErrValidation,
		},
		{
			name: "unknown ingredient",
			run: func() error {
				return f.store.AddPrepIngredient(ctx, &models.PrepIngredient{PrepID: paste.ID, IngredientID: 999, Quantity: dec("1")})
			},
			want: ErrNotFound,
		},
		{
			name: "unknown prep",
			run: func() error {
				return f.store.AddMenuItemIngredient(ctx, &models.MenuItemIngredient{MenuItemID: item.ID, PrepID: idPtr(999), Quantity: dec("1")})
			},
			want: ErrNotFound,
		},
		{
			name: "unknown menu item",
			run: func() error {
				return f.store.AddMenuItemIngredient(ctx, &models.MenuItemIngredient{MenuItemID: 999, PrepID: idPtr(paste.ID), Quantity: dec("1")})
			},
			want: ErrNotFound,
		},
		{
			name: "unit mismatch",
			run: func() error {
				return f.store.AddMenuItemIngredient(ctx, &models.MenuItemIngredient{MenuItemID: item.ID, PrepID: idPtr(paste.ID), Quantity: dec("1"), Unit: "ml"})
			},
			want: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestGuardUnitMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, paste := greenCurry(t, f)
	item := f.menuItem(t, "Curry Dish", "12")

	edge := &models.MenuItemIngredient{MenuItemID: item.ID, PrepID: idPtr(paste.ID), Quantity: dec("50"), Unit: "G"}
	require.NoError(t, f.store.AddMenuItemIngredient(context.Background(), edge))
	assert.Equal(t, "g", edge.Unit)
}

func TestGuardBlocksReferencedPrepDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, paste := greenCurry(t, f)
	f.menuItem(t, "Curry Dish", "12", models.MenuItemIngredient{PrepID: idPtr(paste.ID), Quantity: dec("50")})

	err := f.service.DeletePrep(ctx, paste.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferentialDeleteBlocked), "got %v", err)

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Len(t, e.References, 1)
	assert.Equal(t, "menu_item", e.References[0].Entity)
	assert.Equal(t, int64(1), e.References[0].Count)
	assert.Equal(t, []string{"Curry Dish"}, e.References[0].Names)
	assert.Contains(t, err.Error(), "Curry Dish")

	prep, err := f.store.GetPrep(ctx, paste.ID, true)
	require.NoError(t, err, "blocked delete leaves the prep in place")
	assert.Len(t, prep.Ingredients, 1)
}

func TestGuardBlocksReferencedIngredientDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	garlic, _ := greenCurry(t, f)
	f.menuItem(t, "Garlic Bread", "6", models.MenuItemIngredient{IngredientID: idPtr(garlic.ID), Quantity: dec("10")})

	err := f.service.DeleteIngredient(ctx, garlic.ID)
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindReferentialDeleteBlocked, e.Kind)
	require.Len(t, e.References, 2)
	assert.Equal(t, Reference{Entity: "prep", Count: 1, Names: []string{"Green Curry Paste"}}, e.References[0])
	assert.Equal(t, Reference{Entity: "menu_item", Count: 1, Names: []string{"Garlic Bread"}}, e.References[1])

	unused := f.ingredient(t, "Lemongrass", "g", "0.1")
	require.NoError(t, f.service.DeleteIngredient(ctx, unused.ID))
	_, err = f.store.GetIngredient(ctx, unused.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGuardBlocksUnitChangeWhileReferenced(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	garlic, paste := greenCurry(t, f)

	kg := "kg"
	_, _, err := f.service.UpdateIngredient(ctx, garlic.ID, IngredientPatch{Unit: &kg})
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	f.menuItem(t, "Curry Dish", "12", models.MenuItemIngredient{PrepID: idPtr(paste.ID), Quantity: dec("50")})
	_, err = f.service.UpdatePrep(ctx, paste.ID, PrepPatch{BatchYieldUnit: &kg})
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	name := "Garlic (peeled)"
	updated, _, err := f.service.UpdateIngredient(ctx, garlic.ID, IngredientPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
}

func TestDescribeReferences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1 menu_item (Curry Dish)", describeReferences(Reference{Entity: "menu_item", Count: 1, Names: []string{"Curry Dish"}}))
	assert.Equal(t, "3 preps", describeReferences(Reference{Entity: "prep", Count: 3}))
}

func TestUniqueNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, uniqueNames([]string{"a", "a", "b", "c"}, 2))
	assert.Equal(t, []string{}, uniqueNames(nil, 5))
}
