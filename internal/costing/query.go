package costing

import (
	"context"

	"github.com/shopspring/decimal"

	"prepcost/models"
)

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

// PrepLine is a prep edge resolved against the ingredient's current row.
type PrepLine struct {
	IngredientID   uint            `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	LineCost       decimal.Decimal `json:"line_cost"`
	Notes          string          `json:"notes,omitempty"`
}

// PrepDetail is a prep with its edges resolved.
type PrepDetail struct {
	models.Prep
	Lines []PrepLine `json:"lines"`
}

// Breakdown compares a prep's live cost with what is stored.
type Breakdown struct {
	PrepID           uint            `json:"prep_id"`
	PrepName         string          `json:"prep_name"`
	BatchYieldAmount decimal.Decimal `json:"batch_yield_amount"`
	BatchYieldUnit   string          `json:"batch_yield_unit"`
	Lines            []PrepLine      `json:"lines"`
	CostPerBatch     decimal.Decimal `json:"cost_per_batch"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	StoredPerBatch   decimal.Decimal `json:"stored_cost_per_batch"`
	StoredPerUnit    decimal.Decimal `json:"stored_cost_per_unit"`
	Stale            bool            `json:"cost_stale"`
	Drift            bool            `json:"drift"`
}

// MenuItemLine is one menu item edge priced live.
type MenuItemLine struct {
	EdgeID       uint            `json:"id"`
	Source       string          `json:"source"`
	IngredientID *uint           `json:"ingredient_id,omitempty"`
	PrepID       *uint           `json:"prep_id,omitempty"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	LineCost     decimal.Decimal `json:"line_cost"`
}

// MenuItemBreakdown is the plate cost of a menu item.
type MenuItemBreakdown struct {
	MenuItemID  uint             `json:"menu_item_id"`
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	Lines       []MenuItemLine   `json:"lines"`
	TotalCost   decimal.Decimal  `json:"total_cost"`
	FoodCostPct *decimal.Decimal `json:"food_cost_pct,omitempty"`
}

// Query serves read-only views of the graph. Costs it reports are rounded;
// the stored values are not.
type Query struct {
	store *Store
}

// NewQuery builds a Query over store.
func NewQuery(store *Store) *Query {
	return &Query{store: store}
}

// SearchPreps matches name or alt_name case-insensitively.
func (q *Query) SearchPreps(ctx context.Context, filter PrepFilter) (Page[models.Prep], error) {
	items, total, err := q.store.ListPreps(ctx, filter)
	if err != nil {
		return Page[models.Prep]{}, err
	}
	offset, limit := normalizePage(filter.Offset, filter.Limit)
	for i := range items {
		roundPrep(&items[i])
	}
	return Page[models.Prep]{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// SearchIngredients matches name or alt_name case-insensitively.
func (q *Query) SearchIngredients(ctx context.Context, filter IngredientFilter) (Page[models.Ingredient], error) {
	items, total, err := q.store.ListIngredients(ctx, filter)
	if err != nil {
		return Page[models.Ingredient]{}, err
	}
	offset, limit := normalizePage(filter.Offset, filter.Limit)
	return Page[models.Ingredient]{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// SearchMenuItems matches name or alt_name case-insensitively.
func (q *Query) SearchMenuItems(ctx context.Context, search string, activeOnly bool, offset, limit int) (Page[models.MenuItem], error) {
	items, total, err := q.store.ListMenuItems(ctx, search, activeOnly, offset, limit)
	if err != nil {
		return Page[models.MenuItem]{}, err
	}
	offset, limit = normalizePage(offset, limit)
	return Page[models.MenuItem]{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// GetPrep returns a prep without its edges, costs rounded.
func (q *Query) GetPrep(ctx context.Context, id uint) (*models.Prep, error) {
	prep, err := q.store.GetPrep(ctx, id, false)
	if err != nil {
		return nil, err
	}
	roundPrep(prep)
	return prep, nil
}

// GetPrepWithIngredients returns a prep with each edge resolved to the
// ingredient's current name and cost.
func (q *Query) GetPrepWithIngredients(ctx context.Context, id uint) (*PrepDetail, error) {
	prep, err := q.store.GetPrep(ctx, id, true)
	if err != nil {
		return nil, err
	}
	lines, _, err := resolvePrepLines(prep)
	if err != nil {
		return nil, err
	}
	prep.Ingredients = nil
	roundPrep(prep)
	return &PrepDetail{Prep: *prep, Lines: lines}, nil
}

// GetCostBreakdown recomputes a prep's cost from current ingredient costs
// and flags drift from the stored values.
func (q *Query) GetCostBreakdown(ctx context.Context, prepID uint) (*Breakdown, error) {
	prep, err := q.store.GetPrep(ctx, prepID, true)
	if err != nil {
		return nil, err
	}
	lines, cost, err := resolvePrepLines(prep)
	if err != nil {
		return nil, err
	}

	return &Breakdown{
		PrepID:           prep.ID,
		PrepName:         prep.Name,
		BatchYieldAmount: prep.BatchYieldAmount,
		BatchYieldUnit:   prep.BatchYieldUnit,
		Lines:            lines,
		CostPerBatch:     RoundCurrency(cost.PerBatch),
		CostPerUnit:      RoundUnitPrice(cost.PerUnit),
		StoredPerBatch:   RoundCurrency(prep.CostPerBatch),
		StoredPerUnit:    RoundUnitPrice(prep.CostPerUnit),
		Stale:            prep.CostStale,
		Drift:            !RoundCurrency(cost.PerBatch).Equal(RoundCurrency(prep.CostPerBatch)) || !RoundUnitPrice(cost.PerUnit).Equal(RoundUnitPrice(prep.CostPerUnit)),
	}, nil
}

// GetMenuItemCostBreakdown prices every edge of a menu item. Prep lines use
// the prep's live per-unit cost.
func (q *Query) GetMenuItemCostBreakdown(ctx context.Context, menuItemID uint) (*MenuItemBreakdown, error) {
	item, err := q.store.GetMenuItem(ctx, menuItemID, true)
	if err != nil {
		return nil, err
	}

	out := &MenuItemBreakdown{
		MenuItemID: item.ID,
		Name:       item.Name,
		Price:      RoundCurrency(item.Price),
		Lines:      make([]MenuItemLine, 0, len(item.Ingredients)),
	}

	total := decimal.Zero
	for _, edge := range item.Ingredients {
		line := MenuItemLine{
			EdgeID:       edge.ID,
			IngredientID: edge.IngredientID,
			PrepID:       edge.PrepID,
			Quantity:     edge.Quantity,
			Unit:         edge.Unit,
		}
		var unitCost decimal.Decimal
		switch {
		case edge.HasIngredient():
			if edge.Ingredient == nil {
				return nil, notFound("ingredient", *edge.IngredientID)
			}
			line.Source = "ingredient"
			line.Name = edge.Ingredient.Name
			unitCost = edge.Ingredient.CostPerUnit
		case edge.HasPrep():
			if edge.Prep == nil {
				return nil, notFound("prep", *edge.PrepID)
			}
			prep, err := q.store.GetPrep(ctx, *edge.PrepID, true)
			if err != nil {
				return nil, err
			}
			_, cost, err := resolvePrepLines(prep)
			if err != nil {
				return nil, err
			}
			line.Source = "prep"
			line.Name = prep.Name
			unitCost = cost.PerUnit
		default:
			return nil, &Error{Kind: KindExclusivity, Entity: "menu_item_ingredient", ID: edge.ID, Message: "references neither an ingredient nor a prep"}
		}

		lineCost := edge.Quantity.Mul(unitCost)
		total = total.Add(lineCost)
		line.UnitCost = RoundUnitPrice(unitCost)
		line.LineCost = RoundCurrency(lineCost)
		out.Lines = append(out.Lines, line)
	}

	out.TotalCost = RoundCurrency(total)
	if item.Price.IsPositive() {
		pct := total.Div(item.Price).Mul(decimal.NewFromInt(100)).Round(CurrencyPrecision)
		out.FoodCostPct = &pct
	}
	return out, nil
}

func resolvePrepLines(prep *models.Prep) ([]PrepLine, PrepCost, error) {
	lines := make([]PrepLine, 0, len(prep.Ingredients))
	costLines := make([]CostLine, 0, len(prep.Ingredients))
	for _, edge := range prep.Ingredients {
		if edge.Ingredient == nil {
			return nil, PrepCost{}, notFound("ingredient", edge.IngredientID)
		}
		cl := CostLine{IngredientID: edge.IngredientID, Quantity: edge.Quantity, UnitCost: edge.Ingredient.CostPerUnit}
		costLines = append(costLines, cl)
		lines = append(lines, PrepLine{
			IngredientID:   edge.IngredientID,
			IngredientName: edge.Ingredient.Name,
			Quantity:       edge.Quantity,
			Unit:           edge.Unit,
			UnitCost:       RoundUnitPrice(cl.UnitCost),
			LineCost:       RoundCurrency(cl.LineCost()),
			Notes:          edge.Notes,
		})
	}
	cost, err := Calculate(prep.BatchYieldAmount, costLines)
	if err != nil {
		return nil, PrepCost{}, err
	}
	return lines, cost, nil
}

func roundPrep(prep *models.Prep) {
	prep.CostPerBatch = RoundCurrency(prep.CostPerBatch)
	prep.CostPerUnit = RoundUnitPrice(prep.CostPerUnit)
}
