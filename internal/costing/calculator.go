package costing

import (
	"github.com/shopspring/decimal"
)

const (
	// CurrencyPrecision is applied to batch totals and line costs when they
	// leave the engine.
	CurrencyPrecision int32 = 2
	// UnitPricePrecision is applied to per-unit prices when they leave the engine.
	UnitPricePrecision int32 = 4
)

// CostLine is one resolved input to a prep: an edge quantity priced at the
// referenced ingredient's current cost per unit.
type CostLine struct {
	IngredientID uint
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
}

// LineCost is Quantity × UnitCost.
func (l CostLine) LineCost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// PrepCost holds the derived cost fields of a prep, unrounded.
type PrepCost struct {
	PerBatch decimal.Decimal
	PerUnit  decimal.Decimal
}

// Equal reports whether both derived values match exactly.
func (c PrepCost) Equal(other PrepCost) bool {
	return c.PerBatch.Equal(other.PerBatch) && c.PerUnit.Equal(other.PerUnit)
}

// Calculate derives a prep's batch and per-unit cost from its resolved lines.
// It has no side effects and never rounds.
func Calculate(yield decimal.Decimal, lines []CostLine) (PrepCost, error) {
	if !yield.IsPositive() {
		return PrepCost{}, validationError("prep", "batch_yield_amount", "must be greater than zero, got %s", yield)
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineCost())
	}

	return PrepCost{
		PerBatch: total,
		PerUnit:  total.Div(yield),
	}, nil
}

// RoundCurrency rounds a monetary total for display.
func RoundCurrency(value decimal.Decimal) decimal.Decimal {
	return value.Round(CurrencyPrecision)
}

// RoundUnitPrice rounds a per-unit price for display.
func RoundUnitPrice(value decimal.Decimal) decimal.Decimal {
	return value.Round(UnitPricePrecision)
}
