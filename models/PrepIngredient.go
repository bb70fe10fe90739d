package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrepIngredient links an Ingredient into a Prep. A pair may appear once.
type PrepIngredient struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	PrepID       uint            `gorm:"not null;uniqueIndex:idx_prep_ingredient_pair" json:"prep_id"`
	IngredientID uint            `gorm:"not null;uniqueIndex:idx_prep_ingredient_pair;index:idx_prep_ingredients_ingredient" json:"ingredient_id"`
	Quantity     decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	Unit         string          `gorm:"not null" json:"unit"`
	Notes        string          `json:"notes"`
	Ingredient   *Ingredient     `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
