package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MenuItemIngredient struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	MenuItemID uint            `gorm:"not null;index" json:"menu_item_id"`
	Quantity   decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	Unit       string          `gorm:"not null" json:"unit"`
	Notes      string          `json:"notes"`

	// --- Source Link ---
	// Exactly one of these is non-null.
	IngredientID *uint `gorm:"index" json:"ingredient_id,omitempty"`
	PrepID       *uint `gorm:"index" json:"prep_id,omitempty"`

	Ingredient *Ingredient `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
	Prep       *Prep       `gorm:"foreignKey:PrepID" json:"prep,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasIngredient reports whether the edge points at a raw ingredient.
func (m MenuItemIngredient) HasIngredient() bool {
	return m.IngredientID != nil && *m.IngredientID != 0
}

// HasPrep reports whether the edge points at a prep.
func (m MenuItemIngredient) HasPrep() bool {
	return m.PrepID != nil && *m.PrepID != 0
}
