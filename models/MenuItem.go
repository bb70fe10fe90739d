package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MenuItem is a dish sold to guests. Its price is authored, not derived.
type MenuItem struct {
	ID          uint                 `gorm:"primaryKey" json:"id"`
	Name        string               `gorm:"not null;index" json:"name"`
	AltName     string               `json:"alt_name"`
	Price       decimal.Decimal      `gorm:"type:numeric;not null;default:0" json:"price"`
	IsActive    bool                 `gorm:"not null" json:"is_active"`
	Ingredients []MenuItemIngredient `gorm:"foreignKey:MenuItemID" json:"ingredients,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}
