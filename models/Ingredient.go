package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient is a raw, purchasable item priced per unit of measure.
type Ingredient struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"uniqueIndex;not null" json:"name"`
	AltName     string          `json:"alt_name"`
	Unit        string          `gorm:"not null" json:"unit"`
	CostPerUnit decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"cost_per_unit"`
	IsActive    bool            `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
