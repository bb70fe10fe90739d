package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prep is a batch preparation built from ingredients. CostPerBatch and
// CostPerUnit are derived and only written by the costing engine.
type Prep struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	Name             string           `gorm:"not null;index" json:"name"`
	AltName          string           `json:"alt_name"`
	Description      string           `gorm:"type:text" json:"description"`
	Notes            string           `gorm:"type:text" json:"notes"`
	BatchYieldAmount decimal.Decimal  `gorm:"type:numeric;not null" json:"batch_yield_amount"`
	BatchYieldUnit   string           `gorm:"not null" json:"batch_yield_unit"`
	CostPerBatch     decimal.Decimal  `gorm:"type:numeric;not null;default:0" json:"cost_per_batch"`
	CostPerUnit      decimal.Decimal  `gorm:"type:numeric;not null;default:0" json:"cost_per_unit"`
	CostStale        bool             `gorm:"not null;index" json:"cost_stale"`
	CostedAt         *time.Time       `json:"costed_at,omitempty"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	Version          int              `gorm:"not null" json:"version"`
	Ingredients      []PrepIngredient `gorm:"foreignKey:PrepID" json:"ingredients,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
