package mock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prepcost/internal/costing"
	"prepcost/internal/db"
	applog "prepcost/internal/log"
	"prepcost/models"
)

var instances atomic.Int64

// New returns an in-memory sqlite database seeded with a small kitchen: raw
// ingredients, a green curry paste and a curry dish that uses it.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	cfg := db.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	dsn := fmt.Sprintf("file:prepcost-mock-%d?mode=memory&cache=shared", instances.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(models.All()...); err != nil {
		return nil, err
	}

	if err := seed(ctx, gdb); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return gdb, nil
}

func seed(ctx context.Context, gdb *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	store := costing.NewStore(gdb, nil)
	svc := costing.NewService(store, costing.NewScheduler(store, nil, costing.DefaultOptions()))

	ingredients := map[string]*models.Ingredient{
		"garlic":     {Name: "Garlic", AltName: "Kratiem", Unit: "g", CostPerUnit: decimal.RequireFromString("0.02")},
		"shallot":    {Name: "Shallot", AltName: "Hom daeng", Unit: "g", CostPerUnit: decimal.RequireFromString("0.015")},
		"lemongrass": {Name: "Lemongrass", AltName: "Takrai", Unit: "g", CostPerUnit: decimal.RequireFromString("0.012")},
		"chili":      {Name: "Green Chili", AltName: "Prik khiao", Unit: "g", CostPerUnit: decimal.RequireFromString("0.03")},
		"coconut":    {Name: "Coconut Milk", Unit: "ml", CostPerUnit: decimal.RequireFromString("0.004")},
		"chicken":    {Name: "Chicken Thigh", Unit: "g", CostPerUnit: decimal.RequireFromString("0.011")},
	}
	for _, key := range []string{"garlic", "shallot", "lemongrass", "chili", "coconut", "chicken"} {
		ingredient := ingredients[key]
		ingredient.IsActive = true
		if err := svc.CreateIngredient(ctx, ingredient); err != nil {
			return fmt.Errorf("seed ingredient %s: %w", ingredient.Name, err)
		}
	}

	paste, err := svc.CreatePrep(ctx, costing.CreatePrepInput{
		Name:             "Green Curry Paste",
		AltName:          "Prik gaeng khiao wan",
		Description:      "Pounded base for green curry.",
		BatchYieldAmount: decimal.NewFromInt(500),
		BatchYieldUnit:   "g",
		Ingredients: []costing.PrepEdgeInput{
			{IngredientID: ingredients["garlic"].ID, Quantity: decimal.NewFromInt(100)},
			{IngredientID: ingredients["shallot"].ID, Quantity: decimal.NewFromInt(80)},
			{IngredientID: ingredients["lemongrass"].ID, Quantity: decimal.NewFromInt(60)},
			{IngredientID: ingredients["chili"].ID, Quantity: decimal.NewFromInt(120)},
		},
	})
	if err != nil {
		return fmt.Errorf("seed prep: %w", err)
	}

	_, err = svc.CreateMenuItem(ctx, models.MenuItem{
		Name:     "Curry Dish",
		AltName:  "Gaeng khiao wan gai",
		Price:    decimal.RequireFromString("12.50"),
		IsActive: true,
	}, []models.MenuItemIngredient{
		{PrepID: &paste.ID, Quantity: decimal.NewFromInt(50)},
		{IngredientID: &ingredients["coconut"].ID, Quantity: decimal.NewFromInt(200)},
		{IngredientID: &ingredients["chicken"].ID, Quantity: decimal.NewFromInt(150)},
		{IngredientID: &ingredients["garlic"].ID, Quantity: decimal.NewFromInt(5)},
	})
	if err != nil {
		return fmt.Errorf("seed menu item: %w", err)
	}
	return nil
}
