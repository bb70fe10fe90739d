package costing

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prepcost/internal/db"
	"prepcost/models"
)

var testDBSeq atomic.Int64

type fixture struct {
	db        *gorm.DB
	metrics   *Metrics
	store     *Store
	scheduler *Scheduler
	query     *Query
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:costing-%s-%d?mode=memory&cache=shared", name, testDBSeq.Add(1))

	cfg := db.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(models.All()...))

	metrics := NewMetrics()
	store := NewStore(gdb, NewGuard(metrics))
	scheduler := NewScheduler(store, metrics, Options{
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		Concurrency:  2,
		PrepTimeout:  5 * time.Second,
	})
	service := NewService(store, scheduler)
	return &fixture{
		db:        gdb,
		metrics:   metrics,
		store:     store,
		scheduler: scheduler,
		query:     service.Query(),
		service:   service,
	}
}

func (f *fixture) ingredient(t *testing.T, name, unit, cost string) *models.Ingredient {
	t.Helper()
	ingredient := &models.Ingredient{Name: name, Unit: unit, CostPerUnit: dec(cost), IsActive: true}
	require.NoError(t, f.service.CreateIngredient(context.Background(), ingredient))
	return ingredient
}

func (f *fixture) prep(t *testing.T, name, yield, unit string, lines ...PrepEdgeInput) *models.Prep {
	t.Helper()
	prep, err := f.service.CreatePrep(context.Background(), CreatePrepInput{
		Name:             name,
		BatchYieldAmount: dec(yield),
		BatchYieldUnit:   unit,
		Ingredients:      lines,
	})
	require.NoError(t, err)
	return prep
}

func (f *fixture) menuItem(t *testing.T, name, price string, edges ...models.MenuItemIngredient) *models.MenuItem {
	t.Helper()
	item, err := f.service.CreateMenuItem(context.Background(), models.MenuItem{Name: name, Price: dec(price), IsActive: true}, edges)
	require.NoError(t, err)
	return item
}

func (f *fixture) storedPrep(t *testing.T, id uint) *models.Prep {
	t.Helper()
	prep, err := f.store.GetPrep(context.Background(), id, false)
	require.NoError(t, err)
	return prep
}

func line(ingredientID uint, quantity string) PrepEdgeInput {
	return PrepEdgeInput{IngredientID: ingredientID, Quantity: dec(quantity)}
}

func idPtr(id uint) *uint {
	return &id
}

// greenCurry seeds Garlic (0.02/g) and Green Curry Paste (100 g garlic, 500 g yield).
func greenCurry(t *testing.T, f *fixture) (*models.Ingredient, *models.Prep) {
	t.Helper()
	garlic := f.ingredient(t, "Garlic", "g", "0.02")
	paste := f.prep(t, "Green Curry Paste", "500", "g", line(garlic.ID, "100"))
	return garlic, paste
}
