package costing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"prepcost/internal/log"
)

// Options tunes retries and fan-out.
type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	Concurrency  int
	PrepTimeout  time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		RetryBackoff: 50 * time.Millisecond,
		Concurrency:  4,
		PrepTimeout:  10 * time.Second,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.MaxAttempts < 1 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.Concurrency < 1 {
		o.Concurrency = def.Concurrency
	}
	if o.PrepTimeout <= 0 {
		o.PrepTimeout = def.PrepTimeout
	}
	return o
}

// PrepFailure records a prep whose recompute failed during a fan-out.
type PrepFailure struct {
	PrepID uint   `json:"prep_id"`
	Code   Kind   `json:"code"`
	Error  string `json:"error"`
}

// Report summarises a propagation or reconciliation run.
type Report struct {
	IngredientID uint          `json:"ingredient_id,omitempty"`
	Updated      []uint        `json:"updated"`
	Failed       []PrepFailure `json:"failed"`
}

// OK reports whether every prep was recomputed.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Scheduler keeps stored prep costs in step with ingredient costs.
type Scheduler struct {
	store   *Store
	metrics *Metrics
	opts    Options
}

// NewScheduler builds a scheduler over store. metrics may be nil.
func NewScheduler(store *Store, metrics *Metrics, opts Options) *Scheduler {
	return &Scheduler{store: store, metrics: metrics, opts: opts.normalized()}
}

// RecomputePrep recalculates one prep in its own transaction, retrying
// conflicts and transient store failures.
func (s *Scheduler) RecomputePrep(ctx context.Context, prepID uint) (PrepCost, error) {
	var cost PrepCost
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(tx *Store) error {
			c, err := s.recomputeWith(ctx, tx, prepID)
			if err != nil {
				return err
			}
			cost = c
			return nil
		})
	})
	return cost, err
}

// recomputeWith does the read, calculate and versioned write against a store
// the caller has already bound to a transaction.
func (s *Scheduler) recomputeWith(ctx context.Context, tx *Store, prepID uint) (PrepCost, error) {
	cost, err := s.recompute(ctx, tx, prepID)
	switch {
	case err == nil:
		s.metrics.recompute("ok")
	case errors.Is(err, ErrConcurrencyConflict):
		s.metrics.recompute("conflict")
	default:
		s.metrics.recompute("error")
	}
	return cost, err
}

func (s *Scheduler) recompute(ctx context.Context, tx *Store, prepID uint) (PrepCost, error) {
	prep, err := tx.GetPrep(ctx, prepID, true)
	if err != nil {
		return PrepCost{}, err
	}

	lines := make([]CostLine, 0, len(prep.Ingredients))
	for _, edge := range prep.Ingredients {
		if edge.Ingredient == nil {
			return PrepCost{}, &Error{
				Kind:    KindNotFound,
				Entity:  "ingredient",
				ID:      edge.IngredientID,
				Message: "referenced by prep " + prep.Name + " but does not exist",
			}
		}
		lines = append(lines, CostLine{
			IngredientID: edge.IngredientID,
			Quantity:     edge.Quantity,
			UnitCost:     edge.Ingredient.CostPerUnit,
		})
	}

	cost, err := Calculate(prep.BatchYieldAmount, lines)
	if err != nil {
		return PrepCost{}, err
	}
	if _, err := tx.WritePrepCost(ctx, prep.ID, prep.Version, cost); err != nil {
		return PrepCost{}, err
	}

	log.Debug(ctx, "prep cost recomputed",
		"prep_id", prep.ID,
		"cost_per_batch", cost.PerBatch.String(),
		"cost_per_unit", cost.PerUnit.String(),
	)
	return cost, nil
}

// IngredientCostChanged recomputes every prep that uses the ingredient. Each
// prep runs in its own transaction with its own timeout; one failure does not
// stop the others. Failed preps are flagged stale for Reconcile.
func (s *Scheduler) IngredientCostChanged(ctx context.Context, ingredientID uint) (Report, error) {
	start := time.Now()

	var prepIDs []uint
	err := s.retry(ctx, func(ctx context.Context) error {
		ids, err := s.store.PrepIDsUsingIngredient(ctx, ingredientID)
		prepIDs = ids
		return err
	})
	if err != nil {
		return Report{IngredientID: ingredientID}, err
	}

	report := s.fanOut(ctx, prepIDs)
	report.IngredientID = ingredientID
	s.metrics.propagated(time.Since(start))

	if report.OK() {
		log.Info(ctx, "ingredient cost propagated",
			"ingredient_id", ingredientID,
			"updated", len(report.Updated),
			"duration", time.Since(start),
		)
	} else {
		log.Warn(ctx, "ingredient cost propagated with failures",
			"ingredient_id", ingredientID,
			"updated", len(report.Updated),
			"failed", len(report.Failed),
		)
	}
	return report, nil
}

// Reconcile recomputes every stale prep, or every prep when all is set.
func (s *Scheduler) Reconcile(ctx context.Context, all bool) (Report, error) {
	var prepIDs []uint
	err := s.retry(ctx, func(ctx context.Context) error {
		var err error
		if all {
			prepIDs, err = s.store.AllPrepIDs(ctx)
		} else {
			prepIDs, err = s.store.StalePrepIDs(ctx)
		}
		return err
	})
	if err != nil {
		return Report{}, err
	}
	if len(prepIDs) == 0 {
		return Report{Updated: []uint{}, Failed: []PrepFailure{}}, nil
	}

	report := s.fanOut(ctx, prepIDs)
	log.Info(ctx, "reconciled prep costs",
		"all", all,
		"updated", len(report.Updated),
		"failed", len(report.Failed),
	)
	return report, nil
}

// ReconcileEvery runs Reconcile on a ticker until ctx is done.
func (s *Scheduler) ReconcileEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx, false); err != nil {
				log.Error(ctx, "reconcile failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) fanOut(ctx context.Context, prepIDs []uint) Report {
	report := Report{Updated: []uint{}, Failed: []PrepFailure{}}
	var mu sync.Mutex

	// A plain Group: one prep's error must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, prepID := range prepIDs {
		prepID := prepID
		g.Go(func() error {
			prepCtx, cancel := context.WithTimeout(ctx, s.opts.PrepTimeout)
			defer cancel()

			_, err := s.RecomputePrep(prepCtx, prepID)
			if err != nil && isMissingPrep(err, prepID) {
				log.Debug(ctx, "prep deleted before recompute", "prep_id", prepID)
				return nil
			}
			if err != nil {
				s.markStale(ctx, prepID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, PrepFailure{PrepID: prepID, Code: KindOf(err), Error: err.Error()})
				return nil
			}
			report.Updated = append(report.Updated, prepID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Updated, func(i, j int) bool { return report.Updated[i] < report.Updated[j] })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].PrepID < report.Failed[j].PrepID })
	return report
}

func (s *Scheduler) markStale(ctx context.Context, prepID uint, cause error) {
	log.Error(ctx, "prep recompute failed", "prep_id", prepID, "error", cause)

	staleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PrepTimeout)
	defer cancel()
	if err := s.store.MarkPrepStale(staleCtx, prepID); err != nil {
		log.Warn(ctx, "could not mark prep stale", "prep_id", prepID, "error", err)
	}
}

func (s *Scheduler) retry(ctx context.Context, op func(context.Context) error) error {
	backoff := s.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || !Retryable(err) || attempt >= s.opts.MaxAttempts {
			return err
		}
		s.metrics.retry()
		log.Debug(ctx, "retrying after transient failure", "attempt", attempt, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff *= 2
	}
}

func isMissingPrep(err error, prepID uint) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound && e.Entity == "prep" && e.ID == prepID
}
