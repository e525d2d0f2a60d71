package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/fundrank/internal/persistence"
	"github.com/quantfold/fundrank/internal/ratio"
	"github.com/quantfold/fundrank/internal/reconcile"
	"github.com/quantfold/fundrank/internal/scoring"
)

// PriceSource supplies the current market price for an entity. It is an
// external collaborator: quotes move on a different cadence than
// fundamentals and come from a different feed.
type PriceSource interface {
	Price(ctx context.Context, entityID string) (float64, error)
}

// RunnerConfig tunes the batch run.
type RunnerConfig struct {
	// Concurrency bounds the worker pool. Size it to the aggregate
	// per-provider rate budget, not to CPU count.
	Concurrency int `yaml:"concurrency"`
	// MinSuccessRate is the reconciliation floor below which an entity
	// gets a structured failure instead of a score.
	MinSuccessRate float64 `yaml:"min_success_rate"`
	// RecalcInterval skips entities scored more recently than this.
	// Zero disables the freshness check.
	RecalcInterval time.Duration `yaml:"recalc_interval"`
}

// Failure is the structured per-entity failure descriptor. It is data,
// not an error: the batch never aborts because one entity came up short.
type Failure struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	SuccessRate   float64  `json:"success_rate"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Failure codes.
const (
	FailureDataQuality = "data_quality_below_minimum"
	FailurePersistence = "persistence_failed"
	FailureCancelled   = "run_cancelled"
)

// Result is the per-entity batch output. Record, Ratios and Score are
// populated as far as the pipeline got; Failure explains any shortfall.
type Result struct {
	EntityID string               `json:"entity_id"`
	Skipped  bool                 `json:"skipped,omitempty"` // fresh enough, not recalculated
	Record   *reconcile.Record    `json:"-"`
	Ratios   *ratio.Set           `json:"ratios,omitempty"`
	Score    *scoring.ScoreRecord `json:"score,omitempty"`
	Failure  *Failure             `json:"failure,omitempty"`
}

// Runner executes the full resolve -> ratio -> score -> persist pipeline
// over a batch of entities with bounded concurrency.
type Runner struct {
	orch   *Orchestrator
	ratios *ratio.Engine
	scorer *scoring.Engine
	prices PriceSource
	store  persistence.ScoreStore // nil disables persistence
	cfg    RunnerConfig
	log    zerolog.Logger
}

// NewRunner wires the pipeline stages.
func NewRunner(orch *Orchestrator, ratios *ratio.Engine, scorer *scoring.Engine, prices PriceSource, store persistence.ScoreStore, cfg RunnerConfig, log zerolog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Runner{
		orch:   orch,
		ratios: ratios,
		scorer: scorer,
		prices: prices,
		store:  store,
		cfg:    cfg,
		log:    log.With().Str("component", "runner").Logger(),
	}
}

// Run processes every entity and returns one result each, in input
// order. Cancellation stops new work promptly; entities already in
// flight finish under their own call timeouts. The returned error is
// only ever the context's.
func (r *Runner) Run(ctx context.Context, entityIDs []string, requiredFields []string) ([]Result, error) {
	runID := uuid.NewString()
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().
		Int("entities", len(entityIDs)).
		Int("required_fields", len(requiredFields)).
		Int("concurrency", r.cfg.Concurrency).
		Msg("batch run starting")

	results := make([]Result, len(entityIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, entityID := range entityIDs {
		if gctx.Err() != nil {
			results[i] = Result{EntityID: entityID, Failure: &Failure{
				Code:    FailureCancelled,
				Message: "run cancelled before entity was attempted",
			}}
			continue
		}
		i, entityID := i, entityID
		g.Go(func() error {
			results[i] = r.processEntity(gctx, runID, entityID, requiredFields)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	scored, failed, skipped := 0, 0, 0
	for _, res := range results {
		switch {
		case res.Skipped:
			skipped++
		case res.Failure != nil:
			failed++
		default:
			scored++
		}
	}
	log.Info().
		Int("scored", scored).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("batch run finished")
	return results, err
}

// processEntity runs one entity through the whole pipeline. Every
// failure mode short of a programming error is folded into the result.
func (r *Runner) processEntity(ctx context.Context, runID, entityID string, requiredFields []string) Result {
	res := Result{EntityID: entityID}

	if r.store != nil && r.cfg.RecalcInterval > 0 {
		last, ok, err := r.store.LastCalculation(ctx, entityID)
		if err != nil {
			r.log.Warn().Err(err).Str("entity", entityID).Msg("last-calculation lookup failed, recalculating")
		} else if ok && time.Since(last) < r.cfg.RecalcInterval {
			res.Skipped = true
			r.orch.metrics.EntitiesScored.WithLabelValues("skipped_fresh").Inc()
			return res
		}
	}

	rec, err := r.orch.Resolve(ctx, entityID, requiredFields)
	res.Record = rec
	if err != nil {
		res.Failure = &Failure{
			Code:          FailureCancelled,
			Message:       err.Error(),
			SuccessRate:   rec.SuccessRate(),
			MissingFields: rec.MissingFields(),
		}
		r.orch.metrics.EntitiesScored.WithLabelValues("cancelled").Inc()
		return res
	}
	r.orch.metrics.SuccessRate.Observe(rec.SuccessRate())
	if len(rec.FallbackSources) > 1 {
		r.orch.metrics.FallbacksUsed.Inc()
	}

	if rec.SuccessRate() < r.cfg.MinSuccessRate {
		res.Failure = &Failure{
			Code:          FailureDataQuality,
			Message:       "reconciliation success rate below configured minimum",
			SuccessRate:   rec.SuccessRate(),
			MissingFields: rec.MissingFields(),
		}
		r.orch.metrics.EntitiesScored.WithLabelValues("data_quality").Inc()
		return res
	}

	// A missing price is a degradation, not a failure: price-based
	// ratios come out undefined and drag data quality instead.
	price := 0.0
	if r.prices != nil {
		p, perr := r.prices.Price(ctx, entityID)
		if perr != nil {
			r.log.Warn().Err(perr).Str("entity", entityID).Msg("price lookup failed, price ratios will be undefined")
		} else {
			price = p
		}
	}

	res.Ratios = r.ratios.Compute(rec, price)

	sector, _ := rec.Text(ratio.FieldSector)
	industry, _ := rec.Text(ratio.FieldIndustry)
	res.Score = r.scorer.Score(scoring.Input{
		EntityID:        entityID,
		Sector:          sector,
		Industry:        industry,
		Ratios:          res.Ratios,
		Fundamentals:    fundamentalsFrom(rec),
		PrimarySource:   rec.PrimarySource(),
		FallbackSources: rec.FallbackSources,
		MissingFields:   rec.MissingFields(),
		SuccessRate:     rec.SuccessRate(),
		RunID:           runID,
	})

	if r.store != nil {
		if serr := r.store.Save(ctx, res.Score); serr != nil {
			res.Failure = &Failure{
				Code:        FailurePersistence,
				Message:     serr.Error(),
				SuccessRate: rec.SuccessRate(),
			}
			r.orch.metrics.EntitiesScored.WithLabelValues("persist_error").Inc()
			r.log.Error().Err(serr).Str("entity", entityID).Msg("score persistence failed")
			return res
		}
	}

	r.orch.metrics.EntitiesScored.WithLabelValues("scored").Inc()
	return res
}

// fundamentalsFrom lifts the raw values the flag rules need out of the
// reconciled record.
func fundamentalsFrom(rec *reconcile.Record) scoring.Fundamentals {
	var f scoring.Fundamentals
	if v, ok := rec.Number(ratio.FieldTotalEquity); ok {
		f.TotalEquity = &v
	}
	if v, ok := rec.Number(ratio.FieldNetIncome); ok {
		f.NetIncome = &v
	}
	if v, ok := rec.Number(ratio.FieldFreeCashFlow); ok {
		f.FreeCashFlow = &v
	}
	return f
}
