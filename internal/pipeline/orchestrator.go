// Package pipeline drives the per-entity resolve -> ratio -> score flow
// and the batch runner above it.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfold/fundrank/internal/cache"
	"github.com/quantfold/fundrank/internal/metrics"
	"github.com/quantfold/fundrank/internal/provider"
	"github.com/quantfold/fundrank/internal/reconcile"
)

// OrchestratorConfig tunes provider iteration.
type OrchestratorConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"` // per provider call, never unbounded
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	// AccountWait, when positive, waits out a fast-expiring cooldown or
	// minute rollover before giving up on a provider's accounts. Zero
	// skips the provider immediately.
	AccountWait time.Duration `yaml:"account_wait"`
}

// Orchestrator resolves one entity's fields by walking the provider
// priority list, gating every call through the account pool, and merging
// results through the reconciler.
type Orchestrator struct {
	clients []provider.Client // sorted by priority, highest first
	specs   map[string]provider.Spec
	pool    *provider.Pool
	cache   cache.RecordCache // nil disables caching
	cfg     OrchestratorConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewOrchestrator wires clients, specs and the account pool. Clients are
// reordered by their spec priority (lower value tried first); the order
// is fixed for the run, which is what makes reconciliation deterministic.
func NewOrchestrator(clients []provider.Client, specs []provider.Spec, pool *provider.Pool, recCache cache.RecordCache, m *metrics.Metrics, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	specMap := make(map[string]provider.Spec, len(specs))
	for _, s := range specs {
		specMap[s.Name] = s
	}
	ordered := append([]provider.Client(nil), clients...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return specMap[ordered[i].Name()].Priority < specMap[ordered[j].Name()].Priority
	})
	if m == nil {
		m = metrics.NewNop()
	}
	return &Orchestrator{
		clients: ordered,
		specs:   specMap,
		pool:    pool,
		cache:   recCache,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "orchestrator").Logger(),
	}
}

// Resolve walks providers in priority order until every requested field
// is reconciled or providers run out. Running out with fields missing is
// not an error: the partial record is returned with its lower success
// rate as the quality signal. The only error returned is the caller's
// context cancellation before the first provider attempt.
func (o *Orchestrator) Resolve(ctx context.Context, entityID string, requiredFields []string) (*reconcile.Record, error) {
	rec := reconcile.NewRecord(entityID, requiredFields)
	log := o.log.With().Str("entity", entityID).Logger()

	for rank, client := range o.clients {
		if err := ctx.Err(); err != nil {
			// Stop issuing new provider calls; whatever was merged so
			// far is still a valid partial record.
			if rank == 0 {
				return rec, err
			}
			log.Debug().Int("providers_tried", rank).Msg("run cancelled mid-entity, returning partial record")
			return rec, nil
		}
		if rec.Complete() {
			break
		}
		name := client.Name()
		spec := o.specs[name]

		if cached := o.cachedRecord(ctx, name, entityID); cached != nil {
			o.mergeRecord(rec, cached, spec)
			o.metrics.CacheHits.WithLabelValues("hit").Inc()
			continue
		}
		o.metrics.CacheHits.WithLabelValues("miss").Inc()

		lease, err := o.acquire(ctx, name)
		if err != nil {
			if errors.Is(err, provider.ErrNoAccount) {
				o.metrics.AccountsSkipped.WithLabelValues(name).Inc()
				log.Debug().Str("provider", name).Msg("no account available, skipping provider")
			}
			// Context errors fall through to the cancellation check at
			// the top of the loop.
			continue
		}

		partial, perr := o.fetch(ctx, client, entityID, rec)
		if perr != nil {
			o.pool.Release(lease, provider.OutcomeForError(perr))
			o.metrics.ProviderRequests.WithLabelValues(name, string(perr.Code)).Inc()
			log.Warn().
				Str("provider", name).
				Str("code", string(perr.Code)).
				Bool("temporary", perr.Temporary).
				Err(perr).
				Msg("provider fetch failed, falling through")
			continue
		}
		o.pool.Release(lease, provider.OutcomeSuccess)
		o.metrics.ProviderRequests.WithLabelValues(name, "success").Inc()

		o.mergeRecord(rec, partial, spec)
		o.storeCached(ctx, partial)
	}

	if missing := rec.MissingFields(); len(missing) > 0 {
		log.Info().
			Strs("missing_fields", missing).
			Float64("success_rate", rec.SuccessRate()).
			Msg("providers exhausted with fields missing")
	}
	return rec, nil
}

// acquire draws an account lease, optionally waiting briefly for one to
// come back from a cooldown or window reset.
func (o *Orchestrator) acquire(ctx context.Context, providerID string) (*provider.Lease, error) {
	if o.cfg.AccountWait > 0 {
		return o.pool.AcquireWait(ctx, providerID, o.cfg.AccountWait)
	}
	return o.pool.Acquire(providerID)
}

// fetch runs one provider call under its own deadline and classifies the
// outcome.
func (o *Orchestrator) fetch(ctx context.Context, client provider.Client, entityID string, rec *reconcile.Record) (*provider.PartialRecord, *provider.Error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	// Only ask for what is still missing: no point spending quota on
	// fields a higher-priority source already settled.
	want := rec.MissingFields()

	start := time.Now()
	partial, err := client.Fetch(callCtx, entityID, want)
	o.metrics.ProviderLatency.WithLabelValues(client.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, provider.Classify(client.Name(), err)
	}
	if partial == nil {
		partial = &provider.PartialRecord{EntityID: entityID, Provider: client.Name()}
	}
	return partial, nil
}

// mergeRecord stamps provenance onto incoming fields and merges them. The
// confidence written is always the static per-provider weight from the
// spec, regardless of what the client set.
func (o *Orchestrator) mergeRecord(rec *reconcile.Record, partial *provider.PartialRecord, spec provider.Spec) {
	for i := range partial.Fields {
		partial.Fields[i].Source = spec.Name
		partial.Fields[i].Confidence = spec.Confidence
	}
	reconcile.Merge(rec, partial, spec.Priority)
}

func (o *Orchestrator) cachedRecord(ctx context.Context, providerName, entityID string) *provider.PartialRecord {
	if o.cache == nil {
		return nil
	}
	rec, err := o.cache.Get(ctx, providerName, entityID)
	if err != nil || rec == nil || len(rec.Fields) == 0 {
		return nil
	}
	return rec
}

func (o *Orchestrator) storeCached(ctx context.Context, partial *provider.PartialRecord) {
	if o.cache == nil || partial == nil || len(partial.Fields) == 0 {
		return
	}
	if err := o.cache.Put(ctx, partial, o.cfg.CacheTTL); err != nil {
		o.log.Warn().Err(err).Str("provider", partial.Provider).Msg("caching provider response failed")
	}
}
