package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fundrank/internal/metrics"
	"github.com/quantfold/fundrank/internal/provider"
)

// stubClient scripts one provider's responses and records what was asked.
type stubClient struct {
	name string

	mu       sync.Mutex
	requests [][]string
	respond  func(entityID string, fields []string) (*provider.PartialRecord, error)
}

func (c *stubClient) Name() string { return c.name }

func (c *stubClient) Fetch(ctx context.Context, entityID string, fields []string) (*provider.PartialRecord, error) {
	c.mu.Lock()
	c.requests = append(c.requests, append([]string(nil), fields...))
	c.mu.Unlock()
	return c.respond(entityID, fields)
}

func (c *stubClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func numFields(names ...string) []provider.Field {
	fields := make([]provider.Field, 0, len(names))
	for i, name := range names {
		fields = append(fields, provider.Field{
			Name:      name,
			Value:     provider.NumberValue(float64(i + 1)),
			Period:    provider.PeriodTTM,
			FetchedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return fields
}

func answering(names ...string) func(string, []string) (*provider.PartialRecord, error) {
	return func(entityID string, fields []string) (*provider.PartialRecord, error) {
		have := make(map[string]bool, len(names))
		for _, n := range names {
			have[n] = true
		}
		var out []provider.Field
		for _, f := range numFields(fields...) {
			if have[f.Name] {
				out = append(out, f)
			}
		}
		return &provider.PartialRecord{EntityID: entityID, Fields: out}, nil
	}
}

func failing(code provider.ErrorCode) func(string, []string) (*provider.PartialRecord, error) {
	return func(entityID string, fields []string) (*provider.PartialRecord, error) {
		return nil, provider.NewError("", code, "scripted failure", nil)
	}
}

func poolFor(providers ...string) *provider.Pool {
	accounts := make([]provider.AccountConfig, 0, len(providers))
	for _, name := range providers {
		accounts = append(accounts, provider.AccountConfig{
			Provider: name, Credential: name + "-key",
			MinuteQuota: 100, DayQuota: 1000, RPS: 1000, Burst: 1000,
		})
	}
	return provider.NewPool(provider.DefaultPoolConfig(), accounts, zerolog.Nop())
}

func specsFor(clients ...*stubClient) []provider.Spec {
	specs := make([]provider.Spec, 0, len(clients))
	for i, c := range clients {
		specs = append(specs, provider.Spec{Name: c.name, Priority: i + 1, Confidence: 1.0 - 0.1*float64(i)})
	}
	return specs
}

func newTestOrchestrator(pool *provider.Pool, specs []provider.Spec, clients ...*stubClient) *Orchestrator {
	cs := make([]provider.Client, 0, len(clients))
	for _, c := range clients {
		cs = append(cs, c)
	}
	return NewOrchestrator(cs, specs, pool, nil, metrics.NewNop(), OrchestratorConfig{}, zerolog.Nop())
}

func TestResolve_PrimaryFailureFallsBack(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: failing(provider.ErrCodeServer)}
	secondary := &stubClient{name: "beta", respond: answering("revenue", "eps")}
	orch := newTestOrchestrator(poolFor("alpha", "beta"), specsFor(primary, secondary), primary, secondary)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue", "eps"})
	require.NoError(t, err)

	assert.True(t, rec.Complete())
	assert.Equal(t, "beta", rec.PrimarySource())
	assert.Equal(t, []string{"beta"}, rec.FallbackSources)
	assert.Equal(t, 1, primary.calls())
	assert.Equal(t, 1, secondary.calls())
}

func TestResolve_StopsOnceComplete(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue", "eps")}
	secondary := &stubClient{name: "beta", respond: answering("revenue", "eps")}
	orch := newTestOrchestrator(poolFor("alpha", "beta"), specsFor(primary, secondary), primary, secondary)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue", "eps"})
	require.NoError(t, err)

	assert.True(t, rec.Complete())
	assert.Equal(t, 0, secondary.calls(), "lower-priority provider must not be consulted")
}

func TestResolve_RequestsOnlyMissingFields(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue")}
	secondary := &stubClient{name: "beta", respond: answering("revenue", "eps", "cash")}
	orch := newTestOrchestrator(poolFor("alpha", "beta"), specsFor(primary, secondary), primary, secondary)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue", "eps", "cash"})
	require.NoError(t, err)
	require.True(t, rec.Complete())

	secondary.mu.Lock()
	defer secondary.mu.Unlock()
	require.Len(t, secondary.requests, 1)
	assert.Equal(t, []string{"eps", "cash"}, secondary.requests[0], "settled fields must not be re-requested")

	// Partial success from the primary still counts as a fallback chain.
	assert.Equal(t, "alpha", rec.PrimarySource())
	assert.Equal(t, []string{"alpha", "beta"}, rec.FallbackSources)
}

func TestResolve_SkipsProviderWithoutAccounts(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue")}
	secondary := &stubClient{name: "beta", respond: answering("revenue")}
	// Only beta has a configured account.
	orch := newTestOrchestrator(poolFor("beta"), specsFor(primary, secondary), primary, secondary)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue"})
	require.NoError(t, err)

	assert.Equal(t, 0, primary.calls())
	assert.Equal(t, "beta", rec.PrimarySource())
}

func TestResolve_ProvidersExhaustedLeavesPartial(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue")}
	orch := newTestOrchestrator(poolFor("alpha"), specsFor(primary), primary)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue", "eps"})
	require.NoError(t, err, "missing fields are a quality signal, not an error")

	assert.False(t, rec.Complete())
	assert.Equal(t, []string{"eps"}, rec.MissingFields())
	assert.InDelta(t, 0.5, rec.SuccessRate(), 1e-9)
}

func TestResolve_ConfidenceStamped(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue")}
	orch := newTestOrchestrator(poolFor("alpha"), specsFor(primary), primary)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue"})
	require.NoError(t, err)

	entry := rec.Fields["revenue"]
	assert.Equal(t, "alpha", entry.Field.Source)
	assert.InDelta(t, 1.0, entry.Field.Confidence, 1e-9, "static per-provider confidence wins over client-set values")
}

func TestResolve_CancelledBeforeFirstProvider(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue")}
	orch := newTestOrchestrator(poolFor("alpha"), specsFor(primary), primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := orch.Resolve(ctx, "ACME", []string{"revenue"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, rec)
	assert.Equal(t, 0, primary.calls())
}

func TestResolve_AccountWaitStillSkipsDeadProvider(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: answering("revenue")}
	secondary := &stubClient{name: "beta", respond: answering("revenue")}
	orch := NewOrchestrator(
		[]provider.Client{primary, secondary},
		specsFor(primary, secondary),
		poolFor("beta"), // alpha has no accounts at all
		nil, metrics.NewNop(),
		OrchestratorConfig{AccountWait: time.Nanosecond},
		zerolog.Nop(),
	)

	rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue"})
	require.NoError(t, err)

	assert.Equal(t, 0, primary.calls(), "waiting must still end in a skip when the provider has no accounts")
	assert.Equal(t, "beta", rec.PrimarySource())
}

func TestResolve_AuthErrorDisablesAccountAcrossEntities(t *testing.T) {
	primary := &stubClient{name: "alpha", respond: failing(provider.ErrCodeAuth)}
	secondary := &stubClient{name: "beta", respond: answering("revenue")}
	orch := newTestOrchestrator(poolFor("alpha", "beta"), specsFor(primary, secondary), primary, secondary)

	for i := 0; i < 3; i++ {
		rec, err := orch.Resolve(context.Background(), "ACME", []string{"revenue"})
		require.NoError(t, err)
		assert.Equal(t, "beta", rec.PrimarySource())
	}

	// The credential was rejected once; later entities skip alpha at the
	// pool, never burning another call on it.
	assert.Equal(t, 1, primary.calls())
}
