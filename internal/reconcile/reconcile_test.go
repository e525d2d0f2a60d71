package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fundrank/internal/provider"
)

func field(name string, v float64, source string, conf float64) provider.Field {
	return provider.Field{
		Name:       name,
		Value:      provider.NumberValue(v),
		Period:     provider.PeriodTTM,
		Source:     source,
		FetchedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Confidence: conf,
	}
}

func partial(entity, source string, fields ...provider.Field) *provider.PartialRecord {
	return &provider.PartialRecord{EntityID: entity, Provider: source, Fields: fields}
}

func TestMerge_PriorityInvariant(t *testing.T) {
	t.Run("insert_when_absent", func(t *testing.T) {
		rec := NewRecord("ACME", []string{"revenue"})
		Merge(rec, partial("ACME", "secondary", field("revenue", 100, "secondary", 0.8)), 2)

		v, ok := rec.Number("revenue")
		require.True(t, ok)
		assert.Equal(t, 100.0, v)
	})

	t.Run("higher_priority_replaces", func(t *testing.T) {
		rec := NewRecord("ACME", []string{"revenue"})
		Merge(rec, partial("ACME", "secondary", field("revenue", 100, "secondary", 0.8)), 2)
		Merge(rec, partial("ACME", "primary", field("revenue", 120, "primary", 0.95)), 1)

		v, _ := rec.Number("revenue")
		assert.Equal(t, 120.0, v)
		assert.Equal(t, "primary", rec.Fields["revenue"].Field.Source)
	})

	t.Run("equal_or_lower_priority_ignored", func(t *testing.T) {
		rec := NewRecord("ACME", []string{"revenue"})
		Merge(rec, partial("ACME", "primary", field("revenue", 120, "primary", 0.95)), 1)
		Merge(rec, partial("ACME", "contradictory", field("revenue", 999, "contradictory", 0.95)), 1)
		Merge(rec, partial("ACME", "secondary", field("revenue", 100, "secondary", 0.8)), 2)

		v, _ := rec.Number("revenue")
		assert.Equal(t, 120.0, v, "later equal/lower priority arrivals must never overwrite")
	})
}

// Merging the same partial records in any permutation must produce an
// identical reconciled record: priority is fixed per run, not per call
// order.
func TestMerge_PermutationDeterminism(t *testing.T) {
	type ranked struct {
		rec  *provider.PartialRecord
		rank int
	}
	inputs := []ranked{
		{partial("ACME", "alpha", field("revenue", 100, "alpha", 0.9), field("eps", 2.5, "alpha", 0.9)), 1},
		{partial("ACME", "beta", field("revenue", 101, "beta", 0.8), field("cash", 40, "beta", 0.8)), 2},
		{partial("ACME", "gamma", field("eps", 2.4, "gamma", 0.7), field("cash", 41, "gamma", 0.7), field("total_debt", 60, "gamma", 0.7)), 3},
	}
	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	requested := []string{"revenue", "eps", "cash", "total_debt", "ebitda"}
	var reference *Record
	for _, perm := range perms {
		rec := NewRecord("ACME", requested)
		for _, idx := range perm {
			Merge(rec, inputs[idx].rec, inputs[idx].rank)
		}
		if reference == nil {
			reference = rec
			continue
		}
		assert.Equal(t, reference.Fields, rec.Fields, "permutation %v changed the merge result", perm)
		assert.Equal(t, reference.FallbackSources, rec.FallbackSources, "permutation %v changed source provenance", perm)
		assert.Equal(t, reference.PrimarySource(), rec.PrimarySource())
	}

	assert.Equal(t, "alpha", reference.PrimarySource())
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, reference.FallbackSources)
	assert.Equal(t, []string{"ebitda"}, reference.MissingFields())
	assert.InDelta(t, 4.0/5.0, reference.SuccessRate(), 1e-9)
}

// A source whose only field is taken over by a higher-priority source
// must not linger in the provenance, no matter which order the merges
// arrived in.
func TestMerge_FullyOverwrittenSourceDropsOut(t *testing.T) {
	alpha := partial("ACME", "alpha", field("revenue", 120, "alpha", 0.95))
	beta := partial("ACME", "beta", field("revenue", 100, "beta", 0.8))

	alphaFirst := NewRecord("ACME", []string{"revenue"})
	Merge(alphaFirst, alpha, 1)
	Merge(alphaFirst, beta, 2)

	betaFirst := NewRecord("ACME", []string{"revenue"})
	Merge(betaFirst, beta, 2)
	Merge(betaFirst, alpha, 1)

	assert.Equal(t, []string{"alpha"}, alphaFirst.FallbackSources)
	assert.Equal(t, alphaFirst.FallbackSources, betaFirst.FallbackSources)
	assert.Equal(t, alphaFirst.Fields, betaFirst.Fields)
	assert.Equal(t, "alpha", betaFirst.PrimarySource())
}

func TestRecord_Accessors(t *testing.T) {
	rec := NewRecord("ACME", []string{"revenue", "sector"})
	Merge(rec, &provider.PartialRecord{
		EntityID: "ACME",
		Provider: "alpha",
		Fields: []provider.Field{
			field("revenue", 100, "alpha", 0.9),
			{Name: "sector", Value: provider.TextValue("technology"), Source: "alpha", Confidence: 0.9},
		},
	}, 1)

	t.Run("number", func(t *testing.T) {
		v, ok := rec.Number("revenue")
		require.True(t, ok)
		assert.Equal(t, 100.0, v)

		_, ok = rec.Number("sector")
		assert.False(t, ok, "text fields are not numbers")
	})

	t.Run("text", func(t *testing.T) {
		s, ok := rec.Text("sector")
		require.True(t, ok)
		assert.Equal(t, "technology", s)
	})

	t.Run("complete", func(t *testing.T) {
		assert.True(t, rec.Complete())
		assert.Equal(t, 1.0, rec.SuccessRate())
	})
}

func TestRecord_EmptyRequestedSet(t *testing.T) {
	rec := NewRecord("ACME", nil)
	assert.Equal(t, 1.0, rec.SuccessRate())
	assert.True(t, rec.Complete())
	assert.Empty(t, rec.MissingFields())
}
