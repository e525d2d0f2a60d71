// Package reconcile merges partial, possibly conflicting provider field
// sets into one authoritative record per entity with full provenance.
package reconcile

import (
	"sort"

	"github.com/quantfold/fundrank/internal/provider"
)

// Record is the reconciled view of one entity. It is built incrementally
// through Merge and is entity-local: never shared across goroutines.
type Record struct {
	EntityID string

	// Fields holds the winning value per field name together with the
	// priority rank of the source that set it.
	Fields map[string]Entry

	// Requested is the field set the run asked for, in request order.
	Requested []string

	// FallbackSources lists every source holding at least one winning
	// field, ordered by each source's best winning rank.
	FallbackSources []string
}

// Entry is one reconciled field plus the rank that won it. Lower rank
// means higher priority.
type Entry struct {
	Field provider.Field
	Rank  int
}

// NewRecord starts an empty reconciled record for one entity.
func NewRecord(entityID string, requested []string) *Record {
	req := make([]string, len(requested))
	copy(req, requested)
	return &Record{
		EntityID:  entityID,
		Fields:    make(map[string]Entry),
		Requested: req,
	}
}

// Merge folds one provider's partial record into the reconciled record.
// For each incoming field: insert if absent; replace only if the existing
// entry came from a strictly lower-priority (higher rank) source. Equal or
// better existing entries always win, so merging the same partial records
// in any order yields the same result.
func Merge(rec *Record, incoming *provider.PartialRecord, rank int) *Record {
	if incoming == nil {
		return rec
	}
	changed := false
	for _, f := range incoming.Fields {
		existing, ok := rec.Fields[f.Name]
		if ok && existing.Rank <= rank {
			continue
		}
		rec.Fields[f.Name] = Entry{Field: f, Rank: rank}
		changed = true
	}
	if changed {
		rec.rebuildSources()
	}
	return rec
}

// rebuildSources derives FallbackSources from the winning entries. A
// source whose every contribution was later overwritten drops out, and
// the ordering depends only on the final field map, so the list is
// identical under any merge permutation.
func (r *Record) rebuildSources() {
	best := make(map[string]int, len(r.Fields))
	for _, e := range r.Fields {
		if cur, ok := best[e.Field.Source]; !ok || e.Rank < cur {
			best[e.Field.Source] = e.Rank
		}
	}
	sources := make([]string, 0, len(best))
	for s := range best {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool {
		if best[sources[i]] != best[sources[j]] {
			return best[sources[i]] < best[sources[j]]
		}
		return sources[i] < sources[j]
	})
	r.FallbackSources = sources
}

// PrimarySource is the highest-priority source holding any winning
// field, or empty when nothing was reconciled.
func (r *Record) PrimarySource() string {
	if len(r.FallbackSources) == 0 {
		return ""
	}
	return r.FallbackSources[0]
}

// MissingFields returns the requested fields that no provider supplied,
// in request order.
func (r *Record) MissingFields() []string {
	var missing []string
	for _, name := range r.Requested {
		if _, ok := r.Fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Complete reports whether every requested field has been reconciled.
func (r *Record) Complete() bool { return len(r.MissingFields()) == 0 }

// SuccessRate is |present requested fields| / |requested fields|.
func (r *Record) SuccessRate() float64 {
	if len(r.Requested) == 0 {
		return 1.0
	}
	present := 0
	for _, name := range r.Requested {
		if _, ok := r.Fields[name]; ok {
			present++
		}
	}
	return float64(present) / float64(len(r.Requested))
}

// Number returns the numeric value of a reconciled field. The second
// return is false when the field is missing or non-numeric; callers treat
// that as "input unknown", never as zero.
func (r *Record) Number(name string) (float64, bool) {
	e, ok := r.Fields[name]
	if !ok || e.Field.Value.Kind != provider.KindNumber {
		return 0, false
	}
	return e.Field.Value.Num, true
}

// Text returns the string value of a reconciled field.
func (r *Record) Text(name string) (string, bool) {
	e, ok := r.Fields[name]
	if !ok || e.Field.Value.Kind != provider.KindText {
		return "", false
	}
	return e.Field.Value.Text, true
}

// Period reports the period type a numeric field was observed under.
func (r *Record) Period(name string) (provider.PeriodType, bool) {
	e, ok := r.Fields[name]
	if !ok {
		return "", false
	}
	return e.Field.Period, true
}
