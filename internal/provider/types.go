package provider

import (
	"context"
	"time"
)

// PeriodType identifies the aggregation period a fundamental field was
// reported for. Ratio computation refuses to mix TTM numerators with
// annual denominators without recording which policy won.
type PeriodType string

const (
	PeriodTTM     PeriodType = "ttm"
	PeriodAnnual  PeriodType = "annual"
	PeriodQuarter PeriodType = "quarter"
	PeriodInstant PeriodType = "instant" // balance-sheet style point-in-time values
)

// ValueKind discriminates the typed payload of a Field.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindText
)

// Value is the typed payload of a provider field. Heterogeneous provider
// payloads are normalized into this instead of being merged as raw maps.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

// NumberValue builds a numeric Value.
func NumberValue(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// TextValue builds a text Value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// Field is one fundamental data point with full provenance. Immutable
// once produced by a provider call.
type Field struct {
	Name       string
	Value      Value
	Period     PeriodType
	Source     string
	FetchedAt  time.Time
	Confidence float64
}

// PartialRecord is the ordered field set one provider returned for one
// entity. It may be empty or cover only a subset of the requested fields.
type PartialRecord struct {
	EntityID string
	Provider string
	Fields   []Field
}

// Client is the uniform capability every upstream provider implements.
// Implementations are swappable; the core carries no provider-specific
// logic beyond priority ordering and error classification.
type Client interface {
	// Name returns the provider identifier used for priority ordering,
	// account lookup and provenance stamps.
	Name() string

	// Fetch retrieves the requested fields for one entity. A nil error
	// with an empty record is a valid "provider knows nothing" answer.
	Fetch(ctx context.Context, entityID string, fields []string) (*PartialRecord, error)
}

// Spec describes one configured provider: its priority rank (lower is
// tried first) and the static confidence weight stamped on every field it
// wins during reconciliation.
type Spec struct {
	Name       string
	Priority   int
	Confidence float64
}
