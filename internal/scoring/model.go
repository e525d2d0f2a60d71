package scoring

import (
	"time"

	"github.com/quantfold/fundrank/internal/ratio"
)

// Rating is the five-level categorical investment classification.
type Rating string

const (
	StrongSell Rating = "strong_sell"
	Sell       Rating = "sell"
	Hold       Rating = "hold"
	Buy        Rating = "buy"
	StrongBuy  Rating = "strong_buy"
)

// Sub-score category names, fixed by the composite model.
const (
	SubValuation       = "valuation"
	SubQuality         = "quality"
	SubGrowth          = "growth"
	SubFinancialHealth = "financial_health"
	SubManagement      = "management"
)

// SubScoreNames lists the five categories in composite order.
func SubScoreNames() []string {
	return []string{SubValuation, SubQuality, SubGrowth, SubFinancialHealth, SubManagement}
}

// SubScore is one weighted category result. DataQuality is the fraction
// of expected ratios that were actually available; missing ratios are
// never silently assumed neutral, so Reasons records each one.
type SubScore struct {
	Score       float64  `json:"score" db:"-"`
	DataQuality float64  `json:"data_quality" db:"-"`
	Reasons     []string `json:"reasons,omitempty" db:"-"`
}

// Flag is one deterministic red/yellow finding. Flags are informational
// and never suppressed, even when the overall rating is favorable.
type Flag struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Fundamentals carries the handful of raw reconciled values the flag
// rules need beyond the ratio set. Nil pointers mean the value was never
// reconciled.
type Fundamentals struct {
	TotalEquity  *float64
	NetIncome    *float64
	FreeCashFlow *float64
}

// Input is everything the scoring engine consumes for one entity.
type Input struct {
	EntityID     string
	Sector       string
	Industry     string
	Ratios       *ratio.Set
	Fundamentals Fundamentals

	// Provenance passed through from reconciliation.
	PrimarySource   string
	FallbackSources []string
	MissingFields   []string
	SuccessRate     float64
	RunID           string
}

// ScoreRecord is the persisted output: one current instance per entity
// plus one append-only historical instance per calculation date.
type ScoreRecord struct {
	EntityID    string              `json:"entity_id"`
	Sector      string              `json:"sector"`
	Industry    string              `json:"industry"`
	SubScores   map[string]SubScore `json:"sub_scores"`
	Composite   float64             `json:"composite_score"`
	Rating      Rating              `json:"rating"`
	DataQuality float64             `json:"data_quality_score"`
	RedFlags    []Flag              `json:"red_flags"`
	YellowFlags []Flag              `json:"yellow_flags"`

	PrimarySource   string   `json:"primary_source"`
	FallbackSources []string `json:"fallback_sources_used"`
	MissingFields   []string `json:"missing_fields"`
	SuccessRate     float64  `json:"success_rate"`

	RunID        string    `json:"run_id"`
	CalculatedAt time.Time `json:"calculated_at"`
}
