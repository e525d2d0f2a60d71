package scoring

import (
	"fmt"
	"time"
)

// Engine turns a ratio set into sub-scores, a composite score, a rating
// and the deterministic flag list. Given identical inputs it produces
// byte-identical output except CalculatedAt.
type Engine struct {
	cfg        *Config
	thresholds ThresholdSource
	now        func() time.Time
}

// NewEngine builds a scoring engine. Nil arguments fall back to the
// shipped defaults.
func NewEngine(cfg *Config, thresholds ThresholdSource) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Engine{cfg: cfg, thresholds: thresholds, now: time.Now}
}

// Score computes the full score record for one entity.
func (e *Engine) Score(in Input) *ScoreRecord {
	rec := &ScoreRecord{
		EntityID:        in.EntityID,
		Sector:          in.Sector,
		Industry:        in.Industry,
		SubScores:       make(map[string]SubScore, len(SubScoreNames())),
		RedFlags:        []Flag{},
		YellowFlags:     []Flag{},
		PrimarySource:   in.PrimarySource,
		FallbackSources: in.FallbackSources,
		MissingFields:   in.MissingFields,
		SuccessRate:     in.SuccessRate,
		RunID:           in.RunID,
		CalculatedAt:    e.now().UTC(),
	}

	var composite, weightTotal float64
	var qualityNum, qualityDen float64
	for _, name := range SubScoreNames() {
		sub := e.subScore(name, in)
		rec.SubScores[name] = sub

		w := e.cfg.CompositeWeights[name]
		composite += w * sub.Score
		weightTotal += w

		expected := float64(len(e.cfg.SubScores[name]))
		qualityNum += sub.DataQuality * expected
		qualityDen += expected
	}
	if weightTotal > 0 {
		rec.Composite = composite / weightTotal
	}
	if qualityDen > 0 {
		rec.DataQuality = qualityNum / qualityDen
	}
	rec.Rating = e.cfg.rate(rec.Composite)

	e.applyFlags(rec, in)
	return rec
}

// subScore evaluates one weighted category. Each ratio contributes
// between 0 and its maximum weight via linear interpolation between the
// bad and good bounds; missing ratios and missing thresholds contribute
// zero and are recorded, never silently treated as neutral.
func (e *Engine) subScore(name string, in Input) SubScore {
	weights := e.cfg.SubScores[name]

	var earned, total float64
	present := 0
	var reasons []string
	for _, rw := range weights {
		total += rw.Weight
		r := in.Ratios.Get(rw.Ratio)
		if !r.Defined {
			reasons = append(reasons, fmt.Sprintf("%s undefined: %s", rw.Ratio, r.Reason))
			continue
		}
		th, ok := e.thresholds.Lookup(in.Sector, in.Industry, rw.Ratio)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s: no threshold for sector=%q industry=%q", rw.Ratio, in.Sector, in.Industry))
			continue
		}
		present++
		earned += rw.Weight * gradeAgainst(r.Value, th)
	}

	sub := SubScore{Reasons: reasons}
	if total > 0 {
		sub.Score = 100 * earned / total
	}
	if len(weights) > 0 {
		sub.DataQuality = float64(present) / float64(len(weights))
	}
	return sub
}

// gradeAgainst maps a ratio value onto [0,1] relative to its threshold
// pair. Values at or beyond the good bound earn full credit, at or beyond
// the bad bound earn none, and the span between is linear. The direction
// of "better" is encoded by which bound is larger.
func gradeAgainst(value float64, th Threshold) float64 {
	span := th.Good - th.Bad
	if span == 0 {
		return 0
	}
	frac := (value - th.Bad) / span
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
