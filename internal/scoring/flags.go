package scoring

import (
	"fmt"

	"github.com/quantfold/fundrank/internal/ratio"
)

// applyFlags runs the deterministic red/yellow rule set. Rules execute in
// a fixed order and append in that order, keeping output byte-identical
// across invocations for the same input.
func (e *Engine) applyFlags(rec *ScoreRecord, in Input) {
	f := in.Fundamentals

	// Red: balance sheet under water.
	if f.TotalEquity != nil && *f.TotalEquity <= 0 {
		rec.RedFlags = append(rec.RedFlags, Flag{
			Code:    "negative_equity",
			Message: fmt.Sprintf("total equity is %.2f", *f.TotalEquity),
		})
	}

	// Red: earnings cannot cover interest payments.
	if ic := in.Ratios.Get(ratio.InterestCoverage); ic.Defined && ic.Value < e.cfg.Flags.MinInterestCoverage {
		rec.RedFlags = append(rec.RedFlags, Flag{
			Code:    "interest_coverage_below_minimum",
			Message: fmt.Sprintf("interest coverage %.2f below %.2f", ic.Value, e.cfg.Flags.MinInterestCoverage),
		})
	}

	// Red: losing money and burning cash at the same time.
	if f.NetIncome != nil && f.FreeCashFlow != nil && *f.NetIncome < 0 && *f.FreeCashFlow < 0 {
		rec.RedFlags = append(rec.RedFlags, Flag{
			Code:    "unprofitable_and_cash_negative",
			Message: fmt.Sprintf("net income %.2f and free cash flow %.2f both negative", *f.NetIncome, *f.FreeCashFlow),
		})
	}

	// Yellow: any scored ratio materially worse than its bad bound for
	// the sector. Stands in for a sector-decile rank until a percentile
	// source is wired in; the margin is configurable.
	for _, name := range ratio.AllNames() {
		r := in.Ratios.Get(name)
		if !r.Defined {
			continue
		}
		th, ok := e.thresholds.Lookup(in.Sector, in.Industry, name)
		if !ok {
			continue
		}
		span := th.Good - th.Bad
		if span == 0 {
			continue
		}
		excess := (th.Bad - r.Value) / span
		if span < 0 {
			excess = (r.Value - th.Bad) / -span
		}
		if excess > e.cfg.Flags.BadExcessFraction {
			rec.YellowFlags = append(rec.YellowFlags, Flag{
				Code:    "sector_floor_breach:" + name,
				Message: fmt.Sprintf("%s=%.4f is worse than the %s/%s bad bound %.4f", name, r.Value, in.Sector, in.Industry, th.Bad),
			})
		}
	}

	// Yellow: clamped ratios stay visible so clamping is auditable.
	for _, name := range ratio.AllNames() {
		r := in.Ratios.Get(name)
		if r.Defined && r.Clamped {
			rec.YellowFlags = append(rec.YellowFlags, Flag{
				Code:    "clamped:" + name,
				Message: fmt.Sprintf("%s raw value %.4f clamped to %.4f", name, r.Raw, r.Value),
			})
		}
	}

	// Yellow: thin reconciliation coverage.
	if in.SuccessRate < e.cfg.Flags.LowCoverageFloor {
		rec.YellowFlags = append(rec.YellowFlags, Flag{
			Code:    "low_data_coverage",
			Message: fmt.Sprintf("reconciliation success rate %.2f below %.2f", in.SuccessRate, e.cfg.Flags.LowCoverageFloor),
		})
	}
}
