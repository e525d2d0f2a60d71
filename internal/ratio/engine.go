package ratio

import (
	"math"

	"github.com/quantfold/fundrank/internal/provider"
	"github.com/quantfold/fundrank/internal/reconcile"
)

// Engine derives the full ratio set from a reconciled record and the
// current market price. It is stateless and safe for concurrent use.
type Engine struct {
	bounds map[string]Bounds
}

// NewEngine builds a ratio engine. Nil bounds fall back to the defaults.
func NewEngine(bounds map[string]Bounds) *Engine {
	if bounds == nil {
		bounds = DefaultBounds()
	}
	return &Engine{bounds: bounds}
}

// input adapts a reconciled record into (value, period, ok) lookups.
type input struct {
	rec *reconcile.Record
}

func (in input) num(name string) (float64, bool) { return in.rec.Number(name) }

func (in input) period(name string) provider.PeriodType {
	p, ok := in.rec.Period(name)
	if !ok {
		return ""
	}
	return p
}

// Compute derives every ratio. Missing inputs, zero denominators and
// economically meaningless sign combinations yield Undefined markers,
// never zeroes or infinities.
func (e *Engine) Compute(rec *reconcile.Record, price float64) *Set {
	in := input{rec: rec}
	set := &Set{Ratios: make(map[string]Ratio)}

	// Market cap and enterprise value are computed once and shared by
	// every price- and EV-based ratio.
	shares, haveShares := in.num(FieldSharesOutstanding)
	switch {
	case price <= 0:
		set.MarketCap = undefined("market_cap", "price not positive", "")
	case !haveShares:
		set.MarketCap = undefined("market_cap", "shares_outstanding missing", "")
	case shares <= 0:
		set.MarketCap = undefined("market_cap", "shares_outstanding not positive", "")
	default:
		set.MarketCap = defined("market_cap", price*shares, string(provider.PeriodInstant))
	}

	set.EnterpriseValue = e.enterpriseValue(in, set.MarketCap)

	mcap := set.MarketCap
	ev := set.EnterpriseValue

	e.put(set, e.divPositive(PE, mcap, in, FieldNetIncome, "negative or zero earnings"))
	e.put(set, e.divPositive(PB, mcap, in, FieldTotalEquity, "negative or zero book value"))
	e.put(set, e.divPositive(PS, mcap, in, FieldRevenue, "negative or zero revenue"))
	e.put(set, e.divPositive(PFCF, mcap, in, FieldFreeCashFlow, "negative or zero free cash flow"))

	e.put(set, e.divPositive(EVEBITDA, ev, in, FieldEBITDA, "negative or zero ebitda"))
	e.put(set, e.divPositive(EVSales, ev, in, FieldRevenue, "negative or zero revenue"))
	e.put(set, e.divPositive(EVFCF, ev, in, FieldFreeCashFlow, "negative or zero free cash flow"))

	e.put(set, e.fieldDivPositive(DebtToEquity, in, FieldTotalDebt, FieldTotalEquity, "negative or zero equity"))
	e.put(set, e.fieldDivPositive(DebtToEBITDA, in, FieldTotalDebt, FieldEBITDA, "negative or zero ebitda"))
	e.put(set, e.fieldDivPositive(CurrentRatio, in, FieldCurrentAssets, FieldCurrentLiabilities, "negative or zero current liabilities"))
	e.put(set, e.quickRatio(in))
	e.put(set, e.fieldDivPositive(CashRatio, in, FieldCash, FieldCurrentLiabilities, "negative or zero current liabilities"))
	e.put(set, e.fieldDivPositive(InterestCoverage, in, FieldEBIT, FieldInterestExpense, "zero or negative interest expense"))

	e.put(set, e.fieldDivPositive(ROE, in, FieldNetIncome, FieldTotalEquity, "negative or zero equity"))
	e.put(set, e.fieldDivPositive(ROA, in, FieldNetIncome, FieldTotalAssets, "negative or zero assets"))
	e.put(set, e.roic(in))

	e.put(set, e.fieldDivPositive(GrossMargin, in, FieldGrossProfit, FieldRevenue, "negative or zero revenue"))
	e.put(set, e.fieldDivPositive(OperatingMargin, in, FieldEBIT, FieldRevenue, "negative or zero revenue"))
	e.put(set, e.fieldDivPositive(NetMargin, in, FieldNetIncome, FieldRevenue, "negative or zero revenue"))
	e.put(set, e.fieldDivPositive(FCFMargin, in, FieldFreeCashFlow, FieldRevenue, "negative or zero revenue"))
	e.put(set, e.fieldDivPositive(AssetTurnover, in, FieldRevenue, FieldTotalAssets, "negative or zero assets"))
	e.put(set, e.fieldDivPositive(EquityRatio, in, FieldTotalEquity, FieldTotalAssets, "negative or zero assets"))

	e.put(set, e.growth(RevenueGrowth, in, FieldRevenue, FieldRevenuePrev))
	e.put(set, e.growth(EarningsGrowth, in, FieldNetIncome, FieldNetIncomePrev))
	e.put(set, e.growth(FCFGrowth, in, FieldFreeCashFlow, FieldFreeCashFlowPrev))

	e.put(set, e.dividendYield(in, price))
	e.put(set, e.payoutRatio(in))
	e.put(set, e.grahamNumber(in))

	return set
}

func (e *Engine) put(set *Set, r Ratio) { set.Ratios[r.Name] = r }

func defined(name string, v float64, period string) Ratio {
	return Ratio{Name: name, Value: v, Defined: true, Period: period}
}

func undefined(name, reason, period string) Ratio {
	return Ratio{Name: name, Defined: false, Reason: reason, Period: period}
}

// clamp applies the configured bounds, preserving the raw value and
// marking the ratio when it was capped.
func (e *Engine) clamp(r Ratio) Ratio {
	if !r.Defined {
		return r
	}
	b, ok := e.bounds[r.Name]
	if !ok {
		return r
	}
	if r.Value > b.Max {
		r.Raw, r.Clamped, r.Value = r.Value, true, b.Max
	} else if r.Value < b.Min {
		r.Raw, r.Clamped, r.Value = r.Value, true, b.Min
	}
	return r
}

// periodPolicy records which period discipline a ratio used. Instant
// (balance-sheet) inputs combine freely with flow inputs; a TTM flow over
// an annual flow is flagged as mixed rather than hidden.
func periodPolicy(num, den provider.PeriodType) string {
	if num == "" && den == "" {
		return ""
	}
	if num == den || den == provider.PeriodInstant || den == "" {
		return string(num)
	}
	if num == provider.PeriodInstant || num == "" {
		return string(den)
	}
	return "mixed:" + string(num) + "/" + string(den)
}

// divPositive divides a shared intermediate (market cap, EV) by a field
// that must be strictly positive for the ratio to be meaningful.
func (e *Engine) divPositive(name string, numerator Ratio, in input, denField, signReason string) Ratio {
	if !numerator.Defined {
		return undefined(name, numerator.Name+" undefined: "+numerator.Reason, "")
	}
	den, ok := in.num(denField)
	if !ok {
		return undefined(name, denField+" missing", "")
	}
	if den <= 0 {
		return undefined(name, signReason, "")
	}
	period := periodPolicy(provider.PeriodInstant, in.period(denField))
	return e.clamp(defined(name, numerator.Value/den, period))
}

// fieldDivPositive divides one reconciled field by another, requiring a
// strictly positive denominator.
func (e *Engine) fieldDivPositive(name string, in input, numField, denField, signReason string) Ratio {
	num, ok := in.num(numField)
	if !ok {
		return undefined(name, numField+" missing", "")
	}
	den, ok := in.num(denField)
	if !ok {
		return undefined(name, denField+" missing", "")
	}
	if den <= 0 {
		return undefined(name, signReason, "")
	}
	period := periodPolicy(in.period(numField), in.period(denField))
	return e.clamp(defined(name, num/den, period))
}

func (e *Engine) quickRatio(in input) Ratio {
	ca, ok := in.num(FieldCurrentAssets)
	if !ok {
		return undefined(QuickRatio, FieldCurrentAssets+" missing", "")
	}
	inv, ok := in.num(FieldInventory)
	if !ok {
		return undefined(QuickRatio, FieldInventory+" missing", "")
	}
	cl, ok := in.num(FieldCurrentLiabilities)
	if !ok {
		return undefined(QuickRatio, FieldCurrentLiabilities+" missing", "")
	}
	if cl <= 0 {
		return undefined(QuickRatio, "negative or zero current liabilities", "")
	}
	period := periodPolicy(in.period(FieldCurrentAssets), in.period(FieldCurrentLiabilities))
	return e.clamp(defined(QuickRatio, (ca-inv)/cl, period))
}

// roic approximates return on invested capital as net income over the sum
// of equity and debt.
func (e *Engine) roic(in input) Ratio {
	ni, ok := in.num(FieldNetIncome)
	if !ok {
		return undefined(ROIC, FieldNetIncome+" missing", "")
	}
	eq, ok := in.num(FieldTotalEquity)
	if !ok {
		return undefined(ROIC, FieldTotalEquity+" missing", "")
	}
	debt, ok := in.num(FieldTotalDebt)
	if !ok {
		return undefined(ROIC, FieldTotalDebt+" missing", "")
	}
	invested := eq + debt
	if invested <= 0 {
		return undefined(ROIC, "negative or zero invested capital", "")
	}
	period := periodPolicy(in.period(FieldNetIncome), in.period(FieldTotalEquity))
	return e.clamp(defined(ROIC, ni/invested, period))
}

// growth computes year-over-year change. It needs two observations of the
// same period type; anything else is undefined, not guessed.
func (e *Engine) growth(name string, in input, curField, prevField string) Ratio {
	cur, ok := in.num(curField)
	if !ok {
		return undefined(name, curField+" missing", "")
	}
	prev, ok := in.num(prevField)
	if !ok {
		return undefined(name, "only one period observed", "")
	}
	if prev == 0 {
		return undefined(name, "prior period value is zero", "")
	}
	curP, prevP := in.period(curField), in.period(prevField)
	if curP != "" && prevP != "" && curP != prevP {
		return undefined(name, "period type mismatch between observations", "")
	}
	return e.clamp(defined(name, (cur-prev)/math.Abs(prev), string(curP)))
}

func (e *Engine) dividendYield(in input, price float64) Ratio {
	dps, ok := in.num(FieldDividendPerShare)
	if !ok {
		return undefined(DividendYield, FieldDividendPerShare+" missing", "")
	}
	if price <= 0 {
		return undefined(DividendYield, "price not positive", "")
	}
	if dps < 0 {
		return undefined(DividendYield, "negative dividend per share", "")
	}
	return e.clamp(defined(DividendYield, dps/price, string(in.period(FieldDividendPerShare))))
}

func (e *Engine) payoutRatio(in input) Ratio {
	dps, ok := in.num(FieldDividendPerShare)
	if !ok {
		return undefined(PayoutRatio, FieldDividendPerShare+" missing", "")
	}
	eps, ok := in.num(FieldEPS)
	if !ok {
		return undefined(PayoutRatio, FieldEPS+" missing", "")
	}
	if eps <= 0 {
		return undefined(PayoutRatio, "negative or zero eps", "")
	}
	if dps < 0 {
		return undefined(PayoutRatio, "negative dividend per share", "")
	}
	period := periodPolicy(in.period(FieldDividendPerShare), in.period(FieldEPS))
	return e.clamp(defined(PayoutRatio, dps/eps, period))
}

// grahamNumber is sqrt(22.5 * EPS * BVPS); both inputs must be strictly
// positive for it to mean anything.
func (e *Engine) grahamNumber(in input) Ratio {
	eps, ok := in.num(FieldEPS)
	if !ok {
		return undefined(GrahamNumber, FieldEPS+" missing", "")
	}
	bvps, ok := in.num(FieldBookValuePerShare)
	if !ok {
		return undefined(GrahamNumber, FieldBookValuePerShare+" missing", "")
	}
	if eps <= 0 {
		return undefined(GrahamNumber, "negative or zero eps", "")
	}
	if bvps <= 0 {
		return undefined(GrahamNumber, "negative or zero book value per share", "")
	}
	period := periodPolicy(in.period(FieldEPS), in.period(FieldBookValuePerShare))
	return e.clamp(defined(GrahamNumber, math.Sqrt(22.5*eps*bvps), period))
}

// enterpriseValue is market cap + total debt - cash. With market cap
// undefined or both balance components unknown it is undefined; a single
// unknown component is treated as zero, which the reason trail records.
func (e *Engine) enterpriseValue(in input, mcap Ratio) Ratio {
	if !mcap.Defined {
		return undefined("enterprise_value", "market cap undefined: "+mcap.Reason, "")
	}
	debt, haveDebt := in.num(FieldTotalDebt)
	cash, haveCash := in.num(FieldCash)
	if !haveDebt && !haveCash {
		return undefined("enterprise_value", "total_debt and cash both missing", "")
	}
	r := defined("enterprise_value", mcap.Value+debt-cash, string(provider.PeriodInstant))
	switch {
	case !haveDebt:
		r.Reason = FieldTotalDebt + " missing, treated as zero"
	case !haveCash:
		r.Reason = FieldCash + " missing, treated as zero"
	}
	return r
}
