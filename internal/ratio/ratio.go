// Package ratio derives financial ratios from a reconciled fundamentals
// record plus the current market price. Every ratio carries an explicit
// defined/undefined marker instead of sentinel zeroes.
package ratio

// Ratio is one derived metric. Undefined ratios keep the reason they
// could not be computed; clamped ratios keep the raw pre-clamp value so
// the audit trail survives.
type Ratio struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
	Reason  string  `json:"reason,omitempty"` // set when undefined, or when an input assumption was made
	Raw     float64 `json:"raw,omitempty"`    // pre-clamp value when clamped
	Clamped bool    `json:"clamped,omitempty"`
	Period  string  `json:"period"` // period policy used, e.g. "ttm" or "mixed:ttm/annual"
}

// Set holds every computed ratio plus the shared intermediates.
type Set struct {
	Ratios          map[string]Ratio `json:"ratios"`
	MarketCap       Ratio            `json:"market_cap"`
	EnterpriseValue Ratio            `json:"enterprise_value"`
}

// Get returns a named ratio; absent names come back undefined.
func (s *Set) Get(name string) Ratio {
	if r, ok := s.Ratios[name]; ok {
		return r
	}
	return Ratio{Name: name, Defined: false, Reason: "not computed"}
}

// Defined reports whether the named ratio was computed.
func (s *Set) Defined(name string) bool {
	r, ok := s.Ratios[name]
	return ok && r.Defined
}

// Canonical ratio names. The scoring configuration refers to these.
const (
	PE               = "pe"
	PB               = "pb"
	PS               = "ps"
	PFCF             = "p_fcf"
	EVEBITDA         = "ev_ebitda"
	EVSales          = "ev_sales"
	EVFCF            = "ev_fcf"
	DebtToEquity     = "debt_to_equity"
	DebtToEBITDA     = "debt_to_ebitda"
	CurrentRatio     = "current_ratio"
	QuickRatio       = "quick_ratio"
	CashRatio        = "cash_ratio"
	InterestCoverage = "interest_coverage"
	ROE              = "roe"
	ROA              = "roa"
	ROIC             = "roic"
	GrossMargin      = "gross_margin"
	OperatingMargin  = "operating_margin"
	NetMargin        = "net_margin"
	FCFMargin        = "fcf_margin"
	AssetTurnover    = "asset_turnover"
	EquityRatio      = "equity_ratio"
	RevenueGrowth    = "revenue_growth"
	EarningsGrowth   = "earnings_growth"
	FCFGrowth        = "fcf_growth"
	DividendYield    = "dividend_yield"
	PayoutRatio      = "payout_ratio"
	GrahamNumber     = "graham_number"
)

// AllNames lists every ratio the engine computes, in a stable order.
func AllNames() []string {
	return []string{
		PE, PB, PS, PFCF,
		EVEBITDA, EVSales, EVFCF,
		DebtToEquity, DebtToEBITDA,
		CurrentRatio, QuickRatio, CashRatio, InterestCoverage,
		ROE, ROA, ROIC,
		GrossMargin, OperatingMargin, NetMargin, FCFMargin,
		AssetTurnover, EquityRatio,
		RevenueGrowth, EarningsGrowth, FCFGrowth,
		DividendYield, PayoutRatio, GrahamNumber,
	}
}

// Canonical fundamental field names the engine reads from a reconciled
// record. Providers map their own payload keys onto these.
const (
	FieldRevenue            = "revenue"
	FieldNetIncome          = "net_income"
	FieldEPS                = "eps"
	FieldSharesOutstanding  = "shares_outstanding"
	FieldTotalEquity        = "total_equity"
	FieldTotalDebt          = "total_debt"
	FieldCash               = "cash"
	FieldTotalAssets        = "total_assets"
	FieldCurrentAssets      = "current_assets"
	FieldCurrentLiabilities = "current_liabilities"
	FieldInventory          = "inventory"
	FieldEBITDA             = "ebitda"
	FieldEBIT               = "ebit"
	FieldInterestExpense    = "interest_expense"
	FieldGrossProfit        = "gross_profit"
	FieldFreeCashFlow       = "free_cash_flow"
	FieldBookValuePerShare  = "book_value_per_share"
	FieldDividendPerShare   = "dividend_per_share"
	FieldRevenuePrev        = "revenue_prev"
	FieldNetIncomePrev      = "net_income_prev"
	FieldFreeCashFlowPrev   = "free_cash_flow_prev"
	FieldSector             = "sector"
	FieldIndustry           = "industry"
)

// RequiredFields is the canonical "ask every provider for these" set for
// a full scoring run.
func RequiredFields() []string {
	return []string{
		FieldRevenue, FieldNetIncome, FieldEPS, FieldSharesOutstanding,
		FieldTotalEquity, FieldTotalDebt, FieldCash, FieldTotalAssets,
		FieldCurrentAssets, FieldCurrentLiabilities, FieldInventory,
		FieldEBITDA, FieldEBIT, FieldInterestExpense, FieldGrossProfit,
		FieldFreeCashFlow, FieldBookValuePerShare, FieldDividendPerShare,
		FieldRevenuePrev, FieldNetIncomePrev, FieldFreeCashFlowPrev,
		FieldSector, FieldIndustry,
	}
}

// Bounds caps a ratio to provider-agnostic sane limits so one corrupt
// input cannot distort the score distribution downstream.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DefaultBounds are deliberately generous: they exist to stop corrupt
// inputs, not to shape legitimate outliers.
func DefaultBounds() map[string]Bounds {
	return map[string]Bounds{
		PE:               {Min: 0, Max: 1000},
		PB:               {Min: 0, Max: 500},
		PS:               {Min: 0, Max: 500},
		PFCF:             {Min: 0, Max: 1000},
		EVEBITDA:         {Min: 0, Max: 1000},
		EVSales:          {Min: 0, Max: 500},
		EVFCF:            {Min: 0, Max: 1000},
		DebtToEquity:     {Min: 0, Max: 100},
		DebtToEBITDA:     {Min: 0, Max: 100},
		CurrentRatio:     {Min: 0, Max: 100},
		QuickRatio:       {Min: 0, Max: 100},
		CashRatio:        {Min: 0, Max: 100},
		InterestCoverage: {Min: -1000, Max: 1000},
		ROE:              {Min: -10, Max: 10},
		ROA:              {Min: -10, Max: 10},
		ROIC:             {Min: -10, Max: 10},
		GrossMargin:      {Min: -1, Max: 1},
		OperatingMargin:  {Min: -10, Max: 1},
		NetMargin:        {Min: -10, Max: 1},
		FCFMargin:        {Min: -10, Max: 1},
		AssetTurnover:    {Min: 0, Max: 100},
		EquityRatio:      {Min: -10, Max: 1},
		RevenueGrowth:    {Min: -1, Max: 100},
		EarningsGrowth:   {Min: -10, Max: 100},
		FCFGrowth:        {Min: -10, Max: 100},
		DividendYield:    {Min: 0, Max: 1},
		PayoutRatio:      {Min: 0, Max: 10},
		GrahamNumber:     {Min: 0, Max: 1e9},
	}
}
