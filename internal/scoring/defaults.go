package scoring

import "github.com/quantfold/fundrank/internal/ratio"

// DefaultConfig is the shipped scoring model. Operators are expected to
// tune weights and bands in config rather than edit these values.
func DefaultConfig() *Config {
	return &Config{
		SubScores: map[string][]RatioWeight{
			SubValuation: {
				{Ratio: ratio.PE, Weight: 3},
				{Ratio: ratio.PB, Weight: 2},
				{Ratio: ratio.PS, Weight: 2},
				{Ratio: ratio.PFCF, Weight: 2},
				{Ratio: ratio.EVEBITDA, Weight: 3},
				{Ratio: ratio.EVSales, Weight: 1},
				{Ratio: ratio.EVFCF, Weight: 2},
			},
			SubQuality: {
				{Ratio: ratio.ROE, Weight: 3},
				{Ratio: ratio.ROA, Weight: 2},
				{Ratio: ratio.ROIC, Weight: 3},
				{Ratio: ratio.GrossMargin, Weight: 2},
				{Ratio: ratio.OperatingMargin, Weight: 2},
				{Ratio: ratio.NetMargin, Weight: 2},
				{Ratio: ratio.AssetTurnover, Weight: 1},
			},
			SubGrowth: {
				{Ratio: ratio.RevenueGrowth, Weight: 3},
				{Ratio: ratio.EarningsGrowth, Weight: 3},
				{Ratio: ratio.FCFGrowth, Weight: 2},
			},
			SubFinancialHealth: {
				{Ratio: ratio.CurrentRatio, Weight: 2},
				{Ratio: ratio.QuickRatio, Weight: 2},
				{Ratio: ratio.CashRatio, Weight: 1},
				{Ratio: ratio.DebtToEquity, Weight: 3},
				{Ratio: ratio.DebtToEBITDA, Weight: 2},
				{Ratio: ratio.InterestCoverage, Weight: 3},
				{Ratio: ratio.EquityRatio, Weight: 1},
			},
			SubManagement: {
				{Ratio: ratio.ROIC, Weight: 2},
				{Ratio: ratio.PayoutRatio, Weight: 2},
				{Ratio: ratio.DividendYield, Weight: 1},
				{Ratio: ratio.FCFMargin, Weight: 2},
			},
		},
		CompositeWeights: map[string]float64{
			SubValuation:       0.25,
			SubQuality:         0.25,
			SubGrowth:          0.20,
			SubFinancialHealth: 0.20,
			SubManagement:      0.10,
		},
		RatingBands: []RatingBand{
			{Min: 0, Rating: StrongSell},
			{Min: 30, Rating: Sell},
			{Min: 45, Rating: Hold},
			{Min: 62, Rating: Buy},
			{Min: 80, Rating: StrongBuy},
		},
		Flags: FlagConfig{
			MinInterestCoverage: 1.0,
			BadExcessFraction:   0.5,
			LowCoverageFloor:    0.6,
		},
	}
}

// DefaultThresholds ships a global threshold table so the engine can run
// without an external table; sector and industry rows come from config.
func DefaultThresholds() *Table {
	return &Table{
		Global: map[string]Threshold{
			ratio.PE:               {Good: 15, Bad: 40},
			ratio.PB:               {Good: 1.5, Bad: 5},
			ratio.PS:               {Good: 2, Bad: 8},
			ratio.PFCF:             {Good: 15, Bad: 40},
			ratio.EVEBITDA:         {Good: 10, Bad: 25},
			ratio.EVSales:          {Good: 2, Bad: 8},
			ratio.EVFCF:            {Good: 15, Bad: 40},
			ratio.DebtToEquity:     {Good: 0.5, Bad: 2},
			ratio.DebtToEBITDA:     {Good: 2, Bad: 5},
			ratio.CurrentRatio:     {Good: 2, Bad: 1},
			ratio.QuickRatio:       {Good: 1, Bad: 0.5},
			ratio.CashRatio:        {Good: 0.5, Bad: 0.1},
			ratio.InterestCoverage: {Good: 5, Bad: 1},
			ratio.ROE:              {Good: 0.15, Bad: 0.02},
			ratio.ROA:              {Good: 0.08, Bad: 0.01},
			ratio.ROIC:             {Good: 0.12, Bad: 0.02},
			ratio.GrossMargin:      {Good: 0.40, Bad: 0.10},
			ratio.OperatingMargin:  {Good: 0.15, Bad: 0.02},
			ratio.NetMargin:        {Good: 0.10, Bad: 0.01},
			ratio.FCFMargin:        {Good: 0.10, Bad: 0.01},
			ratio.AssetTurnover:    {Good: 1.0, Bad: 0.2},
			ratio.EquityRatio:      {Good: 0.5, Bad: 0.2},
			ratio.RevenueGrowth:    {Good: 0.10, Bad: 0},
			ratio.EarningsGrowth:   {Good: 0.10, Bad: 0},
			ratio.FCFGrowth:        {Good: 0.10, Bad: 0},
			ratio.DividendYield:    {Good: 0.03, Bad: 0.001},
			ratio.PayoutRatio:      {Good: 0.4, Bad: 0.9},
		},
	}
}
