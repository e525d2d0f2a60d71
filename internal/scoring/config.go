package scoring

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// RatioWeight binds one ratio to its maximum contribution inside a
// sub-score.
type RatioWeight struct {
	Ratio  string  `yaml:"ratio"`
	Weight float64 `yaml:"weight"`
}

// RatingBand maps an inclusive lower composite bound to a rating. Bands
// are configuration, not business logic: threshold tuning is a routine
// operational activity.
type RatingBand struct {
	Min    float64 `yaml:"min"`
	Rating Rating  `yaml:"rating"`
}

// FlagConfig tunes the deterministic red/yellow rule set.
type FlagConfig struct {
	// MinInterestCoverage is the red-flag floor for interest coverage.
	MinInterestCoverage float64 `yaml:"min_interest_coverage"`
	// BadExcessFraction marks a yellow flag when a ratio lands worse than
	// its bad bound by this fraction of the good-bad span.
	BadExcessFraction float64 `yaml:"bad_excess_fraction"`
	// LowCoverageFloor yellow-flags records reconciled below this rate.
	LowCoverageFloor float64 `yaml:"low_coverage_floor"`
}

// Config is the full scoring model configuration.
type Config struct {
	SubScores        map[string][]RatioWeight `yaml:"sub_scores"`
	CompositeWeights map[string]float64       `yaml:"composite_weights"`
	RatingBands      []RatingBand             `yaml:"rating_bands"`
	Flags            FlagConfig               `yaml:"flags"`
}

// LoadConfig reads a scoring configuration from YAML. Configuration
// errors are the one class of failure that aborts a run.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scoring config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing scoring config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural invariants of the scoring model.
func (c *Config) Validate() error {
	for _, name := range SubScoreNames() {
		weights, ok := c.SubScores[name]
		if !ok || len(weights) == 0 {
			return fmt.Errorf("sub-score %s has no ratio weights", name)
		}
		for _, rw := range weights {
			if rw.Weight <= 0 {
				return fmt.Errorf("sub-score %s: ratio %s has non-positive weight %v", name, rw.Ratio, rw.Weight)
			}
		}
		if _, ok := c.CompositeWeights[name]; !ok {
			return fmt.Errorf("composite weight missing for sub-score %s", name)
		}
	}
	total := 0.0
	for name, w := range c.CompositeWeights {
		if w < 0 {
			return fmt.Errorf("composite weight for %s is negative", name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("composite weights sum to zero")
	}
	if len(c.RatingBands) == 0 {
		return fmt.Errorf("no rating bands configured")
	}
	bands := append([]RatingBand(nil), c.RatingBands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })
	for i := 1; i < len(bands); i++ {
		if bands[i].Min == bands[i-1].Min {
			return fmt.Errorf("duplicate rating band lower bound %v", bands[i].Min)
		}
	}
	if c.Flags.BadExcessFraction < 0 {
		return fmt.Errorf("bad_excess_fraction must not be negative")
	}
	if c.Flags.LowCoverageFloor < 0 || c.Flags.LowCoverageFloor > 1 {
		return fmt.Errorf("low_coverage_floor must be within [0,1]")
	}
	return nil
}

// rate classifies a composite score into the band with the highest
// inclusive lower bound at or below it.
func (c *Config) rate(composite float64) Rating {
	bands := append([]RatingBand(nil), c.RatingBands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })
	chosen := bands[0].Rating
	for _, b := range bands {
		if composite >= b.Min {
			chosen = b.Rating
		}
	}
	return chosen
}
