package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Threshold is the good/bad bound pair for one ratio. When Good < Bad the
// ratio is better when lower (P/E, debt ratios); when Good > Bad it is
// better when higher (ROE, margins).
type Threshold struct {
	Good float64 `yaml:"good"`
	Bad  float64 `yaml:"bad"`
}

// ThresholdSource resolves the threshold pair for a ratio in a sector and
// industry context. The second return is false when no threshold exists
// at any fallback level.
type ThresholdSource interface {
	Lookup(sector, industry, ratioName string) (Threshold, bool)
}

// Table is a ThresholdSource backed by static maps with the fallback
// order industry-level -> sector-level -> global defaults.
type Table struct {
	// Industry maps sector -> industry -> ratio -> threshold.
	Industry map[string]map[string]map[string]Threshold `yaml:"industry"`
	// Sector maps sector -> ratio -> threshold.
	Sector map[string]map[string]Threshold `yaml:"sector"`
	// Global maps ratio -> threshold.
	Global map[string]Threshold `yaml:"global"`
}

// Lookup resolves thresholds with industry->sector->global fallback.
func (t *Table) Lookup(sector, industry, ratioName string) (Threshold, bool) {
	if byIndustry, ok := t.Industry[sector]; ok {
		if ratios, ok := byIndustry[industry]; ok {
			if th, ok := ratios[ratioName]; ok {
				return th, true
			}
		}
	}
	if ratios, ok := t.Sector[sector]; ok {
		if th, ok := ratios[ratioName]; ok {
			return th, true
		}
	}
	th, ok := t.Global[ratioName]
	return th, ok
}

// LoadTable reads a threshold table from YAML. A table that defines no
// thresholds at all is a configuration error: the run must abort rather
// than score everything as missing.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading threshold table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing threshold table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid threshold table: %w", err)
	}
	return &t, nil
}

// Validate rejects empty or degenerate tables.
func (t *Table) Validate() error {
	if len(t.Global) == 0 && len(t.Sector) == 0 && len(t.Industry) == 0 {
		return fmt.Errorf("threshold table defines no thresholds")
	}
	check := func(scope, ratio string, th Threshold) error {
		if th.Good == th.Bad {
			return fmt.Errorf("%s threshold for %s: good and bad bounds are equal (%v)", scope, ratio, th.Good)
		}
		return nil
	}
	for ratio, th := range t.Global {
		if err := check("global", ratio, th); err != nil {
			return err
		}
	}
	for sector, ratios := range t.Sector {
		for ratio, th := range ratios {
			if err := check("sector "+sector, ratio, th); err != nil {
				return err
			}
		}
	}
	for sector, industries := range t.Industry {
		for industry, ratios := range industries {
			for ratio, th := range ratios {
				if err := check("industry "+sector+"/"+industry, ratio, th); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
