package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults_are_valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("missing_sub_score", func(t *testing.T) {
		cfg := DefaultConfig()
		delete(cfg.SubScores, SubGrowth)
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "growth")
	})

	t.Run("non_positive_ratio_weight", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SubScores[SubGrowth][0].Weight = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing_composite_weight", func(t *testing.T) {
		cfg := DefaultConfig()
		delete(cfg.CompositeWeights, SubManagement)
		assert.Error(t, cfg.Validate())
	})

	t.Run("no_rating_bands", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RatingBands = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate_band_bound", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RatingBands = append(cfg.RatingBands, RatingBand{Min: 45, Rating: Buy})
		assert.Error(t, cfg.Validate())
	})

	t.Run("coverage_floor_out_of_range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Flags.LowCoverageFloor = 1.5
		assert.Error(t, cfg.Validate())
	})
}
