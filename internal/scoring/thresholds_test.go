package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fallbackTable() *Table {
	return &Table{
		Industry: map[string]map[string]map[string]Threshold{
			"technology": {
				"semiconductors": {
					"pe": {Good: 20, Bad: 45},
				},
			},
		},
		Sector: map[string]map[string]Threshold{
			"technology": {
				"pe": {Good: 25, Bad: 60},
				"ps": {Good: 5, Bad: 15},
			},
		},
		Global: map[string]Threshold{
			"pe":  {Good: 15, Bad: 40},
			"ps":  {Good: 2, Bad: 8},
			"roe": {Good: 0.15, Bad: 0.02},
		},
	}
}

func TestTable_LookupFallbackOrder(t *testing.T) {
	table := fallbackTable()

	t.Run("industry_wins", func(t *testing.T) {
		th, ok := table.Lookup("technology", "semiconductors", "pe")
		require.True(t, ok)
		assert.Equal(t, Threshold{Good: 20, Bad: 45}, th)
	})

	t.Run("sector_when_industry_silent", func(t *testing.T) {
		th, ok := table.Lookup("technology", "semiconductors", "ps")
		require.True(t, ok)
		assert.Equal(t, Threshold{Good: 5, Bad: 15}, th)
	})

	t.Run("global_when_sector_silent", func(t *testing.T) {
		th, ok := table.Lookup("technology", "semiconductors", "roe")
		require.True(t, ok)
		assert.Equal(t, Threshold{Good: 0.15, Bad: 0.02}, th)
	})

	t.Run("unknown_sector_falls_to_global", func(t *testing.T) {
		th, ok := table.Lookup("energy", "oil", "pe")
		require.True(t, ok)
		assert.Equal(t, Threshold{Good: 15, Bad: 40}, th)
	})

	t.Run("unknown_ratio", func(t *testing.T) {
		_, ok := table.Lookup("technology", "semiconductors", "unheard_of")
		assert.False(t, ok)
	})
}

func TestLoadTable(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "thresholds.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("valid", func(t *testing.T) {
		path := write(t, `
global:
  pe: { good: 15, bad: 40 }
sector:
  utilities:
    pe: { good: 12, bad: 25 }
`)
		table, err := LoadTable(path)
		require.NoError(t, err)

		th, ok := table.Lookup("utilities", "", "pe")
		require.True(t, ok)
		assert.Equal(t, Threshold{Good: 12, Bad: 25}, th)
	})

	t.Run("empty_table_rejected", func(t *testing.T) {
		_, err := LoadTable(write(t, "global: {}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "defines no thresholds")
	})

	t.Run("degenerate_bounds_rejected", func(t *testing.T) {
		_, err := LoadTable(write(t, "global:\n  pe: { good: 20, bad: 20 }\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "equal")
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadTable(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
