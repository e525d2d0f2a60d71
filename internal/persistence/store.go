// Package persistence defines the narrow read/write contract the engine
// emits score records through. The storage engine behind it is external.
package persistence

import (
	"context"
	"time"

	"github.com/quantfold/fundrank/internal/scoring"
)

// ScoreStore persists scoring output. The current-state upsert and the
// historical append for one entity must be committed together or not at
// all; the operation is idempotent per entity and calculation date, so
// at-least-once retries are safe.
type ScoreStore interface {
	// Save writes the current record and appends the history row in a
	// single transaction.
	Save(ctx context.Context, rec *scoring.ScoreRecord) error

	// LastCalculation returns the most recent calculation time for an
	// entity, or (zero, false) when it was never scored.
	LastCalculation(ctx context.Context, entityID string) (time.Time, bool, error)
}
