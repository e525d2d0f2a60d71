// Package postgres implements the score store on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/quantfold/fundrank/internal/scoring"
)

// Store persists score records in two tables: entity_scores holds the
// current row per entity (upserted), entity_score_history is append-only
// with one row per entity and calculation date.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New wraps an open sqlx handle.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return New(db, timeout), nil
}

// Save commits the current-state upsert and the history append in one
// transaction. The history row conflicts on (entity_id, calc_date), so
// retrying the same run is idempotent.
func (s *Store) Save(ctx context.Context, rec *scoring.ScoreRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	subScores, err := json.Marshal(rec.SubScores)
	if err != nil {
		return fmt.Errorf("encoding sub-scores: %w", err)
	}
	redFlags, err := json.Marshal(rec.RedFlags)
	if err != nil {
		return fmt.Errorf("encoding red flags: %w", err)
	}
	yellowFlags, err := json.Marshal(rec.YellowFlags)
	if err != nil {
		return fmt.Errorf("encoding yellow flags: %w", err)
	}
	fallbacks, err := json.Marshal(rec.FallbackSources)
	if err != nil {
		return fmt.Errorf("encoding fallback sources: %w", err)
	}
	missing, err := json.Marshal(rec.MissingFields)
	if err != nil {
		return fmt.Errorf("encoding missing fields: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting save transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO entity_scores
			(entity_id, sector, industry, sub_scores, composite_score, rating,
			 data_quality, red_flags, yellow_flags, primary_source,
			 fallback_sources, missing_fields, success_rate, run_id, calculated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (entity_id) DO UPDATE SET
			sector = EXCLUDED.sector,
			industry = EXCLUDED.industry,
			sub_scores = EXCLUDED.sub_scores,
			composite_score = EXCLUDED.composite_score,
			rating = EXCLUDED.rating,
			data_quality = EXCLUDED.data_quality,
			red_flags = EXCLUDED.red_flags,
			yellow_flags = EXCLUDED.yellow_flags,
			primary_source = EXCLUDED.primary_source,
			fallback_sources = EXCLUDED.fallback_sources,
			missing_fields = EXCLUDED.missing_fields,
			success_rate = EXCLUDED.success_rate,
			run_id = EXCLUDED.run_id,
			calculated_at = EXCLUDED.calculated_at`
	if _, err := tx.ExecContext(ctx, upsert,
		rec.EntityID, rec.Sector, rec.Industry, subScores, rec.Composite, rec.Rating,
		rec.DataQuality, redFlags, yellowFlags, rec.PrimarySource,
		fallbacks, missing, rec.SuccessRate, rec.RunID, rec.CalculatedAt); err != nil {
		return fmt.Errorf("upserting current score for %s: %w", rec.EntityID, err)
	}

	const appendHistory = `
		INSERT INTO entity_score_history
			(entity_id, calc_date, sector, industry, sub_scores, composite_score,
			 rating, data_quality, red_flags, yellow_flags, primary_source,
			 fallback_sources, missing_fields, success_rate, run_id, calculated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (entity_id, calc_date) DO UPDATE SET
			sub_scores = EXCLUDED.sub_scores,
			composite_score = EXCLUDED.composite_score,
			rating = EXCLUDED.rating,
			data_quality = EXCLUDED.data_quality,
			red_flags = EXCLUDED.red_flags,
			yellow_flags = EXCLUDED.yellow_flags,
			primary_source = EXCLUDED.primary_source,
			fallback_sources = EXCLUDED.fallback_sources,
			missing_fields = EXCLUDED.missing_fields,
			success_rate = EXCLUDED.success_rate,
			run_id = EXCLUDED.run_id,
			calculated_at = EXCLUDED.calculated_at`
	calcDate := rec.CalculatedAt.UTC().Truncate(24 * time.Hour)
	if _, err := tx.ExecContext(ctx, appendHistory,
		rec.EntityID, calcDate, rec.Sector, rec.Industry, subScores, rec.Composite,
		rec.Rating, rec.DataQuality, redFlags, yellowFlags, rec.PrimarySource,
		fallbacks, missing, rec.SuccessRate, rec.RunID, rec.CalculatedAt); err != nil {
		return fmt.Errorf("appending score history for %s: %w", rec.EntityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing score save for %s: %w", rec.EntityID, err)
	}
	return nil
}

// LastCalculation returns when the entity was last scored.
func (s *Store) LastCalculation(ctx context.Context, entityID string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var ts time.Time
	err := s.db.GetContext(ctx, &ts,
		`SELECT calculated_at FROM entity_scores WHERE entity_id = $1`, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last calculation for %s: %w", entityID, err)
	}
	return ts, true, nil
}
