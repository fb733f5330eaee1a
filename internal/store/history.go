package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/a1betting/prop-engine/internal/models"
)

// PgPool is the subset of *pgxpool.Pool the durable store uses
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// HistoryStore is the durable side of the projection store: the append-only
// projection_history table and the read-only player_performance feed.
type HistoryStore interface {
	// RecordProjection inserts h unless its projection ID is already stored.
	// It reports whether a row was written; a duplicate is not an error.
	RecordProjection(ctx context.Context, h models.HistoricalProjection) (bool, error)
	// PlayerPerformance returns up to limit records for (player, stat), newest first.
	PlayerPerformance(ctx context.Context, playerID, statType string, limit int) ([]models.PerformanceRecord, error)
	// PendingResults returns unresolved projections matching f, ordered by
	// (start_time, projection_id).
	PendingResults(ctx context.Context, f PendingFilter) ([]models.HistoricalProjection, error)
	// FindResult returns the performance record for the calendar date of
	// gameDate in gameDate's own location, or nil.
	FindResult(ctx context.Context, playerID, statType string, gameDate time.Time) (*models.PerformanceRecord, error)
	// ResolveResult writes an outcome onto a historical projection.
	ResolveResult(ctx context.Context, r models.ResolvedResult) error
	Ping(ctx context.Context) error
}

// PendingFilter selects unresolved projections with Since <= start_time < Before
// that sort after the keyset position (AfterStart, AfterID).
type PendingFilter struct {
	Since      time.Time
	Before     time.Time
	AfterStart time.Time
	AfterID    string
	Limit      int
}

// PostgresHistory implements HistoryStore on PostgreSQL
type PostgresHistory struct {
	pool PgPool
}

func NewPostgresHistory(pool PgPool) *PostgresHistory {
	return &PostgresHistory{pool: pool}
}

func (s *PostgresHistory) RecordProjection(ctx context.Context, h models.HistoricalProjection) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO projection_history
			(projection_id, player_id, player_name, team, league, stat_type, line_score, start_time, fetched_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (projection_id) DO NOTHING
	`, h.ProjectionID, h.PlayerID, h.PlayerName, h.Team, h.League, h.StatType,
		h.LineScore, h.StartTime, h.FetchedAt, h.Status)
	if err != nil {
		return false, fmt.Errorf("failed to record projection %s: %w", h.ProjectionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

const performanceColumns = `player_id, stat_type, game_date, actual_value, projected_value, difference, over_under_result`

func (s *PostgresHistory) PlayerPerformance(ctx context.Context, playerID, statType string, limit int) ([]models.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+performanceColumns+`
		FROM player_performance
		WHERE player_id = $1 AND stat_type = $2
		ORDER BY game_date DESC
		LIMIT $3
	`, playerID, statType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query player performance: %w", err)
	}
	defer rows.Close()

	var records []models.PerformanceRecord
	for rows.Next() {
		r, err := scanPerformance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresHistory) PendingResults(ctx context.Context, f PendingFilter) ([]models.HistoricalProjection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT projection_id, player_id, player_name, team, league, stat_type,
		       line_score, start_time, fetched_at, status
		FROM projection_history
		WHERE actual_result IS NULL
		  AND start_time >= $1 AND start_time < $2
		  AND (start_time, projection_id) > ($3, $4)
		ORDER BY start_time, projection_id
		LIMIT $5
	`, f.Since, f.Before, f.AfterStart, f.AfterID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending results: %w", err)
	}
	defer rows.Close()

	var pending []models.HistoricalProjection
	for rows.Next() {
		var h models.HistoricalProjection
		if err := rows.Scan(&h.ProjectionID, &h.PlayerID, &h.PlayerName, &h.Team, &h.League, &h.StatType,
			&h.LineScore, &h.StartTime, &h.FetchedAt, &h.Status); err != nil {
			return nil, fmt.Errorf("failed to scan projection history: %w", err)
		}
		pending = append(pending, h)
	}
	return pending, rows.Err()
}

func (s *PostgresHistory) FindResult(ctx context.Context, playerID, statType string, gameDate time.Time) (*models.PerformanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+performanceColumns+`
		FROM player_performance
		WHERE player_id = $1 AND stat_type = $2 AND game_date = $3::date
		LIMIT 1
	`, playerID, statType, gameDate.Format(time.DateOnly))
	r, err := scanPerformance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresHistory) ResolveResult(ctx context.Context, r models.ResolvedResult) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE projection_history
		SET actual_result = $2, hit_over = $3, accuracy_score = $4
		WHERE projection_id = $1 AND actual_result IS NULL
	`, r.ProjectionID, r.ActualResult, r.HitOver, r.AccuracyScore)
	if err != nil {
		return fmt.Errorf("failed to resolve projection %s: %w", r.ProjectionID, err)
	}
	return nil
}

func (s *PostgresHistory) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanPerformance(row pgx.Row) (models.PerformanceRecord, error) {
	var r models.PerformanceRecord
	var result *string
	if err := row.Scan(&r.PlayerID, &r.StatType, &r.GameDate, &r.ActualValue,
		&r.ProjectedValue, &r.Difference, &result); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan player performance: %w", err)
	}
	if result != nil {
		r.OverUnderResult = *result
	}
	return r, nil
}

// NopHistory is selected when no database is configured. Nothing is
// persisted and no performance history is available.
type NopHistory struct{}

func (NopHistory) RecordProjection(context.Context, models.HistoricalProjection) (bool, error) {
	return false, nil
}

func (NopHistory) PlayerPerformance(context.Context, string, string, int) ([]models.PerformanceRecord, error) {
	return nil, nil
}

func (NopHistory) PendingResults(context.Context, PendingFilter) ([]models.HistoricalProjection, error) {
	return nil, nil
}

func (NopHistory) FindResult(context.Context, string, string, time.Time) (*models.PerformanceRecord, error) {
	return nil, nil
}

func (NopHistory) ResolveResult(context.Context, models.ResolvedResult) error { return nil }

func (NopHistory) Ping(context.Context) error { return nil }
