package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flightsync/internal/models"
)

// sortableLayout is fixed width so started_at orders lexically
const sortableLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Round is the audit row written for every reconciliation round
type Round struct {
	ID             string
	Date           models.Date
	Outcome        string
	FallbackUsed   bool
	RecordCount    int
	ProviderCounts map[string]int
	ProviderErrors map[string]string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RoundRepository stores the audit row of every reconciliation round
type RoundRepository interface {
	Insert(ctx context.Context, round Round) error
	Latest(ctx context.Context, date models.Date) (*Round, error)
}

type roundRepository struct {
	db *sql.DB
}

// NewRoundRepository creates a round repository over db
func NewRoundRepository(db *sql.DB) RoundRepository {
	return &roundRepository{db: db}
}

// Insert writes one round. Maps are stored as JSON.
func (r *roundRepository) Insert(ctx context.Context, round Round) error {
	counts, err := json.Marshal(nonNilCounts(round.ProviderCounts))
	if err != nil {
		return fmt.Errorf("failed to encode provider counts: %w", err)
	}
	errs, err := json.Marshal(nonNilErrors(round.ProviderErrors))
	if err != nil {
		return fmt.Errorf("failed to encode provider errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO reconcile_rounds (
		id, flight_date, outcome, fallback_used, record_count,
		provider_counts, provider_errors, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		round.ID,
		round.Date.String(),
		round.Outcome,
		round.FallbackUsed,
		round.RecordCount,
		string(counts),
		string(errs),
		round.StartedAt.UTC().Format(sortableLayout),
		round.FinishedAt.UTC().Format(sortableLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert round %s: %w", round.ID, err)
	}
	return nil
}

// Latest returns the most recent round for date, or nil when there is none
func (r *roundRepository) Latest(ctx context.Context, date models.Date) (*Round, error) {
	var (
		round                 Round
		flightDate            string
		counts, errs          string
		startedAt, finishedAt string
	)
	err := r.db.QueryRowContext(ctx, `SELECT
		id, flight_date, outcome, fallback_used, record_count,
		provider_counts, provider_errors, started_at, finished_at
	FROM reconcile_rounds
	WHERE flight_date = ?
	ORDER BY started_at DESC
	LIMIT 1`, date.String()).Scan(
		&round.ID, &flightDate, &round.Outcome, &round.FallbackUsed, &round.RecordCount,
		&counts, &errs, &startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest round: %w", err)
	}

	if round.Date, err = models.ParseDate(flightDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(counts), &round.ProviderCounts); err != nil {
		return nil, fmt.Errorf("failed to decode provider counts: %w", err)
	}
	if err := json.Unmarshal([]byte(errs), &round.ProviderErrors); err != nil {
		return nil, fmt.Errorf("failed to decode provider errors: %w", err)
	}
	if round.StartedAt, err = time.Parse(sortableLayout, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse round start: %w", err)
	}
	if round.FinishedAt, err = time.Parse(sortableLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse round finish: %w", err)
	}

	return &round, nil
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilErrors(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
