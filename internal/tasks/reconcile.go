package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flightsync/internal/database"
	"flightsync/internal/models"
	"flightsync/internal/orchestrator"
)

// Reconciler runs one round for a date
type Reconciler interface {
	Run(ctx context.Context, date models.Date, configs []orchestrator.ProviderConfig, deadline time.Duration) *orchestrator.Result
}

// Sink receives every round's reconciled records
type Sink interface {
	Publish(ctx context.Context, roundID string, records []models.FlightRecord) error
}

// ReconcileConfig holds the knobs of the reconcile task
type ReconcileConfig struct {
	Interval  time.Duration
	DaysAhead int           // dates after today to reconcile on each run
	Deadline  time.Duration // per-round budget
	Location  *time.Location
}

// ReconcileTask reconciles today and the following days, stores the result
// and publishes it
type ReconcileTask struct {
	reconciler Reconciler
	providers  []orchestrator.ProviderConfig
	flights    database.FlightRepository
	rounds     database.RoundRepository
	sink       Sink
	cfg        ReconcileConfig
	now        func() time.Time
}

// NewReconcileTask creates the task. sink may be nil.
func NewReconcileTask(
	reconciler Reconciler,
	providers []orchestrator.ProviderConfig,
	flights database.FlightRepository,
	rounds database.RoundRepository,
	sink Sink,
	cfg ReconcileConfig,
) *ReconcileTask {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &ReconcileTask{
		reconciler: reconciler,
		providers:  providers,
		flights:    flights,
		rounds:     rounds,
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Name identifies the task in scheduler logs
func (t *ReconcileTask) Name() string { return "reconcile" }
// Interval is the time between passes
func (t *ReconcileTask) Interval() time.Duration { return t.cfg.Interval }

// Run processes every date in the window. A failing date does not stop the
// remaining ones.
func (t *ReconcileTask) Run(ctx context.Context) error {
	today := models.DateOf(t.now().In(t.cfg.Location))

	var errs []error
	for d := 0; d <= t.cfg.DaysAhead; d++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.reconcileDate(ctx, today.AddDays(d)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *ReconcileTask) reconcileDate(ctx context.Context, date models.Date) error {
	result := t.reconciler.Run(ctx, date, t.providers, t.cfg.Deadline)

	if err := t.flights.UpsertBatch(ctx, result.RoundID, result.Records); err != nil {
		return fmt.Errorf("failed to store flights for %s: %w", date, err)
	}

	errs := make(map[string]string, len(result.Errors))
	for name, err := range result.Errors {
		errs[name] = err.Error()
	}
	if err := t.rounds.Insert(ctx, database.Round{
		ID:             result.RoundID,
		Date:           date,
		Outcome:        string(result.Outcome),
		FallbackUsed:   result.FallbackUsed,
		RecordCount:    len(result.Records),
		ProviderCounts: result.Counts,
		ProviderErrors: errs,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
	}); err != nil {
		// the flights are already stored; a missing audit row is not worth failing the date
		slog.Error("Failed to record round audit", "round_id", result.RoundID, "date", date.String(), "error", err)
	}

	if t.sink != nil {
		if err := t.sink.Publish(ctx, result.RoundID, result.Records); err != nil {
			return fmt.Errorf("failed to publish flights for %s: %w", date, err)
		}
	}

	slog.Info("Reconciled date",
		"date", date.String(),
		"round_id", result.RoundID,
		"outcome", result.Outcome,
		"records", len(result.Records),
	)
	return nil
}
