package providers

import (
	"context"
	"log/slog"
	"time"

	"flightsync/internal/models"
)

// RawPayload is an opaque provider response plus the moment it was retrieved.
// It is what gets cached, so a cache hit normalizes to identical records.
type RawPayload struct {
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Provider is a flight data source.
//
// Fetch retrieves raw data for one calendar date and one parameter set; it
// classifies failures with the error types from package retry. Normalize
// must be pure: it never fails, and drops any row missing a required field.
// Implementations own whatever session state they need.
type Provider interface {
	Name() string
	Priority() int
	Fetch(ctx context.Context, date models.Date, params models.Params) (RawPayload, error)
	Normalize(payload RawPayload) []models.FlightRecord
}

// KeepValid filters out records that cannot be identified and forces an
// unknown status back to on_time. Drops are logged to logger at debug level.
func KeepValid(logger *slog.Logger, name string, records []models.FlightRecord) []models.FlightRecord {
	out := make([]models.FlightRecord, 0, len(records))
	dropped := 0
	for _, r := range records {
		if !r.HasRequiredFields() {
			dropped++
			continue
		}
		if !r.Status.Valid() {
			r.Status = models.StatusOnTime
		}
		out = append(out, r)
	}
	if dropped > 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Debug("Dropped incomplete records", "provider", name, "dropped", dropped, "kept", len(out))
	}
	return out
}
