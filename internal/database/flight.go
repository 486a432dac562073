package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flightsync/internal/models"
)

const timeLayout = time.RFC3339Nano

// FlightRepository persists reconciled flight records
type FlightRepository interface {
	UpsertBatch(ctx context.Context, roundID string, records []models.FlightRecord) error
	ListByDate(ctx context.Context, date models.Date) ([]models.FlightRecord, error)
}

type flightRepository struct {
	db *sql.DB
}

// NewFlightRepository creates a flight repository over db
func NewFlightRepository(db *sql.DB) FlightRepository {
	return &flightRepository{db: db}
}

// UpsertBatch writes records keyed by their identity key in a single
// transaction. Fallback rows never replace a row that came from a real
// provider.
func (r *flightRepository) UpsertBatch(ctx context.Context, roundID string, records []models.FlightRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO flights (
		flight_number, airline_id, departure_airport, arrival_airport, flight_date,
		scheduled_departure, departure_ts, scheduled_arrival, actual_departure, actual_arrival,
		status, aircraft_type, price, booking_link, source, fetched_at, round_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(flight_number, departure_airport, arrival_airport, flight_date) DO UPDATE SET
		airline_id = excluded.airline_id,
		scheduled_departure = excluded.scheduled_departure,
		departure_ts = excluded.departure_ts,
		scheduled_arrival = excluded.scheduled_arrival,
		actual_departure = excluded.actual_departure,
		actual_arrival = excluded.actual_arrival,
		status = excluded.status,
		aircraft_type = excluded.aircraft_type,
		price = excluded.price,
		booking_link = excluded.booking_link,
		source = excluded.source,
		fetched_at = excluded.fetched_at,
		round_id = excluded.round_id,
		updated_at = CURRENT_TIMESTAMP
	WHERE excluded.source != ? OR flights.source = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	fallback := string(models.SourceFallback)
	for _, rec := range records {
		key := rec.Key()
		if _, err := stmt.ExecContext(ctx,
			rec.FlightNumber,
			rec.AirlineID,
			rec.DepartureAirport,
			rec.ArrivalAirport,
			key.Date.String(),
			rec.ScheduledDeparture.Format(timeLayout),
			rec.ScheduledDeparture.Unix(),
			formatTime(rec.ScheduledArrival),
			formatTime(rec.ActualDeparture),
			formatTime(rec.ActualArrival),
			string(rec.Status),
			nullString(rec.AircraftType),
			rec.Price,
			nullString(rec.BookingLink),
			string(rec.Source),
			rec.FetchedAt.Format(timeLayout),
			roundID,
			fallback,
			fallback,
		); err != nil {
			return fmt.Errorf("failed to upsert flight %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByDate returns the stored records for a calendar date in departure order
func (r *flightRepository) ListByDate(ctx context.Context, date models.Date) ([]models.FlightRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		flight_number, airline_id, departure_airport, arrival_airport,
		scheduled_departure, scheduled_arrival, actual_departure, actual_arrival,
		status, aircraft_type, price, booking_link, source, fetched_at
	FROM flights
	WHERE flight_date = ?
	ORDER BY departure_ts, flight_number, departure_airport, arrival_airport`, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var records []models.FlightRecord
	for rows.Next() {
		var (
			rec                                  models.FlightRecord
			scheduledDeparture, fetchedAt        string
			scheduledArrival, actualDeparture    sql.NullString
			actualArrival, aircraftType, booking sql.NullString
			price                                sql.NullFloat64
			status, source                       string
		)
		if err := rows.Scan(
			&rec.FlightNumber, &rec.AirlineID, &rec.DepartureAirport, &rec.ArrivalAirport,
			&scheduledDeparture, &scheduledArrival, &actualDeparture, &actualArrival,
			&status, &aircraftType, &price, &booking, &source, &fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}

		if rec.ScheduledDeparture, err = time.Parse(timeLayout, scheduledDeparture); err != nil {
			return nil, fmt.Errorf("failed to parse scheduled departure of %s: %w", rec.FlightNumber, err)
		}
		if rec.FetchedAt, err = time.Parse(timeLayout, fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to parse fetch time of %s: %w", rec.FlightNumber, err)
		}
		rec.ScheduledArrival = parseTime(scheduledArrival)
		rec.ActualDeparture = parseTime(actualDeparture)
		rec.ActualArrival = parseTime(actualArrival)
		rec.Status = models.ParseStatus(status)
		rec.Source = models.Source(source)
		rec.AircraftType = aircraftType.String
		rec.BookingLink = booking.String
		if price.Valid {
			p := price.Float64
			rec.Price = &p
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flights: %w", err)
	}

	return records, nil
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
