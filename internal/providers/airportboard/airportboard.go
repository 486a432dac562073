// Package airportboard reads real-time departure and arrival boards
// published by the regional airports. Boards carry actual times and
// remarks but no prices or aircraft.
package airportboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"flightsync/internal/models"
	"flightsync/internal/providers"
	"flightsync/internal/retry"
)

const (
	boardPath       = "/api/flights/board"
	defaultPriority = 2
)

// Option configures the Provider
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// WithPriority overrides the merge rank
func WithPriority(priority int) Option {
	return func(p *Provider) { p.priority = priority }
}

// WithLocation sets the zone the board's HH:MM times are read in
func WithLocation(loc *time.Location) Option {
	return func(p *Provider) { p.loc = loc }
}

// WithClock overrides the fetched_at time source
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the logger for payload and validation warnings
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider polls one board endpoint; each request names the airport
type Provider struct {
	baseURL    string
	priority   int
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a board provider for the endpoint at baseURL
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		priority:   defaultPriority,
		loc:        providers.TaipeiLocation(),
		httpClient: providers.NewHTTPClient(20 * time.Second),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the source tag stamped on every record
func (p *Provider) Name() string { return string(models.SourceAirportBoard) }
// Priority returns the merge rank; lower wins
func (p *Provider) Priority() int { return p.priority }

type board struct {
	Airport string  `json:"airport"`
	Date    string  `json:"date"`
	Flights []entry `json:"flights"`
}

// entry times are HH:MM local; actual times stay empty until the event happens
type entry struct {
	Airline            string `json:"airline"`
	FlightNo           string `json:"flight_no"`
	Origin             string `json:"origin"`
	Destination        string `json:"destination"`
	ScheduledDeparture string `json:"scheduled_departure"`
	ScheduledArrival   string `json:"scheduled_arrival"`
	ActualDeparture    string `json:"actual_departure"`
	ActualArrival      string `json:"actual_arrival"`
	Remark             string `json:"remark"`
}

// Fetch downloads one airport board. params must include "airport".
func (p *Provider) Fetch(ctx context.Context, date models.Date, params models.Params) (providers.RawPayload, error) {
	if p.baseURL == "" {
		return providers.RawPayload{}, &retry.QuotaExceededError{Reason: "board endpoint not configured"}
	}
	airport := params.String("airport")
	if airport == "" {
		return providers.RawPayload{}, &retry.QuotaExceededError{Reason: "request has no airport"}
	}

	query := providers.Query(params)
	query.Set("date", date.String())

	body, err := providers.Get(ctx, p.httpClient, p.baseURL+boardPath, query, nil)
	if err != nil {
		return providers.RawPayload{}, err
	}

	var b board
	if err := json.Unmarshal(body, &b); err != nil {
		return providers.RawPayload{}, retry.Transient(fmt.Errorf("parsing board: %w", err))
	}
	if b.Date == "" || b.Airport == "" {
		if b.Date == "" {
			b.Date = date.String()
		}
		if b.Airport == "" {
			b.Airport = airport
		}
		if body, err = json.Marshal(b); err != nil {
			return providers.RawPayload{}, fmt.Errorf("failed to re-encode board: %w", err)
		}
	}

	return providers.RawPayload{Body: body, FetchedAt: p.now()}, nil
}

// Normalize converts board rows into canonical records. Clock times are
// anchored to the board's date and rolled past midnight when they fall more
// than twelve hours before the scheduled departure.
func (p *Provider) Normalize(payload providers.RawPayload) []models.FlightRecord {
	var b board
	if err := json.Unmarshal(payload.Body, &b); err != nil {
		p.logger.Warn("Discarding unreadable board payload", "provider", p.Name(), "error", err)
		return nil
	}

	date, err := models.ParseDate(b.Date)
	if err != nil {
		p.logger.Warn("Board has no usable date", "provider", p.Name(), "airport", b.Airport, "error", err)
		return nil
	}

	records := make([]models.FlightRecord, 0, len(b.Flights))
	for _, e := range b.Flights {
		scheduled, err := date.At(strings.TrimSpace(e.ScheduledDeparture), p.loc)
		if err != nil {
			continue
		}

		airline := strings.ToUpper(strings.TrimSpace(e.Airline))
		records = append(records, models.FlightRecord{
			FlightNumber:       flightNumber(airline, e.FlightNo),
			AirlineID:          airline,
			DepartureAirport:   strings.ToUpper(strings.TrimSpace(e.Origin)),
			ArrivalAirport:     strings.ToUpper(strings.TrimSpace(e.Destination)),
			ScheduledDeparture: scheduled,
			ScheduledArrival:   clockAfter(date, e.ScheduledArrival, scheduled, p.loc),
			ActualDeparture:    clockAfter(date, e.ActualDeparture, scheduled, p.loc),
			ActualArrival:      clockAfter(date, e.ActualArrival, scheduled, p.loc),
			Status:             providers.ParseRemark(e.Remark),
			Source:             models.SourceAirportBoard,
			FetchedAt:          payload.FetchedAt,
		})
	}

	return providers.KeepValid(p.logger, p.Name(), records)
}

func flightNumber(airline, raw string) string {
	n := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if n == "" {
		return ""
	}
	if airline != "" && !strings.HasPrefix(n, airline) {
		n = airline + n
	}
	return n
}

func clockAfter(date models.Date, clock string, scheduled time.Time, loc *time.Location) *time.Time {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return nil
	}
	t, err := date.At(clock, loc)
	if err != nil {
		return nil
	}
	if scheduled.Sub(t) > 12*time.Hour {
		t = t.AddDate(0, 0, 1)
	}
	return &t
}
