// Package dailyair reads the regional carrier's published timetable.
package dailyair

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
	defaultBaseURL     = "https://www.dailyair.com.tw"
	defaultBookingLink = "https://www.dailyair.com.tw/Page/Booking"
	schedulePath       = "/api/flight/schedule"
	airlineID          = "DA"
	aircraftType       = "DHC6"
	defaultPriority    = 1
)

var requestHeaders = map[string]string{
	"User-Agent":       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Accept-Language":  "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7",
	"X-Requested-With": "XMLHttpRequest",
}

// Option configures the Provider
type Option func(*Provider)

// WithBaseURL overrides the carrier endpoint
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// WithPriority overrides the merge rank
func WithPriority(priority int) Option {
	return func(p *Provider) { p.priority = priority }
}

// WithLocation sets the carrier's time zone
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

// Provider fetches the carrier's daily timetable
type Provider struct {
	baseURL    string
	priority   int
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a timetable provider
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		priority:   defaultPriority,
		loc:        providers.TaipeiLocation(),
		httpClient: providers.NewHTTPClient(30 * time.Second),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the source tag stamped on every record
func (p *Provider) Name() string { return string(models.SourceDailyAir) }
// Priority returns the merge rank; lower wins
func (p *Provider) Priority() int { return p.priority }

// schedule is the timetable document served by the carrier
type schedule struct {
	Date    string `json:"date"`
	Flights []row  `json:"flights"`
}

type row struct {
	FlightNo           string   `json:"flight_no"`
	Departure          string   `json:"departure"`
	Arrival            string   `json:"arrival"`
	ScheduledDeparture string   `json:"scheduled_departure_time"` // HH:MM local
	ScheduledArrival   string   `json:"scheduled_arrival_time"`   // HH:MM local
	Status             string   `json:"status"`
	Price              *float64 `json:"price"`
}

// Fetch downloads the timetable for date. params may carry origin and
// destination to narrow the request.
func (p *Provider) Fetch(ctx context.Context, date models.Date, params models.Params) (providers.RawPayload, error) {
	query := providers.Query(params)
	query.Set("date", date.String())

	body, err := providers.Get(ctx, p.httpClient, p.baseURL+schedulePath, query, requestHeaders)
	if err != nil {
		return providers.RawPayload{}, err
	}

	var doc schedule
	if err := json.Unmarshal(body, &doc); err != nil {
		// The site serves an HTML maintenance page during outages
		return providers.RawPayload{}, retry.Transient(fmt.Errorf("parsing timetable: %w", err))
	}
	if doc.Date == "" {
		// Older pages omit the date; pin it so normalization stays pure
		doc.Date = date.String()
		if body, err = json.Marshal(doc); err != nil {
			return providers.RawPayload{}, fmt.Errorf("failed to re-encode timetable: %w", err)
		}
	}

	return providers.RawPayload{Body: body, FetchedAt: p.now()}, nil
}

// Normalize converts timetable rows into canonical records
func (p *Provider) Normalize(payload providers.RawPayload) []models.FlightRecord {
	var doc schedule
	if err := json.Unmarshal(payload.Body, &doc); err != nil {
		p.logger.Warn("Discarding unreadable timetable payload", "provider", p.Name(), "error", err)
		return nil
	}

	date, err := models.ParseDate(doc.Date)
	if err != nil {
		p.logger.Warn("Timetable has no usable date", "provider", p.Name(), "error", err)
		return nil
	}

	records := make([]models.FlightRecord, 0, len(doc.Flights))
	for _, r := range doc.Flights {
		dep, err := date.At(strings.TrimSpace(r.ScheduledDeparture), p.loc)
		if err != nil {
			continue
		}

		var arrival *time.Time
		if arr, err := date.At(strings.TrimSpace(r.ScheduledArrival), p.loc); err == nil {
			// Arrival clock earlier than departure means the flight lands the next day
			if arr.Before(dep) {
				arr = arr.AddDate(0, 0, 1)
			}
			arrival = &arr
		}

		records = append(records, models.FlightRecord{
			FlightNumber:       strings.ToUpper(strings.TrimSpace(r.FlightNo)),
			AirlineID:          airlineID,
			DepartureAirport:   strings.ToUpper(strings.TrimSpace(r.Departure)),
			ArrivalAirport:     strings.ToUpper(strings.TrimSpace(r.Arrival)),
			ScheduledDeparture: dep,
			ScheduledArrival:   arrival,
			Status:             providers.ParseRemark(r.Status),
			AircraftType:       aircraftType,
			Price:              r.Price,
			BookingLink:        defaultBookingLink,
			Source:             models.SourceDailyAir,
			FetchedAt:          payload.FetchedAt,
		})
	}

	return providers.KeepValid(p.logger, p.Name(), records)
}
