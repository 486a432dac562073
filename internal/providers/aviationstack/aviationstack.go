// Package aviationstack fetches flights from the AviationStack REST API.
package aviationstack

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
	defaultBaseURL  = "http://api.aviationstack.com/v1"
	defaultPriority = 3
)

// statusMapping translates AviationStack flight_status values
var statusMapping = map[string]models.Status{
	"scheduled": models.StatusOnTime,
	"active":    models.StatusDeparted,
	"landed":    models.StatusArrived,
	"cancelled": models.StatusCancelled,
	"incident":  models.StatusDelayed,
	"diverted":  models.StatusDelayed,
}

// quotaCodes are in-body error codes that end the round for this provider
var quotaCodes = map[string]bool{
	"usage_limit_reached":        true,
	"invalid_access_key":         true,
	"missing_access_key":         true,
	"inactive_user":              true,
	"function_access_restricted": true,
	"https_access_restricted":    true,
}

// Option configures the Provider
type Option func(*Provider)

// WithBaseURL overrides the API endpoint (useful for testing)
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

// WithClock overrides the fetched_at time source
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the logger for payload and validation warnings
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider queries the /flights endpoint. The access key is sent with every
// request but never becomes part of the request params, so it does not leak
// into cache keys.
type Provider struct {
	baseURL    string
	accessKey  string
	priority   int
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// New creates an AviationStack provider
func New(accessKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		accessKey:  accessKey,
		priority:   defaultPriority,
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
func (p *Provider) Name() string { return string(models.SourceAviationStack) }
// Priority returns the merge rank; lower wins
func (p *Provider) Priority() int { return p.priority }

// response mirrors the JSON returned by /flights
type response struct {
	Data  []flight  `json:"data"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type flight struct {
	FlightDate   string   `json:"flight_date"`
	FlightStatus string   `json:"flight_status"`
	Departure    endpoint `json:"departure"`
	Arrival      endpoint `json:"arrival"`
	Airline      struct {
		IATA string `json:"iata"`
	} `json:"airline"`
	Flight struct {
		IATA string `json:"iata"`
	} `json:"flight"`
	Aircraft *struct {
		IATA string `json:"iata"`
	} `json:"aircraft"`
}

type endpoint struct {
	IATA      string `json:"iata"`
	Scheduled string `json:"scheduled"`
	Actual    string `json:"actual"`
}

// Fetch queries flights for date. params may narrow the query with dep_iata,
// arr_iata or airline_iata.
func (p *Provider) Fetch(ctx context.Context, date models.Date, params models.Params) (providers.RawPayload, error) {
	if p.accessKey == "" {
		return providers.RawPayload{}, &retry.QuotaExceededError{Reason: "access key not configured"}
	}

	query := providers.Query(params)
	query.Set("flight_date", date.String())
	query.Set("access_key", p.accessKey)

	body, err := providers.Get(ctx, p.httpClient, p.baseURL+"/flights", query, nil)
	if err != nil {
		return providers.RawPayload{}, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.RawPayload{}, retry.Transient(fmt.Errorf("parsing response: %w", err))
	}

	if resp.Error != nil {
		return providers.RawPayload{}, classifyAPIError(resp.Error)
	}
	if resp.Data == nil {
		return providers.RawPayload{}, retry.Transient(fmt.Errorf("response has no data field"))
	}

	return providers.RawPayload{Body: body, FetchedAt: p.now()}, nil
}

func classifyAPIError(e *apiError) error {
	err := fmt.Errorf("api error %s: %s", e.Code, e.Message)
	switch {
	case quotaCodes[e.Code]:
		return &retry.QuotaExceededError{Reason: e.Code, Err: err}
	case e.Code == "rate_limit_reached":
		return &retry.RateLimitError{Err: err}
	default:
		return retry.Transient(err)
	}
}

// Normalize converts a /flights body into canonical records
func (p *Provider) Normalize(payload providers.RawPayload) []models.FlightRecord {
	var resp response
	if err := json.Unmarshal(payload.Body, &resp); err != nil {
		p.logger.Warn("Discarding unreadable AviationStack payload", "error", err)
		return nil
	}

	records := make([]models.FlightRecord, 0, len(resp.Data))
	for _, f := range resp.Data {
		scheduledDep, ok := parseTime(f.Departure.Scheduled)
		if !ok {
			continue
		}

		status, known := statusMapping[strings.ToLower(f.FlightStatus)]
		if !known {
			status = models.StatusOnTime
		}

		rec := models.FlightRecord{
			FlightNumber:       strings.ToUpper(strings.TrimSpace(f.Flight.IATA)),
			AirlineID:          strings.ToUpper(strings.TrimSpace(f.Airline.IATA)),
			DepartureAirport:   strings.ToUpper(f.Departure.IATA),
			ArrivalAirport:     strings.ToUpper(f.Arrival.IATA),
			ScheduledDeparture: scheduledDep,
			ScheduledArrival:   optionalTime(f.Arrival.Scheduled),
			ActualDeparture:    optionalTime(f.Departure.Actual),
			ActualArrival:      optionalTime(f.Arrival.Actual),
			Status:             status,
			Source:             models.SourceAviationStack,
			FetchedAt:          payload.FetchedAt,
		}
		if f.Aircraft != nil {
			rec.AircraftType = f.Aircraft.IATA
		}
		records = append(records, rec)
	}

	return providers.KeepValid(p.logger, p.Name(), records)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func optionalTime(s string) *time.Time {
	t, ok := parseTime(s)
	if !ok {
		return nil
	}
	return &t
}
