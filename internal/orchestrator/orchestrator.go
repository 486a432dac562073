// Package orchestrator runs one reconciliation round: it fetches every
// configured provider concurrently, merges the results and falls back to
// synthetic data when no provider produced anything.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flightsync/internal/cache"
	"flightsync/internal/fallback"
	"flightsync/internal/models"
	"flightsync/internal/providers"
	"flightsync/internal/reconcile"
	"flightsync/internal/retry"
)

// Outcome classifies how a round went
type Outcome string

const (
	OutcomeComplete Outcome = "complete" // every provider succeeded
	OutcomePartial  Outcome = "partial"  // some providers failed, real data was returned
	OutcomeTotal    Outcome = "total"    // no real data, fallback output only
)

var (
	// ErrNoFallbackData is recorded under the fallback source when a round
	// has no real records and the generator produced none either
	ErrNoFallbackData = errors.New("no fallback data available")

	// ErrNilProvider is recorded for a ProviderConfig without a provider
	ErrNilProvider = errors.New("provider config has no provider")
)

// ProviderConfig is one provider plus the requests to make against it this
// round. Requests run sequentially in the provider's worker.
type ProviderConfig struct {
	Provider providers.Provider
	Requests []models.Params // nil means a single request with no params
	MaxCalls int             // upper bound on Requests per round; 0 is unlimited
	CacheTTL time.Duration   // 0 uses the cache default
}

// Result is everything a round produced
type Result struct {
	RoundID      string
	Date         models.Date
	Records      []models.FlightRecord
	Errors       map[string]error // providers that produced nothing, plus the fallback source when it came back empty
	Counts       map[string]int   // normalized records per provider before merging
	Outcome      Outcome
	FallbackUsed bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCache sets the read-through request cache. Without one every request
// goes to the provider.
func WithCache(c *cache.RequestCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithRetry replaces the default retry controller
func WithRetry(c *retry.Controller) Option {
	return func(o *Orchestrator) { o.retry = c }
}

// WithFallback sets the generator and route table used when a round comes
// back empty
func WithFallback(g *fallback.Generator, routes []models.Route) Option {
	return func(o *Orchestrator) {
		o.fallback = g
		o.routes = routes
	}
}

// WithLogger sets the logger for round and provider events
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source for round timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRoundIDs overrides round ID generation
func WithRoundIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newID = next }
}

// Orchestrator holds the collaborators shared by every round. Providers are
// passed per call.
type Orchestrator struct {
	cache    *cache.RequestCache
	retry    *retry.Controller
	fallback *fallback.Generator
	routes   []models.Route
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates an orchestrator with the default retry policy, no cache and
// no fallback unless options say otherwise
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retry:  retry.New(retry.DefaultMaxRetries, retry.DefaultBaseDelay),
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reconcile returns the canonical records for date and the providers that
// failed entirely. It never returns an overall error.
func (o *Orchestrator) Reconcile(ctx context.Context, date models.Date, configs []ProviderConfig, deadline time.Duration) ([]models.FlightRecord, map[string]error) {
	result := o.Run(ctx, date, configs, deadline)
	return result.Records, result.Errors
}

// providerResult is what one worker hands back
type providerResult struct {
	name        string
	priority    int
	hasPriority bool
	records     []models.FlightRecord
	succeeded   int
	err         error
}

// Run executes a full round. deadline <= 0 means the round is bounded only
// by ctx.
func (o *Orchestrator) Run(ctx context.Context, date models.Date, configs []ProviderConfig, deadline time.Duration) *Result {
	result := &Result{
		RoundID:   o.newID(),
		Date:      date,
		Errors:    make(map[string]error),
		Counts:    make(map[string]int),
		StartedAt: o.now(),
	}
	logger := o.logger.With("round_id", result.RoundID, "date", date.String())

	roundCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		roundCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	logger.Info("Starting reconciliation round", "providers", len(configs), "deadline", deadline)

	results := make([]providerResult, len(configs))
	var wg sync.WaitGroup
	for i, cfg := range configs {
		wg.Add(1)
		go func(i int, cfg ProviderConfig) {
			defer wg.Done()
			results[i] = o.runProvider(roundCtx, logger, date, fmt.Sprintf("provider[%d]", i), cfg)
		}(i, cfg)
	}
	wg.Wait()

	priorities := make(map[models.Source]int, len(configs))
	var all []models.FlightRecord
	for _, r := range results {
		all = append(all, r.records...)
		result.Counts[r.name] += len(r.records)
		if r.succeeded == 0 && r.err != nil {
			result.Errors[r.name] = r.err
		}
	}
	for _, r := range results {
		if r.hasPriority {
			priorities[models.Source(r.name)] = r.priority
		}
	}

	switch {
	case len(all) == 0:
		result.Outcome = OutcomeTotal
		var err error
		all, err = o.generateFallback(logger, date)
		if err != nil {
			result.Errors[string(models.SourceFallback)] = err
		}
		result.FallbackUsed = len(all) > 0
		result.Counts[string(models.SourceFallback)] = len(all)
	case len(result.Errors) > 0:
		result.Outcome = OutcomePartial
	default:
		result.Outcome = OutcomeComplete
	}

	result.Records = reconcile.New(priorities).Reconcile(all)
	result.FinishedAt = o.now()

	logger.Info("Reconciliation round finished",
		"outcome", result.Outcome,
		"records", len(result.Records),
		"failed_providers", len(result.Errors),
		"fallback", result.FallbackUsed,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result
}

func (o *Orchestrator) generateFallback(logger *slog.Logger, date models.Date) ([]models.FlightRecord, error) {
	if o.fallback == nil {
		logger.Error("All providers failed and no fallback generator is configured")
		return nil, fmt.Errorf("%w: no generator configured", ErrNoFallbackData)
	}

	records := o.fallback.Generate(date, o.routes)
	if len(records) == 0 {
		logger.Error("All providers failed and the fallback route table produced no flights", "routes", len(o.routes))
		return nil, fmt.Errorf("%w: route table produced no flights (%d routes)", ErrNoFallbackData, len(o.routes))
	}
	logger.Warn("All providers failed, serving fallback data", "records", len(records))
	return records, nil
}

// runProvider executes one provider's requests in order. A quota error stops
// the remaining requests; any other failure only loses that request.
// placeholder names the result when the provider cannot name itself.
func (o *Orchestrator) runProvider(ctx context.Context, logger *slog.Logger, date models.Date, placeholder string, cfg ProviderConfig) (res providerResult) {
	res.name = placeholder
	roundLogger := logger
	defer func() {
		if p := recover(); p != nil {
			roundLogger.Error("Provider panicked", "provider", res.name, "panic", p)
			res.err = fmt.Errorf("provider %s panicked: %v", res.name, p)
		}
	}()

	if cfg.Provider == nil {
		logger.Error("Skipping provider config without a provider", "provider", placeholder)
		res.err = ErrNilProvider
		return res
	}

	name := cfg.Provider.Name()
	res.name = name
	res.priority, res.hasPriority = cfg.Provider.Priority(), true
	logger = logger.With("provider", name)

	requests := cfg.Requests
	if len(requests) == 0 {
		requests = []models.Params{nil}
	}
	if cfg.MaxCalls > 0 && len(requests) > cfg.MaxCalls {
		logger.Warn("Request list exceeds call budget, truncating", "requests", len(requests), "max_calls", cfg.MaxCalls)
		requests = requests[:cfg.MaxCalls]
	}

	for _, params := range requests {
		if err := ctx.Err(); err != nil {
			if res.err == nil {
				res.err = fmt.Errorf("%s: %w", name, err)
			}
			break
		}

		payload, err := o.fetch(ctx, logger, date, cfg, params)
		if err != nil {
			res.err = err
			if retry.IsQuotaExceeded(err) {
				logger.Warn("Skipping remaining requests for this round", "error", err)
				break
			}
			logger.Error("Provider request failed", "params", params, "error", err)
			continue
		}

		res.succeeded++
		res.records = append(res.records, cfg.Provider.Normalize(payload)...)
	}

	logger.Info("Provider finished", "requests", len(requests), "succeeded", res.succeeded, "records", len(res.records))
	return res
}

// fetch serves a request from the cache or the provider, caching fresh
// responses
func (o *Orchestrator) fetch(ctx context.Context, logger *slog.Logger, date models.Date, cfg ProviderConfig, params models.Params) (providers.RawPayload, error) {
	name := cfg.Provider.Name()
	if err := params.Validate(); err != nil {
		return providers.RawPayload{}, fmt.Errorf("invalid request params: %w", err)
	}

	keyParams := params.Clone()
	keyParams["date"] = date.String()

	if blob, hit, _ := o.cache.Get(ctx, name, keyParams); hit {
		var payload providers.RawPayload
		if err := json.Unmarshal(blob, &payload); err == nil {
			logger.Debug("Serving provider response from cache", "params", params)
			return payload, nil
		}
		logger.Warn("Discarding unreadable cached payload", "params", params)
	}

	var payload providers.RawPayload
	err := o.retry.Do(ctx, name, func(ctx context.Context) error {
		var err error
		payload, err = cfg.Provider.Fetch(ctx, date, params)
		return err
	})
	if err != nil {
		return providers.RawPayload{}, err
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("Failed to encode payload for cache", "error", err)
		return payload, nil
	}
	// cache failures are logged by the cache and never fail the request
	_ = o.cache.Put(ctx, name, keyParams, blob, cfg.CacheTTL)
	return payload, nil
}
