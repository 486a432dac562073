package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"flightsync/internal/cache"
	"flightsync/internal/config"
	"flightsync/internal/database"
	"flightsync/internal/fallback"
	"flightsync/internal/models"
	"flightsync/internal/orchestrator"
	"flightsync/internal/providers"
	"flightsync/internal/providers/airportboard"
	"flightsync/internal/providers/aviationstack"
	"flightsync/internal/providers/dailyair"
	"flightsync/internal/publisher"
	"flightsync/internal/retry"
	"flightsync/internal/scheduler"
	"flightsync/internal/tasks"
)

// Daemon owns every long-lived resource and the scheduler driving them
type Daemon struct {
	ctx       context.Context
	cancel    context.CancelFunc
	scheduler *scheduler.Scheduler
	database  *database.DB
	closers   []io.Closer
	done      chan struct{}
	started   bool
}

// New wires the daemon from configuration. Nothing runs until Start or
// RunOnce.
func New(cfg *config.Config) (*Daemon, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	routes, err := loadRoutes(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	db, err := database.New(cfg.DBPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	d := &Daemon{
		ctx:       ctx,
		cancel:    cancel,
		scheduler: scheduler.New(ctx, slog.Default()),
		database:  db,
		done:      make(chan struct{}),
	}

	store, closer, err := newCacheStore(cfg, db)
	if err != nil {
		d.closeAll()
		return nil, err
	}
	if closer != nil {
		d.closers = append(d.closers, closer)
	}

	orch := orchestrator.New(
		orchestrator.WithCache(cache.New(store, cache.WithDefaultTTL(cfg.Cache.TTL))),
		orchestrator.WithRetry(retry.New(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay)),
		orchestrator.WithFallback(fallback.New(loc), routes),
	)

	var sink tasks.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		pub := publisher.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		d.closers = append(d.closers, pub)
		sink = pub
	}

	configs := buildProviders(cfg, loc, routes)
	if len(configs) == 0 {
		slog.Warn("No providers enabled, every round will use fallback data")
	}

	d.scheduler.AddTask(tasks.NewReconcileTask(orch, configs, db.Flights(), db.Rounds(), sink, tasks.ReconcileConfig{
		Interval:  cfg.Schedule.Interval,
		DaysAhead: cfg.Schedule.DaysAhead,
		Deadline:  cfg.Schedule.Deadline,
		Location:  loc,
	}))
	if cfg.Cache.Backend == "sqlite" {
		d.scheduler.AddTask(tasks.NewCachePurgeTask(db.CacheStore(), cfg.Schedule.CachePurgeInterval))
	}

	return d, nil
}

// Start launches the scheduler and returns immediately
func (d *Daemon) Start() error {
	slog.Info("Starting daemon")

	d.scheduler.Start()
	d.started = true

	go func() {
		<-d.ctx.Done()
		close(d.done)
	}()

	slog.Info("Daemon started successfully")
	return nil
}

// RunOnce runs every task a single time and releases all resources
func (d *Daemon) RunOnce() error {
	defer d.closeAll()
	defer d.cancel()
	return d.scheduler.RunOnce()
}

// Stop gracefully stops the daemon. It is safe to call without Start and
// after RunOnce.
func (d *Daemon) Stop() error {
	slog.Info("Stopping daemon")
	d.cancel()
	if d.started {
		<-d.done
		d.scheduler.Stop()
	}
	d.closeAll()

	slog.Info("Daemon stopped")
	return nil
}

func (d *Daemon) closeAll() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			slog.Error("Error closing resource", "error", err)
		}
	}
	d.closers = nil

	if d.database == nil {
		return
	}
	if err := d.database.Close(); err != nil {
		slog.Error("Error closing database", "error", err)
	}
	d.database = nil
}

func loadRoutes(cfg *config.Config) ([]models.Route, error) {
	if cfg.RoutesFile == "" {
		return cfg.Routes, nil
	}
	routes, err := fallback.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded route table", "path", cfg.RoutesFile, "routes", len(routes))
	return routes, nil
}

// newCacheStore builds the configured cache backend. The closer is nil when
// the backend holds nothing beyond the database.
func newCacheStore(cfg *config.Config, db *database.DB) (cache.Store, io.Closer, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil, nil
	case "sqlite":
		return db.CacheStore(), nil, nil
	case "redis":
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		return store, store, nil
	case "file":
		store, err := cache.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file cache: %w", err)
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// buildProviders turns the enabled provider sections into round
// configurations
func buildProviders(cfg *config.Config, loc *time.Location, routes []models.Route) []orchestrator.ProviderConfig {
	var configs []orchestrator.ProviderConfig

	if p := cfg.Providers.DailyAir; p.Enabled {
		opts := []dailyair.Option{
			dailyair.WithLocation(loc),
			dailyair.WithLogger(slog.Default()),
			dailyair.WithHTTPClient(providers.NewHTTPClient(p.Timeout)),
		}
		if p.BaseURL != "" {
			opts = append(opts, dailyair.WithBaseURL(p.BaseURL))
		}
		if p.Priority > 0 {
			opts = append(opts, dailyair.WithPriority(p.Priority))
		}
		configs = append(configs, orchestrator.ProviderConfig{
			Provider: dailyair.New(opts...),
			MaxCalls: p.MaxCalls,
			CacheTTL: cfg.Cache.TTL,
		})
	}

	if p := cfg.Providers.AirportBoard; p.Enabled {
		opts := []airportboard.Option{
			airportboard.WithLocation(loc),
			airportboard.WithLogger(slog.Default()),
			airportboard.WithHTTPClient(providers.NewHTTPClient(p.Timeout)),
		}
		if p.Priority > 0 {
			opts = append(opts, airportboard.WithPriority(p.Priority))
		}
		configs = append(configs, orchestrator.ProviderConfig{
			Provider: airportboard.New(p.BaseURL, opts...),
			Requests: boardRequests(p.Airports, routes),
			MaxCalls: p.MaxCalls,
			// boards change by the minute
			CacheTTL: 5 * time.Minute,
		})
	}

	if p := cfg.Providers.AviationStack; p.Enabled {
		opts := []aviationstack.Option{
			aviationstack.WithLogger(slog.Default()),
			aviationstack.WithHTTPClient(providers.NewHTTPClient(p.Timeout)),
		}
		if p.BaseURL != "" {
			opts = append(opts, aviationstack.WithBaseURL(p.BaseURL))
		}
		if p.Priority > 0 {
			opts = append(opts, aviationstack.WithPriority(p.Priority))
		}
		configs = append(configs, orchestrator.ProviderConfig{
			Provider: aviationstack.New(p.AccessKey, opts...),
			Requests: routeRequests(routes),
			MaxCalls: p.MaxCalls,
			CacheTTL: cfg.Cache.TTL,
		})
	}

	return configs
}

// boardRequests polls the configured airports, or every airport on the
// route table when none are configured
func boardRequests(airports []string, routes []models.Route) []models.Params {
	if len(airports) == 0 {
		seen := make(map[string]bool)
		for _, r := range routes {
			for _, code := range []string{r.Origin, r.Destination} {
				if !seen[code] {
					seen[code] = true
					airports = append(airports, code)
				}
			}
		}
		sort.Strings(airports)
	}

	requests := make([]models.Params, 0, len(airports))
	for _, a := range airports {
		requests = append(requests, models.Params{"airport": a})
	}
	return requests
}

// routeRequests makes one API query per route, in route table order so the
// call budget covers the most important routes first
func routeRequests(routes []models.Route) []models.Params {
	requests := make([]models.Params, 0, len(routes))
	for _, r := range routes {
		requests = append(requests, models.Params{
			"dep_iata":     r.Origin,
			"arr_iata":     r.Destination,
			"airline_iata": r.Airline,
		})
	}
	return requests
}
