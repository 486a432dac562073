package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"flightsync/internal/models"
)

// Config holds all configuration for the daemon
type Config struct {
	DBPath     string
	Log        LogConfig
	Schedule   ScheduleConfig
	Retry      RetryConfig
	Cache      CacheConfig
	Providers  ProvidersConfig
	Routes     []models.Route
	RoutesFile string
	Kafka      KafkaConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// ScheduleConfig controls when rounds run and for which dates
type ScheduleConfig struct {
	Interval           time.Duration
	DaysAhead          int
	Deadline           time.Duration // budget for one reconciliation round
	Timezone           string
	CachePurgeInterval time.Duration
}

// RetryConfig holds the retry policy for outbound requests
type RetryConfig struct {
	MaxRetries int // total attempts per request
	BaseDelay  time.Duration
}

// CacheConfig selects and configures the request cache backend
type CacheConfig struct {
	Backend string // file, sqlite, redis or memory
	Dir     string
	TTL     time.Duration
	Redis   RedisConfig
}

// RedisConfig holds connection settings for the redis cache backend
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderConfig is the per-source section under providers.<name>
type ProviderConfig struct {
	Enabled   bool
	BaseURL   string
	Priority  int
	Timeout   time.Duration
	AccessKey string
	MaxCalls  int
	Airports  []string // airport boards to poll
}

// ProvidersConfig holds one section per supported provider
type ProvidersConfig struct {
	DailyAir      ProviderConfig
	AirportBoard  ProviderConfig
	AviationStack ProviderConfig
}

// KafkaConfig enables publishing when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

var validCacheBackends = map[string]bool{
	"file":   true,
	"sqlite": true,
	"redis":  true,
	"memory": true,
}

// Load loads configuration from config file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/flightsync")
	v.AddConfigPath(".")

	if configPath := os.Getenv("FLIGHTSYNC_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	}

	// A missing config file is fine: defaults and env vars still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FLIGHTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "flightsync.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("schedule.interval", "1h")
	v.SetDefault("schedule.days_ahead", 2)
	v.SetDefault("schedule.deadline", "2m")
	v.SetDefault("schedule.timezone", "Asia/Taipei")
	v.SetDefault("schedule.cache_purge_interval", "6h")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", "2s")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("providers.daily_air.enabled", true)
	v.SetDefault("providers.daily_air.base_url", "https://www.dailyair.com.tw")
	v.SetDefault("providers.daily_air.priority", 1)
	v.SetDefault("providers.daily_air.timeout", "30s")

	v.SetDefault("providers.airport_board.enabled", false)
	v.SetDefault("providers.airport_board.priority", 2)
	v.SetDefault("providers.airport_board.timeout", "20s")

	v.SetDefault("providers.aviation_stack.enabled", false)
	v.SetDefault("providers.aviation_stack.base_url", "http://api.aviationstack.com/v1")
	v.SetDefault("providers.aviation_stack.priority", 3)
	v.SetDefault("providers.aviation_stack.timeout", "30s")
	v.SetDefault("providers.aviation_stack.max_calls", 20)

	v.SetDefault("routes", []map[string]any{
		{"origin": "TTT", "destination": "KYD", "airline": "DA", "block_minutes": 30},
		{"origin": "KYD", "destination": "TTT", "airline": "DA", "block_minutes": 30},
		{"origin": "TTT", "destination": "GNI", "airline": "DA", "block_minutes": 15},
		{"origin": "GNI", "destination": "TTT", "airline": "DA", "block_minutes": 15},
		{"origin": "KHH", "destination": "CMJ", "airline": "DA", "block_minutes": 35},
		{"origin": "CMJ", "destination": "KHH", "airline": "DA", "block_minutes": 35},
	})

	v.SetDefault("kafka.topic", "flights.reconciled")
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBPath: v.GetString("db_path"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Schedule: ScheduleConfig{
			Interval:           v.GetDuration("schedule.interval"),
			DaysAhead:          v.GetInt("schedule.days_ahead"),
			Deadline:           v.GetDuration("schedule.deadline"),
			Timezone:           v.GetString("schedule.timezone"),
			CachePurgeInterval: v.GetDuration("schedule.cache_purge_interval"),
		},
		Retry: RetryConfig{
			MaxRetries: v.GetInt("retry.max_retries"),
			BaseDelay:  v.GetDuration("retry.base_delay"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(v.GetString("cache.backend")),
			Dir:     v.GetString("cache.dir"),
			TTL:     v.GetDuration("cache.ttl"),
			Redis: RedisConfig{
				Addr:     v.GetString("cache.redis.addr"),
				Password: v.GetString("cache.redis.password"),
				DB:       v.GetInt("cache.redis.db"),
			},
		},
		Providers: ProvidersConfig{
			DailyAir:      providerConfig(v, "daily_air"),
			AirportBoard:  providerConfig(v, "airport_board"),
			AviationStack: providerConfig(v, "aviation_stack"),
		},
		RoutesFile: v.GetString("routes_file"),
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
	}

	if err := v.UnmarshalKey("routes", &cfg.Routes); err != nil {
		return nil, fmt.Errorf("error decoding routes: %w", err)
	}
	for i := range cfg.Routes {
		cfg.Routes[i].Origin = strings.ToUpper(cfg.Routes[i].Origin)
		cfg.Routes[i].Destination = strings.ToUpper(cfg.Routes[i].Destination)
		cfg.Routes[i].Airline = strings.ToUpper(cfg.Routes[i].Airline)
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, name string) ProviderConfig {
	prefix := "providers." + name + "."
	return ProviderConfig{
		Enabled:   v.GetBool(prefix + "enabled"),
		BaseURL:   v.GetString(prefix + "base_url"),
		Priority:  v.GetInt(prefix + "priority"),
		Timeout:   v.GetDuration(prefix + "timeout"),
		AccessKey: v.GetString(prefix + "access_key"),
		MaxCalls:  v.GetInt(prefix + "max_calls"),
		Airports:  v.GetStringSlice(prefix + "airports"),
	}
}

// validate validates the configuration values
func validate(cfg *Config) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be greater than 0")
	}
	if cfg.Schedule.Deadline <= 0 {
		return fmt.Errorf("schedule.deadline must be greater than 0")
	}
	if cfg.Schedule.DaysAhead < 0 {
		return fmt.Errorf("schedule.days_ahead must not be negative")
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", cfg.Schedule.Timezone, err)
	}

	if cfg.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be greater than 0")
	}
	if cfg.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be greater than 0")
	}

	if !validCacheBackends[cfg.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %s (must be file, sqlite, redis, or memory)", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than 0")
	}
	if cfg.Cache.Backend == "file" && cfg.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required for the file backend")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis backend")
	}

	if cfg.Providers.AviationStack.Enabled && cfg.Providers.AviationStack.AccessKey == "" {
		return fmt.Errorf("providers.aviation_stack.access_key is required when the provider is enabled")
	}
	if cfg.Providers.AirportBoard.Enabled && cfg.Providers.AirportBoard.BaseURL == "" {
		return fmt.Errorf("providers.airport_board.base_url is required when the provider is enabled")
	}

	// routes_file replaces the inline table and is checked when loaded
	if cfg.RoutesFile == "" && len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	for i, r := range cfg.Routes {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}

	return nil
}
