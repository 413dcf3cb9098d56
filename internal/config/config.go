// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Layer file and environment values on top with Load.
// - Call Validate before handing values to the engine.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address for /healthz and /metrics.
	Addr string `koanf:"addr"`

	// Backend is one of auto, memory, sqlite, postgres.
	Backend string `koanf:"backend"`

	// DBDSN is the sqlite file path or the postgres connection string.
	DBDSN string `koanf:"db_dsn"`

	// DBMaxOpenConns and DBMaxIdleConns size the postgres pool.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`
	DBMaxIdleConns int `koanf:"db_max_idle_conns"`

	// Scope owns the topology edges this process reads and writes.
	Scope string `koanf:"scope"`

	// TimeWindowSeconds is how far back candidates are searched.
	TimeWindowSeconds int `koanf:"time_window_seconds"`

	// MatchThreshold is the minimum score for a match.
	MatchThreshold float64 `koanf:"match_threshold"`

	// TransitGraceFactor multiplies an edge transition time.
	TransitGraceFactor float64 `koanf:"transit_grace_factor"`

	// TopologyPolicy is permissive or strict for pairs without an edge.
	TopologyPolicy string `koanf:"topology_policy"`

	// WriteMode is sync or async.
	WriteMode string `koanf:"write_mode"`

	// WriteQueueSize bounds the async write queue.
	WriteQueueSize int `koanf:"write_queue_size"`

	// StoreTimeoutMS bounds each persistence call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// ActiveWindowMinutes counts a record as active in statistics.
	ActiveWindowMinutes int `koanf:"active_window_minutes"`

	// Retention sweeper.
	RetentionEnabled         bool `koanf:"retention_enabled"`
	RetentionIntervalSeconds int  `koanf:"retention_interval_seconds"`
	RetentionMaxAgeHours     int  `koanf:"retention_max_age_hours"`
	RetentionKeepLinked      bool `koanf:"retention_keep_linked"`
	RetentionHardDelete      bool `koanf:"retention_hard_delete"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		Backend:                  "auto",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		TimeWindowSeconds:        300,
		MatchThreshold:           0.6,
		TransitGraceFactor:       3.0,
		TopologyPolicy:           "permissive",
		WriteMode:                "sync",
		WriteQueueSize:           1024,
		StoreTimeoutMS:           5000,
		ActiveWindowMinutes:      30,
		RetentionIntervalSeconds: 3600,
		RetentionMaxAgeHours:     72,
		RetentionKeepLinked:      true,
	}
}

// TimeWindow returns the candidate window.
func (c *Config) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowSeconds) * time.Second
}

// StoreTimeout returns the persistence call bound.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// ActiveWindow returns the statistics recency window.
func (c *Config) ActiveWindow() time.Duration {
	return time.Duration(c.ActiveWindowMinutes) * time.Minute
}

// RetentionInterval returns the sweep period.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.RetentionIntervalSeconds) * time.Second
}

// RetentionMaxAge returns the age after which records are removed.
func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.RetentionMaxAgeHours) * time.Hour
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !oneOf(c.LogLevel, "debug", "info", "warn", "warning", "error"):
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	case !oneOf(c.LogFormat, "text", "json"):
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	case !oneOf(c.Backend, "auto", "memory", "sqlite", "postgres"):
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	case oneOf(c.Backend, "sqlite", "postgres") && strings.TrimSpace(c.DBDSN) == "":
		return fmt.Errorf("%w: backend %s needs db_dsn", ErrInvalidConfig, c.Backend)
	case c.TimeWindowSeconds <= 0:
		return fmt.Errorf("%w: time_window_seconds must be positive", ErrInvalidConfig)
	case c.MatchThreshold <= 0 || c.MatchThreshold > 1:
		return fmt.Errorf("%w: match_threshold must be in (0,1]", ErrInvalidConfig)
	case c.TransitGraceFactor <= 0:
		return fmt.Errorf("%w: transit_grace_factor must be positive", ErrInvalidConfig)
	case !oneOf(c.TopologyPolicy, "permissive", "strict"):
		return fmt.Errorf("%w: unknown topology_policy %q", ErrInvalidConfig, c.TopologyPolicy)
	case !oneOf(c.WriteMode, "sync", "async"):
		return fmt.Errorf("%w: unknown write_mode %q", ErrInvalidConfig, c.WriteMode)
	case c.WriteQueueSize <= 0:
		return fmt.Errorf("%w: write_queue_size must be positive", ErrInvalidConfig)
	case c.StoreTimeoutMS <= 0:
		return fmt.Errorf("%w: store_timeout_ms must be positive", ErrInvalidConfig)
	case c.ActiveWindowMinutes <= 0:
		return fmt.Errorf("%w: active_window_minutes must be positive", ErrInvalidConfig)
	case c.RetentionEnabled && c.RetentionIntervalSeconds <= 0:
		return fmt.Errorf("%w: retention_interval_seconds must be positive", ErrInvalidConfig)
	case c.RetentionEnabled && c.RetentionMaxAgeHours <= 0:
		return fmt.Errorf("%w: retention_max_age_hours must be positive", ErrInvalidConfig)
	}
	return nil
}
