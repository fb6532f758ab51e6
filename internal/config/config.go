// Package config loads the service configuration file. Every component
// gets an explicit, statically-typed config validated once here; no
// settings are resolved dynamically at run time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/chunk"
	"github.com/murkotick/marketplace-sync-service/internal/pkg/pool"
)

// Endpoint describes one platform API endpoint.
type Endpoint struct {
	Platform            string            `yaml:"platform"`
	BaseURL             string            `yaml:"base_url"`
	Token               string            `yaml:"token"`
	RateLimit           float64           `yaml:"rate_limit"`
	RateBurst           int               `yaml:"rate_burst"`
	CodeFilterKey       string            `yaml:"code_filter_key"`
	AttributeFilterKeys map[string]string `yaml:"attribute_filter_keys"`
}

// Sync configures one entity-kind synchronization between a source and
// a target endpoint.
type Sync struct {
	Kind        string            `yaml:"kind"`
	Source      Endpoint          `yaml:"source"`
	Target      Endpoint          `yaml:"target"`
	AttributeID string            `yaml:"attribute_id"`
	Statuses    map[string]string `yaml:"statuses"`
}

// Pool mirrors the request pool's limits.
type Pool struct {
	Concurrency int `yaml:"concurrency"`
	RateAmount  int `yaml:"rate_amount"`
	RateWindowS int `yaml:"rate_window_seconds"`
}

// Batch bounds filter-query batching and paging.
type Batch struct {
	MaxBytes        int `yaml:"max_bytes"`
	PerItemOverhead int `yaml:"per_item_overhead"`
	MaxCount        int `yaml:"max_count"`
	PageLimit       int `yaml:"page_limit"`
}

// Config is the root of the service configuration file.
type Config struct {
	SpannerDatabase string `yaml:"spanner_database"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Pool            Pool   `yaml:"pool"`
	Batch           Batch  `yaml:"batch"`
	Syncs           []Sync `yaml:"syncs"`
}

// Interval returns the run interval, defaulting to five minutes.
func (c *Config) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole tree; configuration errors are fatal at
// load time, never deferred to run time.
func (c *Config) Validate() error {
	if c.SpannerDatabase == "" {
		return fmt.Errorf("config: spanner_database is required")
	}
	if len(c.Syncs) == 0 {
		return fmt.Errorf("config: at least one sync must be configured")
	}
	if err := c.PoolConfig().Validate(); err != nil {
		return err
	}
	if err := c.ChunkLimits().Validate(); err != nil {
		return err
	}
	for i, s := range c.Syncs {
		switch domain.Kind(s.Kind) {
		case domain.KindOrder, domain.KindStock, domain.KindPrice:
		default:
			return fmt.Errorf("config: syncs[%d]: unknown kind %q", i, s.Kind)
		}
		if s.Source.BaseURL == "" || s.Target.BaseURL == "" {
			return fmt.Errorf("config: syncs[%d]: source and target base_url are required", i)
		}
	}
	return nil
}

// PoolConfig converts the pool section. Zero concurrency means
// unlimited, matching the pool's own contract.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		Concurrency: c.Pool.Concurrency,
		Rate: pool.RateConfig{
			Amount:        c.Pool.RateAmount,
			WindowSeconds: c.Pool.RateWindowS,
		},
	}
}

// ChunkLimits converts the batch section with the defaults the common
// marketplace APIs tolerate.
func (c *Config) ChunkLimits() chunk.Limits {
	lim := chunk.Limits{
		MaxBytes:        c.Batch.MaxBytes,
		PerItemOverhead: c.Batch.PerItemOverhead,
		MaxCount:        c.Batch.MaxCount,
	}
	if lim.MaxBytes == 0 {
		lim.MaxBytes = 6000
	}
	return lim
}
