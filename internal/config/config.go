package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "tally.yml"

// Environment overrides applied after the file is parsed.
const (
	EnvRedisURL = "TALLY_REDIS_URL"
	EnvInstance = "TALLY_INSTANCE"
)

// TallyConfig represents the top-level tally.yml configuration
type TallyConfig struct {
	Version     string            `yaml:"version"`
	Instance    string            `yaml:"instance,omitempty"`  // Tags log events and scopes the default ledger namespace
	Templates   string            `yaml:"templates,omitempty"` // Directory whose templates shadow the built-in ones
	Ledger      LedgerConfig      `yaml:"ledger"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Hosting     HostingConfig     `yaml:"hosting"`
	Polling     PollingConfig     `yaml:"polling"`
	Resolver    ResolverConfig    `yaml:"resolver"`
}

// LedgerConfig selects where jobs are recorded
type LedgerConfig struct {
	Backend         string `yaml:"backend,omitempty"` // redis, sqlite or postgres (default sqlite)
	RedisURL        string `yaml:"redis_url,omitempty"`
	Namespace       string `yaml:"namespace,omitempty"` // Default: <instance>-sandbox or <instance>-live
	SQLitePath      string `yaml:"sqlite_path,omitempty"`
	PostgresDSN     string `yaml:"postgres_dsn,omitempty"`
	RetainCompleted *bool  `yaml:"retain_completed,omitempty"` // Keep jobs after completion (default true)
}

// MarketplaceConfig specifies how tasks are posted
type MarketplaceConfig struct {
	Sandbox  *bool  `yaml:"sandbox,omitempty"`  // Default true
	Endpoint string `yaml:"endpoint,omitempty"` // Override the requester API endpoint
	USOnly   bool   `yaml:"us_only,omitempty"`
}

// HostingConfig specifies where task pages are uploaded
type HostingConfig struct {
	Backend    string   `yaml:"backend,omitempty"` // s3, gcs or file (default s3)
	Bucket     string   `yaml:"bucket,omitempty"`
	Region     string   `yaml:"region,omitempty"`
	Endpoint   string   `yaml:"endpoint,omitempty"`
	Prefix     string   `yaml:"prefix,omitempty"`
	Dir        string   `yaml:"dir,omitempty"`      // file backend only
	BaseURL    string   `yaml:"base_url,omitempty"` // file backend only
	ExtraFiles []string `yaml:"extra_files,omitempty"`
}

// PollingConfig controls how completion is checked
type PollingConfig struct {
	Interval    time.Duration `yaml:"interval,omitempty"`    // Default 60s
	Timeout     time.Duration `yaml:"timeout,omitempty"`     // 0 waits forever
	Concurrency int           `yaml:"concurrency,omitempty"` // Default 4
	RateLimit   float64       `yaml:"rate_limit,omitempty"`  // Marketplace calls per second, 0 = unlimited
	RateBurst   int           `yaml:"rate_burst,omitempty"`  // Default 1
}

// ResolverConfig specifies blocking thresholds and the task listing
type ResolverConfig struct {
	ComparisonsPerTask   int           `yaml:"comparisons_per_task,omitempty"`  // Default 5
	JaccardThreshold     *float64      `yaml:"jaccard_threshold,omitempty"`     // Default 0.30
	LevenshteinThreshold *float64      `yaml:"levenshtein_threshold,omitempty"` // Default 0.50
	Title                string        `yaml:"title,omitempty"`
	Keywords             []string      `yaml:"keywords,omitempty"`
	Duration             time.Duration `yaml:"duration,omitempty"`
	Reward               string        `yaml:"reward,omitempty"`
	MaxAssignments       int           `yaml:"max_assignments,omitempty"`
	ResetGeneration      *int          `yaml:"reset_generation,omitempty"` // Tag created jobs for reconciliation
}

// IsSandbox reports whether tasks go to the sandbox marketplace.
func (c *TallyConfig) IsSandbox() bool {
	return c.Marketplace.Sandbox == nil || *c.Marketplace.Sandbox
}

// Validate performs strict validation and applies defaults
func (c *TallyConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = "default"
	}

	if err := c.Ledger.validate(c.Instance, c.IsSandbox()); err != nil {
		return err
	}
	if err := c.Hosting.validate(); err != nil {
		return err
	}
	if err := c.Polling.validate(); err != nil {
		return err
	}
	if err := c.Resolver.validate(); err != nil {
		return err
	}

	if c.Templates != "" {
		if info, err := os.Stat(c.Templates); err != nil || !info.IsDir() {
			return fmt.Errorf("templates directory does not exist: %s", c.Templates)
		}
	}

	return nil
}

func (l *LedgerConfig) validate(instance string, sandbox bool) error {
	if l.Namespace == "" {
		mode := "live"
		if sandbox {
			mode = "sandbox"
		}
		l.Namespace = instance + "-" + mode
	}
	if l.RetainCompleted == nil {
		retain := true
		l.RetainCompleted = &retain
	}

	switch l.Backend {
	case "":
		l.Backend = "sqlite"
		fallthrough
	case "sqlite":
		if l.SQLitePath == "" {
			l.SQLitePath = filepath.Join("~", ".tally", l.Namespace+".db")
		}
	case "redis":
		if l.RedisURL == "" {
			l.RedisURL = "redis://localhost:6379"
		}
	case "postgres":
		if l.PostgresDSN == "" {
			return fmt.Errorf("ledger.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid ledger.backend: %s (must be 'redis', 'sqlite', or 'postgres')", l.Backend)
	}
	return nil
}

func (h *HostingConfig) validate() error {
	switch h.Backend {
	case "":
		h.Backend = "s3"
		fallthrough
	case "s3", "gcs":
		if h.Bucket == "" {
			return fmt.Errorf("hosting.bucket is required for the %s backend", h.Backend)
		}
	case "file":
		if h.Dir == "" {
			return fmt.Errorf("hosting.dir is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid hosting.backend: %s (must be 's3', 'gcs', or 'file')", h.Backend)
	}

	for _, f := range h.ExtraFiles {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			return fmt.Errorf("hosting.extra_files: file does not exist: %s", f)
		}
	}
	return nil
}

func (p *PollingConfig) validate() error {
	if p.Interval == 0 {
		p.Interval = 60 * time.Second
	}
	if p.Interval < 0 {
		return fmt.Errorf("polling.interval must be positive, got %s", p.Interval)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("polling.timeout must be >= 0 (0 = wait forever), got %s", p.Timeout)
	}
	if p.Concurrency == 0 {
		p.Concurrency = 4
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("polling.concurrency must be >= 1, got %d", p.Concurrency)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("polling.rate_limit must be >= 0 (0 = unlimited), got %g", p.RateLimit)
	}
	if p.RateBurst == 0 {
		p.RateBurst = 1
	}
	return nil
}

func (r *ResolverConfig) validate() error {
	if r.ComparisonsPerTask == 0 {
		r.ComparisonsPerTask = 5
	}
	if r.ComparisonsPerTask < 1 {
		return fmt.Errorf("resolver.comparisons_per_task must be >= 1, got %d", r.ComparisonsPerTask)
	}
	if r.JaccardThreshold == nil {
		v := 0.30
		r.JaccardThreshold = &v
	}
	if r.LevenshteinThreshold == nil {
		v := 0.50
		r.LevenshteinThreshold = &v
	}
	if *r.JaccardThreshold < 0 || *r.JaccardThreshold > 1 {
		return fmt.Errorf("resolver.jaccard_threshold must be within [0, 1], got %g", *r.JaccardThreshold)
	}
	if *r.LevenshteinThreshold < 0 {
		return fmt.Errorf("resolver.levenshtein_threshold must be >= 0, got %g", *r.LevenshteinThreshold)
	}
	if r.MaxAssignments < 0 {
		return fmt.Errorf("resolver.max_assignments must be >= 1, got %d", r.MaxAssignments)
	}
	if r.Duration < 0 {
		return fmt.Errorf("resolver.duration must be positive, got %s", r.Duration)
	}
	return nil
}

// ApplyEnv overrides file settings from the environment.
func (c *TallyConfig) ApplyEnv() {
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Ledger.RedisURL = v
		if c.Ledger.Backend == "" {
			c.Ledger.Backend = "redis"
		}
	}
	if v := os.Getenv(EnvInstance); v != "" {
		c.Instance = v
	}
}

// Load reads and validates tally.yml from the specified path
func Load(path string) (*TallyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config TallyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
