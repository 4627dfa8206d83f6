package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of the gauntlet engine.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Difficulty DifficultyConfig `yaml:"difficulty"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	NATS       NATSConfig       `yaml:"nats"`
	Providers  []Provider       `yaml:"providers"`
	Agents     []AgentConfig    `yaml:"agents"`
	Responders ResponderConfig  `yaml:"responders"`
	Judge      JudgeConfig      `yaml:"judge"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Temporal   TemporalConfig   `yaml:"temporal"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig tunes the test pipeline.
type EngineConfig struct {
	// BudgetScale multiplies every scenario time budget before dispatch.
	BudgetScale        float64       `yaml:"budget_scale"`
	PersistenceRetries int           `yaml:"persistence_retries"`
	PersistenceBackoff time.Duration `yaml:"persistence_backoff"`
}

// DifficultyConfig holds the tier advancement rules.
type DifficultyConfig struct {
	XPPerTier      int     `yaml:"xp_per_tier"`
	SuccessWindow  int     `yaml:"success_window"`
	MinSuccessRate float64 `yaml:"min_success_rate"`
}

// EvaluationConfig controls evaluator retries and pass thresholds.
type EvaluationConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
}

// DatabaseConfig configures the learning state store
type DatabaseConfig struct {
	Type string `yaml:"type"` // "memory", "sqlite", "postgres"
	Path string `yaml:"path"` // For SQLite
	DSN  string `yaml:"dsn"`  // For Postgres
}

// CacheConfig configures the knowledge topic cache
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	MaxSize       int           `yaml:"max_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	RedisURL      string        `yaml:"redis_url"`
}

// NATSConfig configures result events and remote agent dispatch.
type NATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	StreamName     string        `yaml:"stream_name"`
	Timeout        time.Duration `yaml:"timeout"`
	ConsumerPrefix string        `yaml:"consumer_prefix"`
}

// Provider is an OpenAI-compatible chat endpoint.
type Provider struct {
	ID       string `yaml:"id"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// AgentConfig assigns an agent to a responder kind.
type AgentConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	// Provider is used by the "provider" kind.
	Provider string `yaml:"provider"`
}

// ResponderConfig selects how agents without an explicit kind are reached.
type ResponderConfig struct {
	DefaultKind     string `yaml:"default_kind"` // "provider", "nats" or "static"
	DefaultProvider string `yaml:"default_provider"`
	StaticReply     string `yaml:"static_reply"`
}

// JudgeConfig configures the model-backed evaluator.
type JudgeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// KnowledgeConfig lists static trend topics per category.
type KnowledgeConfig struct {
	Topics map[string][]string `yaml:"topics"`
	Watch  bool                `yaml:"watch"`
}

// TemporalConfig configures Temporal workflow engine
type TemporalConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	Host                     string        `yaml:"host"`
	Namespace                string        `yaml:"namespace"`
	TaskQueue                string        `yaml:"task_queue"`
	// WorkflowExecutionTimeout is the minimum campaign timeout; campaigns
	// whose worst case runs longer get their own bound.
	WorkflowExecutionTimeout time.Duration `yaml:"workflow_execution_timeout"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// LoadConfigFromFile loads configuration from a YAML file. Missing
// fields keep their DefaultConfig values.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables (e.g. ${OPENAI_API_KEY}) before parsing YAML
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.BudgetScale <= 0 {
		errs = append(errs, errors.New("engine.budget_scale must be positive"))
	}
	if c.Engine.PersistenceRetries < 0 {
		errs = append(errs, errors.New("engine.persistence_retries must not be negative"))
	}
	if c.Difficulty.XPPerTier <= 0 {
		errs = append(errs, errors.New("difficulty.xp_per_tier must be positive"))
	}
	if c.Difficulty.SuccessWindow <= 0 {
		errs = append(errs, errors.New("difficulty.success_window must be positive"))
	}
	if c.Difficulty.MinSuccessRate < 0 || c.Difficulty.MinSuccessRate > 1 {
		errs = append(errs, errors.New("difficulty.min_success_rate must be within [0,1]"))
	}
	if c.Evaluation.MaxRetries < 0 {
		errs = append(errs, errors.New("evaluation.max_retries must not be negative"))
	}
	switch c.Database.Type {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not one of memory, sqlite, postgres", c.Database.Type))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of memory, redis", c.Cache.Backend))
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, errors.New("provider without id"))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate provider %q", p.ID))
		}
		seen[p.ID] = true
	}
	return errors.Join(errs...)
}

// Provider looks up a provider by id.
func (c *Config) Provider(id string) (Provider, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			BudgetScale:        1.0,
			PersistenceRetries: 3,
			PersistenceBackoff: 100 * time.Millisecond,
		},
		Difficulty: DifficultyConfig{
			XPPerTier:      100,
			SuccessWindow:  10,
			MinSuccessRate: 0.6,
		},
		Evaluation: EvaluationConfig{
			MaxRetries:        2,
			InitialBackoff:    200 * time.Millisecond,
			BackoffMultiplier: 4,
			CallTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./gauntlet.db",
		},
		Cache: CacheConfig{
			Enabled:       true,
			Backend:       "memory",
			DefaultTTL:    1 * time.Hour,
			MaxSize:       1000,
			CleanupPeriod: 5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			StreamName: "GAUNTLET",
			Timeout:    10 * time.Second,
		},
		Responders: ResponderConfig{
			DefaultKind: "static",
			StaticReply: "acknowledged",
		},
		Temporal: TemporalConfig{
			Host:                     "localhost:7233",
			Namespace:                "gauntlet-default",
			TaskQueue:                "gauntlet-tests",
			WorkflowExecutionTimeout: 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "gauntlet",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
