package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ResearchConfig tunes the orchestration engine.
type ResearchConfig struct {
	// MaxParallelTopics bounds the worker pool. Sequential mode forces 1.
	MaxParallelTopics int           `mapstructure:"max_parallel_topics"`
	Sequential        bool          `mapstructure:"sequential"`
	TopicTimeout      time.Duration `mapstructure:"topic_timeout"`
	MaxDepth          int           `mapstructure:"max_depth"`
	MaxTotalTopics    int           `mapstructure:"max_total_topics"`
}

// CitationsConfig tunes citation rendering.
type CitationsConfig struct {
	// SeparatePlanningNumbering renders planning-only sources in their own
	// appendix instead of the shared reference list.
	SeparatePlanningNumbering bool `mapstructure:"separate_planning_numbering"`
}

// LLMConfig points at the model service.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	Burst       int           `mapstructure:"burst"`
}

// ToolsConfig points at the tool sidecars.
type ToolsConfig struct {
	SearchURL  string `mapstructure:"search_url"`
	FetchURL   string `mapstructure:"fetch_url"`
	MaxResults int    `mapstructure:"max_results"`
}

// StreamingConfig tunes the progress event surface.
type StreamingConfig struct {
	RingCapacity int    `mapstructure:"ring_capacity"`
	RedisAddr    string `mapstructure:"redis_addr"` // empty disables the mirror
}

// PostgresConfig is the persistence store connection.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// TemporalConfig is the workflow engine connection.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ServerConfig is the HTTP surface.
type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// Config is the full service configuration.
type Config struct {
	Research  ResearchConfig  `mapstructure:"research"`
	Citations CitationsConfig `mapstructure:"citations"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Server    ServerConfig    `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("research.max_parallel_topics", 4)
	v.SetDefault("research.sequential", false)
	v.SetDefault("research.topic_timeout", "5m")
	v.SetDefault("research.max_depth", 2)
	v.SetDefault("research.max_total_topics", 40)

	v.SetDefault("citations.separate_planning_numbering", false)

	v.SetDefault("llm.base_url", "http://llm-service:8000")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.rate_per_sec", 0)
	v.SetDefault("llm.burst", 1)

	v.SetDefault("tools.search_url", "http://tool-service:8001")
	v.SetDefault("tools.fetch_url", "http://tool-service:8001")
	v.SetDefault("tools.max_results", 5)

	v.SetDefault("streaming.ring_capacity", 256)
	v.SetDefault("streaming.redis_addr", "")

	v.SetDefault("postgres.host", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "deepresearch")
	v.SetDefault("postgres.password", "deepresearch")
	v.SetDefault("postgres.database", "deepresearch")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("temporal.host_port", "temporal:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "deep-research")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
}

// Load reads the YAML config at path (or CONFIG_PATH, or defaults-only when
// neither exists) with DEEPRESEARCH_* env overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Research.MaxParallelTopics < 1 {
		return fmt.Errorf("research.max_parallel_topics must be >= 1, got %d", c.Research.MaxParallelTopics)
	}
	if c.Research.TopicTimeout <= 0 {
		return fmt.Errorf("research.topic_timeout must be positive")
	}
	if c.Research.MaxTotalTopics < 1 {
		return fmt.Errorf("research.max_total_topics must be >= 1")
	}
	return nil
}

// EffectiveParallelism resolves the pool size for the run.
func (c *Config) EffectiveParallelism() int {
	if c.Research.Sequential {
		return 1
	}
	return c.Research.MaxParallelTopics
}
