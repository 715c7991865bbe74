package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Quorum routing engine.
// It is loaded from ~/.quorum/config.yaml and can be overridden by environment variables.
type Config struct {
	Marketplace MarketplaceConfig `mapstructure:"marketplace" yaml:"marketplace"`
	Routing     RoutingConfig     `mapstructure:"routing" yaml:"routing"`
	Selection   SelectionConfig   `mapstructure:"selection" yaml:"selection"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Data        DataConfig        `mapstructure:"data" yaml:"data"`
}

// MarketplaceConfig contains configuration for the external model marketplace.
type MarketplaceConfig struct {
	// Endpoint is the marketplace API base URL
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// APIKey is the bearer token for the marketplace API
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// Referer is sent as the HTTP-Referer identifying header
	Referer string `mapstructure:"referer" yaml:"referer"`
	// Title is sent as the X-Title identifying header
	Title string `mapstructure:"title" yaml:"title"`
	// Timeout for API calls (e.g. "2m", "30s")
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RoutingConfig contains the consensus classification thresholds and the
// trigger→decision policy. The thresholds and phrase lists are deliberate
// tuning values, kept configurable rather than hard-coded.
type RoutingConfig struct {
	// ConfidenceThreshold fires the low-confidence trigger below this value
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	// ComplexityThreshold fires the high-complexity trigger above this value
	ComplexityThreshold float64 `mapstructure:"complexity_threshold" yaml:"complexity_threshold"`
	// Policy maps a trigger name to "consensus_assisted" or "consensus_required"
	Policy map[string]string `mapstructure:"policy" yaml:"policy,omitempty"`
	// SimplePhrases hint at the direct path during pre-filtering
	SimplePhrases []string `mapstructure:"simple_phrases" yaml:"simple_phrases,omitempty"`
	// ComplexPhrases hint at the consensus path during pre-filtering
	ComplexPhrases []string `mapstructure:"complex_phrases" yaml:"complex_phrases,omitempty"`
}

// SelectionConfig contains the per-stage model selection tuning.
type SelectionConfig struct {
	// ProgrammingPoolSize is the candidate pool size drawn from the programming rankings
	ProgrammingPoolSize int `mapstructure:"programming_pool_size" yaml:"programming_pool_size"`
	// CostPoolSize is the candidate pool size drawn from the cost rankings
	CostPoolSize int `mapstructure:"cost_pool_size" yaml:"cost_pool_size"`
	// BlendPoolSize is the per-category size of the refiner's blended pool
	BlendPoolSize int `mapstructure:"blend_pool_size" yaml:"blend_pool_size"`
	// ProviderReputation maps provider names to flat base scores
	ProviderReputation map[string]float64 `mapstructure:"provider_reputation" yaml:"provider_reputation,omitempty"`
	// QualityProviders earn the curator stage bonus
	QualityProviders []string `mapstructure:"quality_providers" yaml:"quality_providers,omitempty"`
	// EstimatedTokensPerStage sizes the per-stage cost estimate
	EstimatedTokensPerStage int `mapstructure:"estimated_tokens_per_stage" yaml:"estimated_tokens_per_stage"`
}

// PipelineConfig contains the stage execution settings.
type PipelineConfig struct {
	// MaxTokens limits each stage's response length
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Temperature controls stage response randomness (0.0-1.0)
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	// ChunkQueueSize bounds the per-stage extraction queue
	ChunkQueueSize int `mapstructure:"chunk_queue_size" yaml:"chunk_queue_size"`
}

// MaintenanceConfig contains catalog and profile upkeep settings.
type MaintenanceConfig struct {
	// Interval between automatic maintenance runs (e.g. "24h")
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// CronSpec schedules daemon-mode runs (standard cron expression)
	CronSpec string `mapstructure:"cron_spec" yaml:"cron_spec"`
	// FlagshipProviders bounds the cross-provider replacement search
	FlagshipProviders []string `mapstructure:"flagship_providers" yaml:"flagship_providers,omitempty"`
	// FlagshipKeywords mark flagship-tier model names
	FlagshipKeywords []string `mapstructure:"flagship_keywords" yaml:"flagship_keywords,omitempty"`
	// FastKeywords mark fast-tier model names
	FastKeywords []string `mapstructure:"fast_keywords" yaml:"fast_keywords,omitempty"`
	// PatternTokens are the shared model-family name markers
	PatternTokens []string `mapstructure:"pattern_tokens" yaml:"pattern_tokens,omitempty"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file; empty logs to stderr only
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// DataConfig contains local storage settings.
type DataConfig struct {
	// Dir is the directory holding the catalog database
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	quorumDir := filepath.Join(homeDir, ".quorum")

	return &Config{
		Marketplace: MarketplaceConfig{
			Endpoint: "https://openrouter.ai/api",
			APIKey:   "",
			Referer:  "https://github.com/normanking/quorum",
			Title:    "Quorum",
			Timeout:  2 * time.Minute,
		},
		Routing: RoutingConfig{
			ConfidenceThreshold: 0.6,
			ComplexityThreshold: 0.8,
			Policy: map[string]string{
				"high_risk_operation": "consensus_required",
			},
		},
		Selection: SelectionConfig{
			ProgrammingPoolSize:     20,
			CostPoolSize:            15,
			BlendPoolSize:           10,
			EstimatedTokensPerStage: 4000,
		},
		Pipeline: PipelineConfig{
			MaxTokens:      4096,
			Temperature:    0.7,
			ChunkQueueSize: 64,
		},
		Maintenance: MaintenanceConfig{
			Interval: 24 * time.Hour,
			CronSpec: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(quorumDir, "logs", "quorum.log"),
		},
		Data: DataConfig{
			Dir: quorumDir,
		},
	}
}

// Load reads configuration from the default location (~/.quorum/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".quorum", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable overrides
	// Example: QUORUM_MARKETPLACE_API_KEY
	v.SetEnvPrefix("QUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Data.Dir = expandPath(cfg.Data.Dir)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing values so a hand-trimmed config file still
// yields a runnable configuration.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Marketplace.Endpoint == "" {
		c.Marketplace.Endpoint = defaults.Marketplace.Endpoint
	}
	if c.Marketplace.Timeout == 0 {
		c.Marketplace.Timeout = defaults.Marketplace.Timeout
	}
	if c.Routing.ConfidenceThreshold == 0 {
		c.Routing.ConfidenceThreshold = defaults.Routing.ConfidenceThreshold
	}
	if c.Routing.ComplexityThreshold == 0 {
		c.Routing.ComplexityThreshold = defaults.Routing.ComplexityThreshold
	}
	if c.Selection.ProgrammingPoolSize == 0 {
		c.Selection.ProgrammingPoolSize = defaults.Selection.ProgrammingPoolSize
	}
	if c.Selection.CostPoolSize == 0 {
		c.Selection.CostPoolSize = defaults.Selection.CostPoolSize
	}
	if c.Selection.BlendPoolSize == 0 {
		c.Selection.BlendPoolSize = defaults.Selection.BlendPoolSize
	}
	if c.Selection.EstimatedTokensPerStage == 0 {
		c.Selection.EstimatedTokensPerStage = defaults.Selection.EstimatedTokensPerStage
	}
	if c.Pipeline.MaxTokens == 0 {
		c.Pipeline.MaxTokens = defaults.Pipeline.MaxTokens
	}
	if c.Pipeline.Temperature == 0 {
		c.Pipeline.Temperature = defaults.Pipeline.Temperature
	}
	if c.Pipeline.ChunkQueueSize == 0 {
		c.Pipeline.ChunkQueueSize = defaults.Pipeline.ChunkQueueSize
	}
	if c.Maintenance.Interval == 0 {
		c.Maintenance.Interval = defaults.Maintenance.Interval
	}
	if c.Maintenance.CronSpec == "" {
		c.Maintenance.CronSpec = defaults.Maintenance.CronSpec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Data.Dir == "" {
		c.Data.Dir = defaults.Data.Dir
	}
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".quorum", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// EnsureDirectories creates all directories Quorum needs to run: the data
// directory and the log directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Data.Dir}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Marketplace.Endpoint == "" {
		return fmt.Errorf("marketplace.endpoint cannot be empty")
	}

	if c.Routing.ConfidenceThreshold < 0 || c.Routing.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1")
	}
	if c.Routing.ComplexityThreshold < 0 || c.Routing.ComplexityThreshold > 1 {
		return fmt.Errorf("complexity_threshold must be between 0 and 1")
	}
	for trigger, decision := range c.Routing.Policy {
		if decision != "consensus_assisted" && decision != "consensus_required" {
			return fmt.Errorf("invalid policy decision '%s' for trigger '%s', must be 'consensus_assisted' or 'consensus_required'", decision, trigger)
		}
	}

	if c.Selection.ProgrammingPoolSize < 1 {
		return fmt.Errorf("programming_pool_size must be positive")
	}
	if c.Selection.CostPoolSize < 1 {
		return fmt.Errorf("cost_pool_size must be positive")
	}
	if c.Selection.BlendPoolSize < 1 {
		return fmt.Errorf("blend_pool_size must be positive")
	}

	if c.Pipeline.Temperature < 0 || c.Pipeline.Temperature > 1 {
		return fmt.Errorf("pipeline temperature must be between 0 and 1")
	}

	if c.Maintenance.Interval < 0 {
		return fmt.Errorf("maintenance interval cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
