package compaction

import "fmt"

// Default configuration values.
const (
	DefaultModel            = "claude-3-5-haiku-20241022"
	DefaultMaxSummaryTokens = 4096
)

// Config holds compaction configuration.
type Config struct {
	// Model names the summarization model, for implementations that route
	// by model. Using a faster/cheaper model is recommended.
	// Default: "claude-3-5-haiku-20241022"
	Model string `yaml:"model"`

	// MaxSummaryTokens caps the summarization response.
	// Default: 4096
	MaxSummaryTokens int `yaml:"max_summary_tokens"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:            DefaultModel,
		MaxSummaryTokens: DefaultMaxSummaryTokens,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxSummaryTokens == 0 {
		c.MaxSummaryTokens = DefaultMaxSummaryTokens
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.MaxSummaryTokens <= 0 {
		return fmt.Errorf("%w: max_summary_tokens must be positive, got %d", ErrInvalidConfig, c.MaxSummaryTokens)
	}
	return nil
}
