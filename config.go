package dagent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cpgames/dagent/compaction"
	"github.com/cpgames/dagent/completion"
	"github.com/cpgames/dagent/notifier"
	"github.com/cpgames/dagent/storage"
	"github.com/cpgames/dagent/tokens"
)

// Logger is the logging interface consumed by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for an Engine.
type Config struct {
	// Store is the document store for session persistence (required).
	Store storage.Store

	// Completion is the completion service used for summarization (required).
	Completion completion.Service

	// Tokens configures estimation and the compaction budget.
	// Nil uses defaults (limit 100000, trigger at 90%).
	Tokens *tokens.Config

	// Compaction configures the summarization call. Nil uses defaults.
	Compaction *compaction.Config

	// Events receives lifecycle and compaction events. Nil creates a
	// private notifier, reachable through Engine.Events().
	Events *notifier.Notifier

	// Logger receives engine logging. Nil discards it.
	Logger Logger
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("%w: Store is required", ErrInvalidConfig)
	}
	if c.Completion == nil {
		return fmt.Errorf("%w: Completion service is required", ErrInvalidConfig)
	}
	if c.Tokens != nil {
		c.Tokens.ApplyDefaults()
		if err := c.Tokens.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.Compaction != nil {
		c.Compaction.ApplyDefaults()
		if err := c.Compaction.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// FileConfig is the YAML-loadable subset of engine configuration.
type FileConfig struct {
	// StorageRoot is the directory for the file-backed document store.
	StorageRoot string `yaml:"storage_root"`

	Tokens     tokens.Config     `yaml:"tokens"`
	Compaction compaction.Config `yaml:"compaction"`
}

// LoadConfigFile reads a FileConfig from a YAML file and fills defaults.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrInvalidConfig, err)
	}

	cfg.Tokens.ApplyDefaults()
	cfg.Compaction.ApplyDefaults()

	if err := cfg.Tokens.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Compaction.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// EngineConfig builds a Config from the file values and the given
// collaborators.
func (f *FileConfig) EngineConfig(store storage.Store, service completion.Service) Config {
	tok := f.Tokens
	comp := f.Compaction
	return Config{
		Store:      store,
		Completion: service,
		Tokens:     &tok,
		Compaction: &comp,
	}
}
