// Package tokens provides character-ratio token estimation and the request
// budget math that decides when a session needs compaction.
package tokens

import (
	"fmt"

	"github.com/cpgames/dagent/types"
)

// Default configuration values. The 4-chars-per-token ratio deliberately
// overestimates most tokenizers, and the 0.9 trigger fraction leaves headroom
// for response generation and estimation slack.
const (
	DefaultCharsPerToken   = 4
	DefaultContextLimit    = 100000
	DefaultTriggerFraction = 0.9
)

// Config holds estimation and budget configuration.
type Config struct {
	// CharsPerToken is the fixed character-per-token ratio.
	// Default: 4
	CharsPerToken int `yaml:"chars_per_token"`

	// ContextLimit is the hard request-size limit in tokens.
	// Default: 100000
	ContextLimit int `yaml:"context_limit"`

	// TriggerFraction is the share of ContextLimit (0.0-1.0] at which
	// compaction is triggered.
	// Default: 0.9
	TriggerFraction float64 `yaml:"trigger_fraction"`
}

// DefaultConfig returns a Config with the default budget values.
func DefaultConfig() *Config {
	return &Config{
		CharsPerToken:   DefaultCharsPerToken,
		ContextLimit:    DefaultContextLimit,
		TriggerFraction: DefaultTriggerFraction,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.CharsPerToken == 0 {
		c.CharsPerToken = DefaultCharsPerToken
	}
	if c.ContextLimit == 0 {
		c.ContextLimit = DefaultContextLimit
	}
	if c.TriggerFraction == 0 {
		c.TriggerFraction = DefaultTriggerFraction
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("chars_per_token must be positive, got %d", c.CharsPerToken)
	}
	if c.ContextLimit <= 0 {
		return fmt.Errorf("context_limit must be positive, got %d", c.ContextLimit)
	}
	if c.TriggerFraction <= 0 || c.TriggerFraction > 1.0 {
		return fmt.Errorf("trigger_fraction must be between 0 and 1, got %f", c.TriggerFraction)
	}
	return nil
}

// Threshold returns the absolute token count above which compaction is needed.
func (c *Config) Threshold() int {
	return int(float64(c.ContextLimit) * c.TriggerFraction)
}

// Breakdown is the per-component token count of an assembled request.
type Breakdown struct {
	AgentDescription int `json:"agent_description"`
	Context          int `json:"context"`
	Checkpoint       int `json:"checkpoint"`
	Messages         int `json:"messages"`
	NextMessage      int `json:"next_message"`
}

// Total returns the sum of all components.
func (b Breakdown) Total() int {
	return b.AgentDescription + b.Context + b.Checkpoint + b.Messages + b.NextMessage
}

// RequestEstimate is the budget verdict for an upcoming request.
type RequestEstimate struct {
	// Limit is the configured hard limit.
	Limit int `json:"limit"`

	// Threshold is the token count that triggers compaction.
	Threshold int `json:"threshold"`

	// Total is the estimated size of the whole request.
	Total int `json:"total"`

	// Breakdown is the per-component split of Total.
	Breakdown Breakdown `json:"breakdown"`

	// NeedsCompaction is true when Total exceeds Threshold.
	NeedsCompaction bool `json:"needs_compaction"`
}

// Estimator maps text and structured documents to approximate token counts.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator. A nil config uses defaults.
func NewEstimator(cfg *Config) *Estimator {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.ApplyDefaults()
	}
	return &Estimator{cfg: *cfg}
}

// Config returns the estimator's configuration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// EstimateText returns ceil(len(text) / CharsPerToken).
func (e *Estimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	k := e.cfg.CharsPerToken
	return (len(text) + k - 1) / k
}

// EstimateMessages estimates the serialized message log.
func (e *Estimator) EstimateMessages(log *types.MessageLog) int {
	return e.EstimateText(log.PromptText())
}

// EstimateCheckpoint estimates the serialized checkpoint summary.
func (e *Estimator) EstimateCheckpoint(cp *types.Checkpoint) int {
	return e.EstimateText(cp.PromptText())
}

// EstimateContext estimates the serialized context snapshot.
func (e *Estimator) EstimateContext(sc *types.SessionContext) int {
	return e.EstimateText(sc.PromptText())
}

// EstimateAgentDescription estimates the serialized agent description.
func (e *Estimator) EstimateAgentDescription(ad *types.AgentDescription) int {
	return e.EstimateText(ad.PromptText())
}

// EstimateRequest estimates the full request that would be assembled from the
// given documents plus the next user turn, and reports whether it crosses the
// compaction threshold.
func (e *Estimator) EstimateRequest(
	ad *types.AgentDescription,
	sc *types.SessionContext,
	cp *types.Checkpoint,
	log *types.MessageLog,
	nextUserText string,
) RequestEstimate {
	breakdown := Breakdown{
		AgentDescription: e.EstimateAgentDescription(ad),
		Context:          e.EstimateContext(sc),
		Checkpoint:       e.EstimateCheckpoint(cp),
		Messages:         e.EstimateMessages(log),
		NextMessage:      e.EstimateText(nextUserText),
	}

	total := breakdown.Total()
	threshold := e.cfg.Threshold()

	return RequestEstimate{
		Limit:           e.cfg.ContextLimit,
		Threshold:       threshold,
		Total:           total,
		Breakdown:       breakdown,
		NeedsCompaction: total > threshold,
	}
}
