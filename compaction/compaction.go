// Package compaction decides when a session's history must be compressed,
// serializes compaction per session, and swaps the summarized checkpoint in
// for the message log.
package compaction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cpgames/dagent/completion"
	"github.com/cpgames/dagent/notifier"
	"github.com/cpgames/dagent/session"
	"github.com/cpgames/dagent/tokens"
	"github.com/cpgames/dagent/types"
)

// Logger interface for compaction logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Result contains the outcome of a compaction operation.
type Result struct {
	// CheckpointVersion is the version of the checkpoint that was written.
	CheckpointVersion int

	// MessagesCompacted is the number of messages folded into the checkpoint.
	MessagesCompacted int

	// TokensReclaimed is the estimated token count of the folded messages.
	TokensReclaimed int

	// Duration is how long the compaction took.
	Duration time.Duration
}

// Stats describes a session's budget usage.
type Stats struct {
	SessionID       string
	MessageCount    int
	TotalTokens     int
	Limit           int
	UsagePercent    float64
	CompactionCount int
	NeedsCompaction bool
}

// Compactor runs compactions. At most one compaction is in flight per
// session; requests arriving while one runs are no-ops.
type Compactor struct {
	sessions  *session.Manager
	estimator *tokens.Estimator
	service   completion.Service
	events    *notifier.Notifier
	config    *Config
	logger    Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Compactor. A nil config uses defaults; events and logger may
// be nil.
func New(sessions *session.Manager, estimator *tokens.Estimator, service completion.Service, events *notifier.Notifier, config *Config, logger Logger) *Compactor {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Compactor{
		sessions:  sessions,
		estimator: estimator,
		service:   service,
		events:    events,
		config:    config,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// Config returns the compactor's configuration.
func (c *Compactor) Config() *Config {
	return c.config
}

// tryAcquire marks the session as compacting. Returns false if a compaction
// is already in flight.
func (c *Compactor) tryAcquire(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[sessionID]; busy {
		return false
	}
	c.inflight[sessionID] = struct{}{}
	return true
}

// release clears the in-flight marker. Paired with tryAcquire on every exit
// path.
func (c *Compactor) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, sessionID)
}

// MaybeCompact re-estimates the session's request size after an append and
// triggers compaction asynchronously when it crosses the threshold. Nothing
// here ever fails the append path: a missing context or agent description
// skips the check, and a failed compaction is logged and reported through
// the error event only.
func (c *Compactor) MaybeCompact(ctx context.Context, e *session.Entry) {
	docs := e.Documents()
	id := docs.Session.ID

	if docs.Agent == nil || docs.Agent.PromptText() == "" || docs.Context == nil {
		c.logger.Warn("skipping compaction check", "session_id", id, "error", ErrMissingPrecondition)
		return
	}

	est := c.estimator.EstimateRequest(docs.Agent, docs.Context, docs.Checkpoint, docs.Log, "")
	if !est.NeedsCompaction {
		return
	}
	if !c.tryAcquire(id) {
		return
	}

	// The append's context may be cancelled as soon as the caller returns;
	// the compaction keeps its values but not its deadline.
	bg := context.WithoutCancel(ctx)
	go func() {
		defer c.release(id)
		if _, err := c.run(bg, e); err != nil {
			c.logger.Error("automatic compaction failed", "session_id", id, "error", err)
		}
	}()
}

// Compact performs compaction now and propagates failure to the caller.
// A compaction already in flight for the session, or an empty message log,
// is a no-op returning a nil result.
func (c *Compactor) Compact(ctx context.Context, e *session.Entry) (*Result, error) {
	id := e.ID()
	if !c.tryAcquire(id) {
		c.logger.Debug("skipping compaction", "session_id", id, "reason", ErrCompactionInProgress)
		return nil, nil
	}
	defer c.release(id)

	return c.run(ctx, e)
}

// Stats returns the session's current budget usage.
func (c *Compactor) Stats(e *session.Entry) *Stats {
	docs := e.Documents()
	est := c.estimator.EstimateRequest(docs.Agent, docs.Context, docs.Checkpoint, docs.Log, "")
	return &Stats{
		SessionID:       docs.Session.ID,
		MessageCount:    len(docs.Log.Messages),
		TotalTokens:     est.Total,
		Limit:           est.Limit,
		UsagePercent:    float64(est.Total) / float64(est.Limit) * 100,
		CompactionCount: docs.Session.Stats.TotalCompactions,
		NeedsCompaction: est.NeedsCompaction,
	}
}

// run executes the compaction procedure. The caller holds the in-flight
// marker.
func (c *Compactor) run(ctx context.Context, e *session.Entry) (*Result, error) {
	start := time.Now()
	docs := e.Documents()
	id := docs.Session.ID

	snapshot := docs.Log.Messages
	if len(snapshot) == 0 {
		c.logger.Debug("skipping compaction", "session_id", id, "reason", ErrNoMessagesToCompact)
		return nil, nil
	}

	tokensBefore := c.estimator.EstimateMessages(docs.Log)

	c.publish(notifier.EventCompactionStart, docs.Session, map[string]any{
		"message_count":  len(snapshot),
		"token_estimate": tokensBefore,
	})
	c.logger.Info("starting compaction", "session_id", id, "messages", len(snapshot), "tokens", tokensBefore)

	prompt := BuildSummaryPrompt(docs.Checkpoint, snapshot)
	text, err := c.service.Complete(ctx, completion.Request{
		System:    SummarySystemPrompt,
		Prompt:    prompt,
		MaxTokens: c.config.MaxSummaryTokens,
	})
	if err != nil {
		return nil, c.fail(docs.Session, "Complete", fmt.Errorf("%w: %v", ErrSummarizationFailed, err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, c.fail(docs.Session, "Complete", fmt.Errorf("%w: empty response", ErrSummarizationFailed))
	}

	summary, err := ParseSummary(text)
	if err != nil {
		return nil, c.fail(docs.Session, "ParseSummary", err)
	}

	cp := nextCheckpoint(docs.Checkpoint, summary, snapshot, tokensBefore)
	if _, err := c.sessions.ReplaceAfterCompaction(ctx, e, cp, len(snapshot)); err != nil {
		return nil, c.fail(docs.Session, "ReplaceAfterCompaction", err)
	}

	result := &Result{
		CheckpointVersion: cp.Version,
		MessagesCompacted: len(snapshot),
		TokensReclaimed:   tokensBefore,
		Duration:          time.Since(start),
	}

	c.publish(notifier.EventCompactionComplete, docs.Session, map[string]any{
		"messages_compacted": result.MessagesCompacted,
		"tokens_reclaimed":   result.TokensReclaimed,
		"checkpoint_version": result.CheckpointVersion,
	})
	c.logger.Info("compaction complete",
		"session_id", id,
		"messages_compacted", result.MessagesCompacted,
		"tokens_reclaimed", result.TokensReclaimed,
		"checkpoint_version", result.CheckpointVersion,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// fail emits the error event and wraps the error. The prior checkpoint and
// message log are untouched on every failure path.
func (c *Compactor) fail(sess *types.Session, op string, err error) error {
	c.publish(notifier.EventCompactionError, sess, map[string]any{
		"reason": err.Error(),
	})
	c.logger.Error("compaction failed", "session_id", sess.ID, "op", op, "error", err)
	return NewCompactionError(op, err).WithSession(sess.ID)
}

// nextCheckpoint builds the successor checkpoint: version incremented by
// one, provenance from the compacted snapshot, stats accumulated on top of
// the previous checkpoint's.
func nextCheckpoint(prev *types.Checkpoint, summary *types.CheckpointSummary, snapshot []*types.ChatMessage, tokensCompacted int) *types.Checkpoint {
	now := time.Now().UTC()

	version := 1
	created := now
	var stats types.CheckpointStats
	if prev != nil {
		version = prev.Version + 1
		created = prev.CreatedAt
		stats = prev.Stats
	}
	stats.TotalCompactions++
	stats.TotalMessages += len(snapshot)
	stats.TotalTokens += tokensCompacted

	oldest := snapshot[0].CreatedAt
	newest := snapshot[len(snapshot)-1].CreatedAt

	return &types.Checkpoint{
		Version:   version,
		CreatedAt: created,
		UpdatedAt: now,
		Summary:   *summary,
		CompactionInfo: &types.CompactionInfo{
			MessagesCompacted: len(snapshot),
			OldestMessageAt:   &oldest,
			NewestMessageAt:   &newest,
			CompactedAt:       now,
		},
		Stats: stats,
	}
}

func (c *Compactor) publish(eventType notifier.EventType, sess *types.Session, payload map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(&notifier.Event{
		Type:      eventType,
		SessionID: sess.ID,
		FeatureID: sess.FeatureID,
		Payload:   payload,
	})
}
