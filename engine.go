package dagent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cpgames/dagent/compaction"
	"github.com/cpgames/dagent/notifier"
	"github.com/cpgames/dagent/request"
	"github.com/cpgames/dagent/session"
	"github.com/cpgames/dagent/storage"
	"github.com/cpgames/dagent/tokens"
	"github.com/cpgames/dagent/types"
)

// Engine is the session and checkpoint compaction engine. Construct one per
// project root with New.
type Engine struct {
	sessions  *session.Manager
	estimator *tokens.Estimator
	assembler *request.Assembler
	compactor *compaction.Compactor
	events    *notifier.Notifier
}

// New creates an Engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	events := cfg.Events
	if events == nil {
		events = notifier.New()
	}

	estimator := tokens.NewEstimator(cfg.Tokens)
	sessions := session.NewManager(cfg.Store, events, cfg.Logger)
	assembler := request.NewAssembler(estimator)
	compactor := compaction.New(sessions, estimator, cfg.Completion, events, cfg.Compaction, cfg.Logger)

	return &Engine{
		sessions:  sessions,
		estimator: estimator,
		assembler: assembler,
		compactor: compactor,
		events:    events,
	}, nil
}

// Events returns the engine's notifier for observer registration.
func (g *Engine) Events() *notifier.Notifier {
	return g.events
}

// GetOrCreateSession resolves the session for the given coordinates,
// creating it with the supplied agent description and context snapshot when
// it does not exist yet.
func (g *Engine) GetOrCreateSession(ctx context.Context, coords session.Coordinates, agent *types.AgentDescription, sctx *types.SessionContext) (*types.Session, error) {
	e, err := g.sessions.GetOrCreate(ctx, coords, agent, sctx)
	if err != nil {
		return nil, NewEngineError("GetOrCreateSession", err)
	}
	return e.Documents().Session, nil
}

// GetSession returns the session metadata.
func (g *Engine) GetSession(ctx context.Context, sessionID, featureID string) (*types.Session, error) {
	e, err := g.entry(ctx, "GetSession", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	return e.Documents().Session, nil
}

// AddMessage appends one turn to the session's log and persists it. After a
// successful append the request budget is re-estimated, and compaction runs
// in the background when the budget is exceeded; compaction failures never
// surface here.
func (g *Engine) AddMessage(ctx context.Context, sessionID, featureID string, role types.Role, content string, meta *types.MessageMeta) (*types.ChatMessage, error) {
	e, err := g.entry(ctx, "AddMessage", sessionID, featureID)
	if err != nil {
		return nil, err
	}

	msg := types.NewChatMessage(role, content)
	msg.Meta = meta

	if err := g.sessions.AppendMessage(ctx, e, msg, g.estimator.EstimateText(content)); err != nil {
		return nil, NewEngineErrorWithSession("AddMessage", sessionID, err)
	}

	g.compactor.MaybeCompact(ctx, e)
	return msg, nil
}

// GetAllMessages returns every message in the log, in append order.
func (g *Engine) GetAllMessages(ctx context.Context, sessionID, featureID string) ([]*types.ChatMessage, error) {
	e, err := g.entry(ctx, "GetAllMessages", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	return e.Documents().Log.Messages, nil
}

// GetRecentMessages returns the last limit non-internal messages, in append
// order. A non-positive limit returns all non-internal messages.
func (g *Engine) GetRecentMessages(ctx context.Context, sessionID, featureID string, limit int) ([]*types.ChatMessage, error) {
	e, err := g.entry(ctx, "GetRecentMessages", sessionID, featureID)
	if err != nil {
		return nil, err
	}

	all := e.Documents().Log.Messages
	visible := make([]*types.ChatMessage, 0, len(all))
	for _, msg := range all {
		if !msg.IsInternal() {
			visible = append(visible, msg)
		}
	}
	if limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	return visible, nil
}

// ClearMessages empties the message log, retaining the lifetime counter.
func (g *Engine) ClearMessages(ctx context.Context, sessionID, featureID string) error {
	e, err := g.entry(ctx, "ClearMessages", sessionID, featureID)
	if err != nil {
		return err
	}
	if err := g.sessions.ClearMessages(ctx, e); err != nil {
		return NewEngineErrorWithSession("ClearMessages", sessionID, err)
	}
	return nil
}

// GetCheckpoint returns the session's current checkpoint.
func (g *Engine) GetCheckpoint(ctx context.Context, sessionID, featureID string) (*types.Checkpoint, error) {
	e, err := g.entry(ctx, "GetCheckpoint", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	return e.Documents().Checkpoint, nil
}

// UpdateCheckpoint replaces the checkpoint summary by hand. The version is
// unchanged; versions advance only through compaction.
func (g *Engine) UpdateCheckpoint(ctx context.Context, sessionID, featureID string, summary types.CheckpointSummary) (*types.Checkpoint, error) {
	e, err := g.entry(ctx, "UpdateCheckpoint", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	cp, err := g.sessions.UpdateCheckpoint(ctx, e, summary)
	if err != nil {
		return nil, NewEngineErrorWithSession("UpdateCheckpoint", sessionID, err)
	}
	return cp, nil
}

// UpdateContext replaces the session's context snapshot. The snapshot is
// rebuilt by the caller; the engine only reads it.
func (g *Engine) UpdateContext(ctx context.Context, sessionID, featureID string, sctx *types.SessionContext) error {
	e, err := g.entry(ctx, "UpdateContext", sessionID, featureID)
	if err != nil {
		return err
	}
	if err := g.sessions.UpdateContext(ctx, e, sctx); err != nil {
		return NewEngineErrorWithSession("UpdateContext", sessionID, err)
	}
	return nil
}

// ForceCompact compacts the session now. Unlike automatic compaction, the
// failure of a forced compaction propagates to the caller. An empty log or
// an already-running compaction is a no-op returning a nil result.
func (g *Engine) ForceCompact(ctx context.Context, sessionID, featureID string) (*compaction.Result, error) {
	e, err := g.entry(ctx, "ForceCompact", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	result, err := g.compactor.Compact(ctx, e)
	if err != nil {
		return nil, NewEngineErrorWithSession("ForceCompact", sessionID, err)
	}
	return result, nil
}

// CompactionStats reports the session's current budget usage.
func (g *Engine) CompactionStats(ctx context.Context, sessionID, featureID string) (*compaction.Stats, error) {
	e, err := g.entry(ctx, "CompactionStats", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	return g.compactor.Stats(e), nil
}

// BuildRequest assembles the outbound prompt for the next user turn.
func (g *Engine) BuildRequest(ctx context.Context, sessionID, featureID, userText string) (*request.Request, error) {
	e, err := g.entry(ctx, "BuildRequest", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	return g.assembler.Build(e.Documents(), userText), nil
}

// PreviewRequest assembles the prompt and exposes per-component token
// counts. userText may be empty.
func (g *Engine) PreviewRequest(ctx context.Context, sessionID, featureID, userText string) (*request.Preview, error) {
	e, err := g.entry(ctx, "PreviewRequest", sessionID, featureID)
	if err != nil {
		return nil, err
	}
	return g.assembler.Preview(e.Documents(), userText), nil
}

// Archive marks the session archived and evicts it from the cache. The
// documents stay on disk. Archiving twice is a no-op.
func (g *Engine) Archive(ctx context.Context, sessionID, featureID string) error {
	if err := g.sessions.Archive(ctx, sessionID, featureID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewEngineErrorWithSession("Archive", sessionID, ErrSessionNotFound)
		}
		return NewEngineErrorWithSession("Archive", sessionID, err)
	}
	return nil
}

// entry resolves a cached-or-loaded session, mapping storage absence to
// ErrSessionNotFound.
func (g *Engine) entry(ctx context.Context, op, sessionID, featureID string) (*session.Entry, error) {
	e, err := g.sessions.GetByID(ctx, sessionID, featureID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
		}
		return nil, NewEngineErrorWithSession(op, sessionID, fmt.Errorf("%w: %v", ErrStorageError, err))
	}
	return e, nil
}
