// Package session owns the per-conversation session documents: an in-memory
// cache of live sessions over the durable document store, with all mutations
// serialized per session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cpgames/dagent/notifier"
	"github.com/cpgames/dagent/storage"
	"github.com/cpgames/dagent/types"
)

// Logger is the logging interface consumed by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Entry is a live session: its five documents plus the mutex that serializes
// every write to them. One Entry exists per session identifier; concurrent
// callers for the same coordinates share it.
type Entry struct {
	mu         sync.Mutex
	session    *types.Session
	log        *types.MessageLog
	checkpoint *types.Checkpoint
	context    *types.SessionContext
	agent      *types.AgentDescription
}

// ID returns the session identifier.
func (e *Entry) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.ID
}

// Documents is a consistent read snapshot of a session's documents. The
// message slice is copied; messages themselves are immutable.
type Documents struct {
	Session    *types.Session
	Log        *types.MessageLog
	Checkpoint *types.Checkpoint
	Context    *types.SessionContext
	Agent      *types.AgentDescription
}

// Documents returns a snapshot taken under the session lock, safe to read
// while other goroutines append or compact.
func (e *Entry) Documents() Documents {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessCopy := *e.session
	logCopy := *e.log
	logCopy.Messages = append([]*types.ChatMessage(nil), e.log.Messages...)

	return Documents{
		Session:    &sessCopy,
		Log:        &logCopy,
		Checkpoint: e.checkpoint,
		Context:    e.context,
		Agent:      e.agent,
	}
}

// Manager is the session store: a single authoritative cache of live
// sessions over durable storage.
type Manager struct {
	store  storage.Store
	events *notifier.Notifier
	logger Logger

	mu    sync.Mutex
	cache map[string]*Entry
}

// NewManager creates a manager over the given store. events and logger may
// be nil.
func NewManager(store storage.Store, events *notifier.Notifier, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		store:  store,
		events: events,
		logger: logger,
		cache:  make(map[string]*Entry),
	}
}

// entryFor returns the cache entry for id, inserting a placeholder on miss.
// The placeholder's session is nil until a load or create fills it; callers
// must hold the entry lock while filling it.
func (m *Manager) entryFor(id string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[id]
	if !ok {
		e = &Entry{}
		m.cache[id] = e
	}
	return e
}

// evict removes e from the cache if it is still the cached entry for id.
func (m *Manager) evict(id string, e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache[id] == e {
		delete(m.cache, id)
	}
}

// GetOrCreate resolves the session for the given coordinates, loading it
// from storage or creating it fresh. Concurrent callers with identical
// coordinates observe the same Entry; creation happens exactly once.
func (m *Manager) GetOrCreate(ctx context.Context, coords Coordinates, agent *types.AgentDescription, sctx *types.SessionContext) (*Entry, error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}
	id := coords.SessionID()

	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return e, nil
	}

	err := m.loadLocked(ctx, id, e)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		m.evict(id, e)
		return nil, err
	}

	if err := m.createLocked(ctx, coords, id, e, agent, sctx); err != nil {
		m.evict(id, e)
		return nil, err
	}
	return e, nil
}

// loadLocked fills e from storage. Session metadata must exist; any of the
// other four documents may be absent and is replaced with a fresh default,
// so partially-initialized sessions self-heal on their next write.
func (m *Manager) loadLocked(ctx context.Context, id string, e *Entry) error {
	sess, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return err
	}

	log, err := m.store.LoadMessageLog(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log = types.NewMessageLog()
	} else if err != nil {
		return err
	}

	cp, err := m.store.LoadCheckpoint(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		cp = types.NewCheckpoint()
	} else if err != nil {
		return err
	}

	sctx, err := m.store.LoadContext(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		sctx = nil
	} else if err != nil {
		return err
	}

	agent, err := m.store.LoadAgentDescription(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		agent = nil
	} else if err != nil {
		return err
	}

	e.session = sess
	e.log = log
	e.checkpoint = cp
	e.context = sctx
	e.agent = agent
	return nil
}

// createLocked builds a fresh session and persists all five documents.
func (m *Manager) createLocked(ctx context.Context, coords Coordinates, id string, e *Entry, agent *types.AgentDescription, sctx *types.SessionContext) error {
	now := time.Now().UTC()

	docs := make(map[string]string, len(storage.DocumentNames))
	for _, name := range storage.DocumentNames {
		docs[name] = storage.DocumentKey(id, name)
	}

	sess := &types.Session{
		ID:        id,
		Kind:      coords.Kind,
		AgentType: coords.AgentType,
		FeatureID: coords.FeatureID,
		TaskID:    coords.TaskID,
		TaskState: coords.TaskState,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    types.StatusActive,
		Documents: docs,
	}
	log := types.NewMessageLog()
	cp := types.NewCheckpoint()

	persistCtx := sctx
	if persistCtx == nil {
		persistCtx = &types.SessionContext{}
	}
	persistAgent := agent
	if persistAgent == nil {
		persistAgent = &types.AgentDescription{AgentType: coords.AgentType}
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return err
	}
	if err := m.store.SaveMessageLog(ctx, id, log); err != nil {
		return err
	}
	if err := m.store.SaveCheckpoint(ctx, id, cp); err != nil {
		return err
	}
	if err := m.store.SaveContext(ctx, id, persistCtx); err != nil {
		return err
	}
	if err := m.store.SaveAgentDescription(ctx, id, persistAgent); err != nil {
		return err
	}

	e.session = sess
	e.log = log
	e.checkpoint = cp
	e.context = sctx
	e.agent = agent

	m.publish(notifier.EventSessionCreated, sess, map[string]any{
		"agent_type": coords.AgentType,
		"kind":       string(coords.Kind),
	})
	m.logger.Debug("session created", "session_id", id, "agent_type", coords.AgentType)
	return nil
}

// GetByID resolves a session by identifier and owning feature. It never
// creates; an unknown identifier or a feature mismatch yields
// storage.ErrNotFound.
func (m *Manager) GetByID(ctx context.Context, id, featureID string) (*Entry, error) {
	e := m.entryFor(id)
	e.mu.Lock()

	if e.session == nil {
		if err := m.loadLocked(ctx, id, e); err != nil {
			e.mu.Unlock()
			m.evict(id, e)
			return nil, err
		}
	}
	owner := e.session.FeatureID
	e.mu.Unlock()

	if owner != featureID {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// Archive flips the session to archived, persists the flip, and evicts the
// session from the cache. Archiving an already-archived session is a no-op.
func (m *Manager) Archive(ctx context.Context, id, featureID string) error {
	e, err := m.GetByID(ctx, id, featureID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	flipped := false
	if e.session.Status != types.StatusArchived {
		e.session.Status = types.StatusArchived
		e.session.UpdatedAt = time.Now().UTC()
		if err := m.store.SaveSession(ctx, e.session); err != nil {
			e.session.Status = types.StatusActive
			e.mu.Unlock()
			return err
		}
		flipped = true
	}
	sess := *e.session
	e.mu.Unlock()

	m.evict(id, e)

	if flipped {
		m.publish(notifier.EventSessionArchived, &sess, nil)
		m.logger.Debug("session archived", "session_id", id)
	}
	return nil
}

// AppendMessage appends msg to the session's log and persists it. Appends
// for one session are applied in caller order; the in-memory log reflects
// program order even when the backing file write races another process.
func (m *Manager) AppendMessage(ctx context.Context, e *Entry, msg *types.ChatMessage, tokenCount int) error {
	e.mu.Lock()

	prevOldest, prevNewest := e.log.OldestMessageAt, e.log.NewestMessageAt
	e.log.Append(msg)

	if err := m.store.SaveMessageLog(ctx, e.session.ID, e.log); err != nil {
		// Undo the in-memory append so memory and disk stay in step.
		e.log.Messages = e.log.Messages[:len(e.log.Messages)-1]
		e.log.TotalMessages--
		e.log.OldestMessageAt, e.log.NewestMessageAt = prevOldest, prevNewest
		e.mu.Unlock()
		return err
	}

	e.session.Stats.TotalMessages++
	e.session.Stats.TotalTokens += tokenCount
	e.session.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveSession(ctx, e.session); err != nil {
		// The message itself is durable; stale stats heal on the next write.
		m.logger.Warn("failed to persist session stats", "session_id", e.session.ID, "error", err)
	}

	sess := *e.session
	count := len(e.log.Messages)
	e.mu.Unlock()

	m.publish(notifier.EventMessageAdded, &sess, map[string]any{
		"message_id":    msg.ID,
		"role":          string(msg.Role),
		"message_count": count,
	})
	return nil
}

// ClearMessages replaces the log with an empty one, retaining the lifetime
// message counter.
func (m *Manager) ClearMessages(ctx context.Context, e *Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	replacement := &types.MessageLog{
		Messages:      []*types.ChatMessage{},
		TotalMessages: e.log.TotalMessages,
	}
	if err := m.store.SaveMessageLog(ctx, e.session.ID, replacement); err != nil {
		return err
	}
	e.log = replacement
	return nil
}

// UpdateCheckpoint replaces the checkpoint summary by hand. The version is
// not bumped: versions advance only through successful compaction.
func (m *Manager) UpdateCheckpoint(ctx context.Context, e *Entry, summary types.CheckpointSummary) (*types.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := *e.checkpoint
	cp.Summary = summary
	cp.UpdatedAt = time.Now().UTC()

	if err := m.store.SaveCheckpoint(ctx, e.session.ID, &cp); err != nil {
		return nil, err
	}
	e.checkpoint = &cp
	return &cp, nil
}

// UpdateContext replaces the context snapshot.
func (m *Manager) UpdateContext(ctx context.Context, e *Entry, sctx *types.SessionContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.store.SaveContext(ctx, e.session.ID, sctx); err != nil {
		return err
	}
	e.context = sctx
	return nil
}

// ReplaceAfterCompaction installs the new checkpoint and swaps in a
// replacement log. Messages appended after the compaction snapshot was taken
// (the first snapshotCount messages) are carried over into the replacement
// log, so appends racing a compaction are never lost. The lifetime message
// counter is retained. On failure nothing is mutated.
func (m *Manager) ReplaceAfterCompaction(ctx context.Context, e *Entry, cp *types.Checkpoint, snapshotCount int) (*types.MessageLog, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if snapshotCount > len(e.log.Messages) {
		snapshotCount = len(e.log.Messages)
	}
	tail := e.log.Messages[snapshotCount:]

	replacement := &types.MessageLog{
		Messages:      append([]*types.ChatMessage{}, tail...),
		TotalMessages: e.log.TotalMessages,
	}
	for _, msg := range replacement.Messages {
		ts := msg.CreatedAt
		if replacement.OldestMessageAt == nil {
			replacement.OldestMessageAt = &ts
		}
		replacement.NewestMessageAt = &ts
	}

	if err := m.store.SwapCheckpointAndLog(ctx, e.session.ID, cp, replacement); err != nil {
		return nil, err
	}
	e.checkpoint = cp
	e.log = replacement

	now := time.Now().UTC()
	e.session.Stats.TotalCompactions++
	e.session.Stats.LastCompactionAt = &now
	e.session.UpdatedAt = now
	if err := m.store.SaveSession(ctx, e.session); err != nil {
		m.logger.Warn("failed to persist session stats after compaction", "session_id", e.session.ID, "error", err)
	}

	return replacement, nil
}

func (m *Manager) publish(eventType notifier.EventType, sess *types.Session, payload map[string]any) {
	if m.events == nil {
		return
	}
	m.events.Publish(&notifier.Event{
		Type:      eventType,
		SessionID: sess.ID,
		FeatureID: sess.FeatureID,
		Payload:   payload,
	})
}
