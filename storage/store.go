// Package storage defines the persistence interface for session documents
// and provides the file-backed implementation.
//
// Each session owns five independent documents: metadata, message log,
// checkpoint, context snapshot, and agent description. The absence of any
// one document is an ordinary NotFound, never a fatal condition; callers
// self-heal missing documents on their next write.
package storage

import (
	"context"
	"errors"

	"github.com/cpgames/dagent/types"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrMalformed indicates a stored document failed to parse.
	ErrMalformed = errors.New("document malformed")
)

// Logical document names. Each maps to one independent resource per session.
const (
	DocSession    = "session"
	DocMessages   = "messages"
	DocCheckpoint = "checkpoint"
	DocContext    = "context"
	DocAgent      = "agent"
)

// DocumentNames lists the five per-session documents in a stable order.
var DocumentNames = []string{DocSession, DocMessages, DocCheckpoint, DocContext, DocAgent}

// Store defines the persistence interface for session documents.
type Store interface {
	// Session metadata
	SaveSession(ctx context.Context, session *types.Session) error
	LoadSession(ctx context.Context, sessionID string) (*types.Session, error)

	// Message log
	SaveMessageLog(ctx context.Context, sessionID string, log *types.MessageLog) error
	LoadMessageLog(ctx context.Context, sessionID string) (*types.MessageLog, error)

	// Checkpoint
	SaveCheckpoint(ctx context.Context, sessionID string, cp *types.Checkpoint) error
	LoadCheckpoint(ctx context.Context, sessionID string) (*types.Checkpoint, error)

	// Context snapshot
	SaveContext(ctx context.Context, sessionID string, sc *types.SessionContext) error
	LoadContext(ctx context.Context, sessionID string) (*types.SessionContext, error)

	// Agent description
	SaveAgentDescription(ctx context.Context, sessionID string, ad *types.AgentDescription) error
	LoadAgentDescription(ctx context.Context, sessionID string) (*types.AgentDescription, error)

	// SwapCheckpointAndLog persists the post-compaction checkpoint and
	// replacement message log as one unit. Neither document may be left
	// half-written on failure.
	SwapCheckpointAndLog(ctx context.Context, sessionID string, cp *types.Checkpoint, log *types.MessageLog) error
}
