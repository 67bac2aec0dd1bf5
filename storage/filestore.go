package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cpgames/dagent/types"
)

// FileStore persists each session document as one JSON file under
// <root>/sessions/<sessionID>/<name>.json. Writes go through a temp file in
// the same directory followed by a rename, so readers never observe a
// half-written document.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string {
	return s.root
}

// DocumentKey returns the storage key for a session document, relative to
// the store root. Session metadata records these keys in its document map.
func DocumentKey(sessionID, name string) string {
	return filepath.ToSlash(filepath.Join("sessions", sessionID, name+".json"))
}

func (s *FileStore) path(sessionID, name string) string {
	return filepath.Join(s.root, "sessions", sessionID, name+".json")
}

func (s *FileStore) write(sessionID, name string, doc any) error {
	path := s.path(sessionID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) read(sessionID, name string, doc any) error {
	data, err := os.ReadFile(s.path(sessionID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, sessionID, name)
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrMalformed, sessionID, name, err)
	}
	return nil
}

// SaveSession persists session metadata.
func (s *FileStore) SaveSession(ctx context.Context, session *types.Session) error {
	return s.write(session.ID, DocSession, session)
}

// LoadSession loads session metadata.
func (s *FileStore) LoadSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	if err := s.read(sessionID, DocSession, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveMessageLog persists the message log.
func (s *FileStore) SaveMessageLog(ctx context.Context, sessionID string, log *types.MessageLog) error {
	return s.write(sessionID, DocMessages, log)
}

// LoadMessageLog loads the message log.
func (s *FileStore) LoadMessageLog(ctx context.Context, sessionID string) (*types.MessageLog, error) {
	var log types.MessageLog
	if err := s.read(sessionID, DocMessages, &log); err != nil {
		return nil, err
	}
	if log.Messages == nil {
		log.Messages = []*types.ChatMessage{}
	}
	return &log, nil
}

// SaveCheckpoint persists the checkpoint.
func (s *FileStore) SaveCheckpoint(ctx context.Context, sessionID string, cp *types.Checkpoint) error {
	return s.write(sessionID, DocCheckpoint, cp)
}

// LoadCheckpoint loads the checkpoint.
func (s *FileStore) LoadCheckpoint(ctx context.Context, sessionID string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	if err := s.read(sessionID, DocCheckpoint, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// SaveContext persists the context snapshot.
func (s *FileStore) SaveContext(ctx context.Context, sessionID string, sc *types.SessionContext) error {
	return s.write(sessionID, DocContext, sc)
}

// LoadContext loads the context snapshot.
func (s *FileStore) LoadContext(ctx context.Context, sessionID string) (*types.SessionContext, error) {
	var sc types.SessionContext
	if err := s.read(sessionID, DocContext, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// SaveAgentDescription persists the agent description.
func (s *FileStore) SaveAgentDescription(ctx context.Context, sessionID string, ad *types.AgentDescription) error {
	return s.write(sessionID, DocAgent, ad)
}

// LoadAgentDescription loads the agent description.
func (s *FileStore) LoadAgentDescription(ctx context.Context, sessionID string) (*types.AgentDescription, error) {
	var ad types.AgentDescription
	if err := s.read(sessionID, DocAgent, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}

// SwapCheckpointAndLog persists the checkpoint first, then the replacement
// log. The checkpoint carries the summary of the messages being cleared, so
// a crash between the two writes loses no information: the log still holds
// messages the checkpoint also summarizes, and the next compaction folds
// them again.
func (s *FileStore) SwapCheckpointAndLog(ctx context.Context, sessionID string, cp *types.Checkpoint, log *types.MessageLog) error {
	if err := s.write(sessionID, DocCheckpoint, cp); err != nil {
		return err
	}
	return s.write(sessionID, DocMessages, log)
}
