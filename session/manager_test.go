package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cpgames/dagent/notifier"
	"github.com/cpgames/dagent/storage"
	"github.com/cpgames/dagent/types"
)

func TestSessionIDDerivation(t *testing.T) {
	tests := []struct {
		name     string
		coords   Coordinates
		expected string
	}{
		{
			name: "feature scoped",
			coords: Coordinates{
				AgentType: "builder",
				Kind:      types.KindFeature,
				FeatureID: "auth",
			},
			expected: "builder-feature-auth",
		},
		{
			name: "task scoped",
			coords: Coordinates{
				AgentType: "reviewer",
				Kind:      types.KindTask,
				FeatureID: "auth",
				TaskID:    "t42",
			},
			expected: "reviewer-task-auth-t42",
		},
		{
			name: "task scoped with state",
			coords: Coordinates{
				AgentType: "builder",
				Kind:      types.KindTask,
				FeatureID: "auth",
				TaskID:    "t42",
				TaskState: "implementing",
			},
			expected: "builder-task-auth-t42-implementing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.coords.SessionID(); got != tt.expected {
				t.Errorf("SessionID() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCoordinatesValidate(t *testing.T) {
	tests := []struct {
		name    string
		coords  Coordinates
		wantErr bool
	}{
		{"valid feature", Coordinates{AgentType: "a", Kind: types.KindFeature, FeatureID: "f"}, false},
		{"valid task", Coordinates{AgentType: "a", Kind: types.KindTask, FeatureID: "f", TaskID: "t"}, false},
		{"missing agent type", Coordinates{Kind: types.KindFeature, FeatureID: "f"}, true},
		{"missing feature id", Coordinates{AgentType: "a", Kind: types.KindFeature}, true},
		{"task without task id", Coordinates{AgentType: "a", Kind: types.KindTask, FeatureID: "f"}, true},
		{"feature with task id", Coordinates{AgentType: "a", Kind: types.KindFeature, FeatureID: "f", TaskID: "t"}, true},
		{"unknown kind", Coordinates{AgentType: "a", Kind: "thing", FeatureID: "f"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coords.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newTestManager(t *testing.T) (*Manager, *notifier.Notifier) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	events := notifier.New()
	return NewManager(store, events, nil), events
}

func featureCoords(agentType, featureID string) Coordinates {
	return Coordinates{AgentType: agentType, Kind: types.KindFeature, FeatureID: featureID}
}

func TestGetOrCreateFresh(t *testing.T) {
	m, events := newTestManager(t)
	ctx := context.Background()

	var created []*notifier.Event
	events.Subscribe(notifier.EventSessionCreated, func(e *notifier.Event) {
		created = append(created, e)
	})

	agent := &types.AgentDescription{AgentType: "builder", Role: "You build things."}
	sctx := &types.SessionContext{ProjectName: "demo"}

	e, err := m.GetOrCreate(ctx, featureCoords("builder", "f1"), agent, sctx)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	docs := e.Documents()
	if docs.Session.ID != "builder-feature-f1" {
		t.Errorf("ID = %q", docs.Session.ID)
	}
	if docs.Session.Status != types.StatusActive {
		t.Errorf("Status = %q, want active", docs.Session.Status)
	}
	if docs.Checkpoint.Version != 1 {
		t.Errorf("fresh checkpoint version = %d, want 1", docs.Checkpoint.Version)
	}
	if len(docs.Log.Messages) != 0 {
		t.Errorf("fresh log has %d messages", len(docs.Log.Messages))
	}
	if len(docs.Session.Documents) != len(storage.DocumentNames) {
		t.Errorf("document map has %d entries, want %d", len(docs.Session.Documents), len(storage.DocumentNames))
	}
	if len(created) != 1 {
		t.Errorf("created events = %d, want 1", len(created))
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	m, events := newTestManager(t)
	ctx := context.Background()

	createdEvents := 0
	events.Subscribe(notifier.EventSessionCreated, func(*notifier.Event) { createdEvents++ })

	coords := featureCoords("builder", "f1")
	first, err := m.GetOrCreate(ctx, coords, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		e, err := m.GetOrCreate(ctx, coords, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if e != first {
			t.Fatal("repeated GetOrCreate returned a different entry")
		}
	}
	if createdEvents != 1 {
		t.Errorf("created events = %d, want 1", createdEvents)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	coords := featureCoords("builder", "f1")

	const workers = 16
	entries := make([]*Entry, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := m.GetOrCreate(ctx, coords, nil, nil)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			entries[i] = e
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if entries[i] != entries[0] {
			t.Fatal("concurrent GetOrCreate produced divergent entries")
		}
	}
}

func TestGetOrCreateLoadsFromStorage(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	coords := featureCoords("builder", "f1")

	m1 := NewManager(store, nil, nil)
	e1, err := m1.GetOrCreate(ctx, coords, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	msg := types.NewChatMessage(types.RoleUser, "hello")
	if err := m1.AppendMessage(ctx, e1, msg, 2); err != nil {
		t.Fatal(err)
	}

	// A new manager over the same store must see the persisted state.
	m2 := NewManager(store, nil, nil)
	e2, err := m2.GetOrCreate(ctx, coords, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	docs := e2.Documents()
	if len(docs.Log.Messages) != 1 || docs.Log.Messages[0].Content != "hello" {
		t.Errorf("reloaded log = %+v", docs.Log.Messages)
	}
	if docs.Session.Stats.TotalMessages != 1 {
		t.Errorf("reloaded TotalMessages = %d, want 1", docs.Session.Stats.TotalMessages)
	}
}

func TestGetByID(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.GetByID(ctx, "builder-feature-f1", "f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetByID on absent session: err = %v, want ErrNotFound", err)
	}

	e, err := m.GetOrCreate(ctx, featureCoords("builder", "f1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.GetByID(ctx, "builder-feature-f1", "f1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != e {
		t.Error("GetByID returned a different entry than GetOrCreate")
	}

	if _, err := m.GetByID(ctx, "builder-feature-f1", "other-feature"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("feature mismatch: err = %v, want ErrNotFound", err)
	}
}

func TestAppendOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.GetOrCreate(ctx, featureCoords("builder", "f1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		role := types.RoleUser
		if len(c)%2 == 0 {
			role = types.RoleAssistant
		}
		if err := m.AppendMessage(ctx, e, types.NewChatMessage(role, c), 1); err != nil {
			t.Fatal(err)
		}
	}

	docs := e.Documents()
	if len(docs.Log.Messages) != len(contents) {
		t.Fatalf("log has %d messages, want %d", len(docs.Log.Messages), len(contents))
	}
	for i, c := range contents {
		if docs.Log.Messages[i].Content != c {
			t.Errorf("message %d = %q, want %q", i, docs.Log.Messages[i].Content, c)
		}
	}
	if docs.Session.Stats.TotalMessages != len(contents) {
		t.Errorf("Stats.TotalMessages = %d, want %d", docs.Session.Stats.TotalMessages, len(contents))
	}
	if docs.Session.Stats.TotalTokens != len(contents) {
		t.Errorf("Stats.TotalTokens = %d, want %d", docs.Session.Stats.TotalTokens, len(contents))
	}
}

func TestArchive(t *testing.T) {
	m, events := newTestManager(t)
	ctx := context.Background()

	archivedEvents := 0
	events.Subscribe(notifier.EventSessionArchived, func(*notifier.Event) { archivedEvents++ })

	e, err := m.GetOrCreate(ctx, featureCoords("builder", "f1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	id := e.ID()

	if err := m.Archive(ctx, id, "f1"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	// Second archive is a no-op, not an error.
	if err := m.Archive(ctx, id, "f1"); err != nil {
		t.Fatalf("repeat Archive failed: %v", err)
	}
	if archivedEvents != 1 {
		t.Errorf("archived events = %d, want 1", archivedEvents)
	}

	// The session survives on disk with archived status.
	got, err := m.GetByID(ctx, id, "f1")
	if err != nil {
		t.Fatalf("GetByID after archive failed: %v", err)
	}
	if got.Documents().Session.Status != types.StatusArchived {
		t.Error("session status is not archived after reload")
	}
}

func TestClearMessagesRetainsLifetimeCounter(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.GetOrCreate(ctx, featureCoords("builder", "f1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := m.AppendMessage(ctx, e, types.NewChatMessage(types.RoleUser, "m"), 1); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.ClearMessages(ctx, e); err != nil {
		t.Fatalf("ClearMessages failed: %v", err)
	}

	docs := e.Documents()
	if len(docs.Log.Messages) != 0 {
		t.Errorf("log has %d messages after clear", len(docs.Log.Messages))
	}
	if docs.Log.TotalMessages != 4 {
		t.Errorf("lifetime counter = %d, want 4", docs.Log.TotalMessages)
	}
}

func TestReplaceAfterCompactionPreservesRacingAppends(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.GetOrCreate(ctx, featureCoords("builder", "f1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := m.AppendMessage(ctx, e, types.NewChatMessage(types.RoleUser, "old"), 1); err != nil {
			t.Fatal(err)
		}
	}

	// Compaction snapshots 3 messages, then an append lands mid-flight.
	snapshotCount := len(e.Documents().Log.Messages)
	if err := m.AppendMessage(ctx, e, types.NewChatMessage(types.RoleUser, "mid-flight"), 1); err != nil {
		t.Fatal(err)
	}

	cp := types.NewCheckpoint()
	cp.Version = 2
	newLog, err := m.ReplaceAfterCompaction(ctx, e, cp, snapshotCount)
	if err != nil {
		t.Fatalf("ReplaceAfterCompaction failed: %v", err)
	}

	if len(newLog.Messages) != 1 || newLog.Messages[0].Content != "mid-flight" {
		t.Errorf("replacement log = %+v, want the single mid-flight message", newLog.Messages)
	}
	if newLog.TotalMessages != 4 {
		t.Errorf("lifetime counter = %d, want 4", newLog.TotalMessages)
	}

	docs := e.Documents()
	if docs.Checkpoint.Version != 2 {
		t.Errorf("checkpoint version = %d, want 2", docs.Checkpoint.Version)
	}
	if docs.Session.Stats.TotalCompactions != 1 {
		t.Errorf("TotalCompactions = %d, want 1", docs.Session.Stats.TotalCompactions)
	}
	if docs.Session.Stats.LastCompactionAt == nil {
		t.Error("LastCompactionAt not set")
	}
}
