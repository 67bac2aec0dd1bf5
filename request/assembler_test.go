package request

import (
	"strings"
	"testing"

	"github.com/cpgames/dagent/session"
	"github.com/cpgames/dagent/tokens"
	"github.com/cpgames/dagent/types"
)

func testDocuments() session.Documents {
	cp := types.NewCheckpoint()
	cp.Summary.Completed = []string{"set up the repo"}
	cp.Summary.Pending = []string{"write the parser"}

	log := types.NewMessageLog()
	log.Append(types.NewChatMessage(types.RoleUser, "where were we?"))
	log.Append(types.NewChatMessage(types.RoleAssistant, "about to write the parser"))

	return session.Documents{
		Session: &types.Session{ID: "builder-feature-f1", FeatureID: "f1"},
		Agent: &types.AgentDescription{
			AgentType:        "builder",
			Role:             "You are the implementation agent.",
			ToolInstructions: "You may edit files in the worktree.",
		},
		Context: &types.SessionContext{
			ProjectName: "demo",
			FeatureName: "auth",
		},
		Checkpoint: cp,
		Log:        log,
	}
}

func TestBuildAssemblyOrder(t *testing.T) {
	a := NewAssembler(tokens.NewEstimator(nil))
	docs := testDocuments()

	req := a.Build(docs, "continue please")

	if !strings.HasPrefix(req.SystemPrompt, "You are the implementation agent.") {
		t.Errorf("system prompt does not start with role: %q", req.SystemPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "You may edit files") {
		t.Error("system prompt missing tool instructions")
	}
	if strings.Index(req.SystemPrompt, "implementation agent") > strings.Index(req.SystemPrompt, "edit files") {
		t.Error("tool instructions precede role instructions")
	}

	ctxIdx := strings.Index(req.UserPrompt, "# Context")
	cpIdx := strings.Index(req.UserPrompt, "# Checkpoint")
	convIdx := strings.Index(req.UserPrompt, "# Conversation")
	userIdx := strings.Index(req.UserPrompt, "continue please")

	for name, idx := range map[string]int{
		"context": ctxIdx, "checkpoint": cpIdx, "conversation": convIdx, "user text": userIdx,
	} {
		if idx < 0 {
			t.Fatalf("user prompt missing %s section:\n%s", name, req.UserPrompt)
		}
	}
	if !(ctxIdx < cpIdx && cpIdx < convIdx && convIdx < userIdx) {
		t.Errorf("sections out of order: ctx=%d cp=%d conv=%d user=%d", ctxIdx, cpIdx, convIdx, userIdx)
	}

	if req.TotalTokens <= 0 {
		t.Errorf("TotalTokens = %d, want > 0", req.TotalTokens)
	}
}

func TestBuildOmitsEmptyCheckpointAndLog(t *testing.T) {
	a := NewAssembler(tokens.NewEstimator(nil))
	docs := testDocuments()
	docs.Checkpoint = types.NewCheckpoint() // empty summary
	docs.Log = types.NewMessageLog()

	req := a.Build(docs, "hello")

	if strings.Contains(req.UserPrompt, "# Checkpoint") {
		t.Error("empty checkpoint was included")
	}
	if strings.Contains(req.UserPrompt, "# Conversation") {
		t.Error("empty message log was included")
	}
	if !strings.Contains(req.UserPrompt, "hello") {
		t.Error("user text missing")
	}
}

func TestBuildWithoutUserText(t *testing.T) {
	a := NewAssembler(tokens.NewEstimator(nil))
	docs := testDocuments()

	req := a.Build(docs, "")
	if strings.HasSuffix(req.UserPrompt, "\n\n") {
		t.Error("trailing separator with no user text")
	}
	if !strings.Contains(req.UserPrompt, "# Conversation") {
		t.Error("conversation section missing")
	}
}

func TestPreviewBreakdown(t *testing.T) {
	a := NewAssembler(tokens.NewEstimator(&tokens.Config{CharsPerToken: 1, ContextLimit: 1000, TriggerFraction: 0.9}))
	docs := testDocuments()

	p := a.Preview(docs, "next")

	if p.Breakdown.Total() != p.Estimate.Total {
		t.Errorf("Breakdown.Total() = %d, Estimate.Total = %d", p.Breakdown.Total(), p.Estimate.Total)
	}
	if p.Breakdown.AgentDescription == 0 || p.Breakdown.Context == 0 ||
		p.Breakdown.Checkpoint == 0 || p.Breakdown.Messages == 0 || p.Breakdown.NextMessage == 0 {
		t.Errorf("breakdown has zero components: %+v", p.Breakdown)
	}
	if p.Estimate.NeedsCompaction {
		t.Error("tiny request flagged for compaction")
	}
}

func TestBuildIsPure(t *testing.T) {
	a := NewAssembler(tokens.NewEstimator(nil))
	docs := testDocuments()

	before := len(docs.Log.Messages)
	cpVersion := docs.Checkpoint.Version

	first := a.Build(docs, "again")
	second := a.Build(docs, "again")

	if first.UserPrompt != second.UserPrompt || first.SystemPrompt != second.SystemPrompt {
		t.Error("repeated Build produced different output")
	}
	if len(docs.Log.Messages) != before || docs.Checkpoint.Version != cpVersion {
		t.Error("Build mutated its inputs")
	}
}
