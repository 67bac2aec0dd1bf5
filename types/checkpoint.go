package types

import (
	"strings"
	"time"
)

// CheckpointSummary is the categorized summary produced by compaction.
type CheckpointSummary struct {
	Completed  []string `json:"completed"`
	InProgress []string `json:"in_progress"`
	Pending    []string `json:"pending"`
	Blockers   []string `json:"blockers"`
	Decisions  []string `json:"decisions"`
}

// IsEmpty reports whether the summary has no entries in any category.
func (s *CheckpointSummary) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.Completed) == 0 && len(s.InProgress) == 0 &&
		len(s.Pending) == 0 && len(s.Blockers) == 0 && len(s.Decisions) == 0
}

// CompactionInfo records the provenance of the most recent compaction.
type CompactionInfo struct {
	MessagesCompacted int        `json:"messages_compacted"`
	OldestMessageAt   *time.Time `json:"oldest_message_at,omitempty"`
	NewestMessageAt   *time.Time `json:"newest_message_at,omitempty"`
	CompactedAt       time.Time  `json:"compacted_at"`
}

// CheckpointStats holds cumulative compaction counters. They are
// monotonically non-decreasing over the checkpoint's lifetime.
type CheckpointStats struct {
	TotalCompactions int `json:"total_compactions"`
	TotalMessages    int `json:"total_messages"`
	TotalTokens      int `json:"total_tokens"`
}

// Checkpoint is the compressed summary that replaces older messages.
// Version strictly increases by one per successful compaction.
type Checkpoint struct {
	Version        int               `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Summary        CheckpointSummary `json:"summary"`
	CompactionInfo *CompactionInfo   `json:"compaction_info,omitempty"`
	Stats          CheckpointStats   `json:"stats"`
}

// NewCheckpoint creates the version-1 empty checkpoint every fresh session
// starts with.
func NewCheckpoint() *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Summary: CheckpointSummary{
			Completed:  []string{},
			InProgress: []string{},
			Pending:    []string{},
			Blockers:   []string{},
			Decisions:  []string{},
		},
	}
}

// PromptText renders the checkpoint summary as section headings with bullet
// lists, the shape prompts and estimators consume.
func (c *Checkpoint) PromptText() string {
	if c == nil || c.Summary.IsEmpty() {
		return ""
	}
	var b strings.Builder
	writeSection(&b, "Completed", c.Summary.Completed)
	writeSection(&b, "In Progress", c.Summary.InProgress)
	writeSection(&b, "Pending", c.Summary.Pending)
	writeSection(&b, "Blockers", c.Summary.Blockers)
	writeSection(&b, "Decisions", c.Summary.Decisions)
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("## ")
	b.WriteString(heading)
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
