package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// MessageMeta holds optional per-message metadata.
type MessageMeta struct {
	// InputTokens and OutputTokens record token usage reported by the
	// provider, when known.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`

	// Internal marks messages that are bookkeeping between agents and are
	// never shown to the user.
	Internal bool `json:"internal,omitempty"`

	// Tags carries free-form provenance labels (tool names, phase markers).
	Tags []string `json:"tags,omitempty"`
}

// ChatMessage represents one conversation turn. Messages are immutable once
// created; the log only ever appends or clears them.
type ChatMessage struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	Meta      *MessageMeta `json:"meta,omitempty"`
}

// NewChatMessage creates a message with a generated ID and timestamp.
func NewChatMessage(role Role, content string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// IsInternal reports whether the message is marked internal.
func (m *ChatMessage) IsInternal() bool {
	return m.Meta != nil && m.Meta.Internal
}

// MessageLog is the ordered message history for one session. Insertion order
// is meaningful. TotalMessages is a lifetime counter: compaction clears
// Messages but never resets it.
type MessageLog struct {
	Messages        []*ChatMessage `json:"messages"`
	TotalMessages   int            `json:"total_messages"`
	OldestMessageAt *time.Time     `json:"oldest_message_at,omitempty"`
	NewestMessageAt *time.Time     `json:"newest_message_at,omitempty"`
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{Messages: []*ChatMessage{}}
}

// Append adds a message to the log and updates the counters.
func (l *MessageLog) Append(msg *ChatMessage) {
	l.Messages = append(l.Messages, msg)
	l.TotalMessages++
	ts := msg.CreatedAt
	if l.OldestMessageAt == nil {
		l.OldestMessageAt = &ts
	}
	l.NewestMessageAt = &ts
}

// PromptText renders the log as role-labeled text for prompt assembly and
// token estimation.
func (l *MessageLog) PromptText() string {
	if l == nil || len(l.Messages) == 0 {
		return ""
	}
	var b strings.Builder
	for i, msg := range l.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(roleLabel(msg.Role))
		b.WriteString(":\n")
		b.WriteString(msg.Content)
	}
	return b.String()
}

func roleLabel(role Role) string {
	switch role {
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return "User"
	}
}
