package types

import (
	"strings"
	"time"
)

// SessionKind distinguishes feature-scoped and task-scoped conversations.
type SessionKind string

const (
	// KindFeature is a conversation scoped to a whole feature.
	KindFeature SessionKind = "feature"

	// KindTask is a conversation scoped to a single task within a feature.
	KindTask SessionKind = "task"
)

// TaskState is the lifecycle state of a task-scoped session, when the caller
// distinguishes sessions per state.
type TaskState string

// Status is the session lifecycle status.
type Status string

const (
	// StatusActive marks a live session.
	StatusActive Status = "active"

	// StatusArchived marks a session whose feature or task has completed.
	// Archival is a status flip plus cache eviction, never deletion.
	StatusArchived Status = "archived"
)

// SessionStats holds aggregate counters for a session.
type SessionStats struct {
	TotalMessages    int        `json:"total_messages"`
	TotalTokens      int        `json:"total_tokens"`
	TotalCompactions int        `json:"total_compactions"`
	LastCompactionAt *time.Time `json:"last_compaction_at,omitempty"`
}

// Session is the metadata document for one conversation thread. It is owned
// by the session manager and mutated only through it.
type Session struct {
	ID        string            `json:"id"`
	Kind      SessionKind       `json:"type"`
	AgentType string            `json:"agent_type"`
	FeatureID string            `json:"feature_id"`
	TaskID    string            `json:"task_id,omitempty"`
	TaskState TaskState         `json:"task_state,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Status    Status            `json:"status"`
	Stats     SessionStats      `json:"stats"`
	Documents map[string]string `json:"documents"`
}

// SessionContext is a read-only snapshot of the surrounding project, feature
// and task facts. It is rebuilt by the caller and never mutated here.
type SessionContext struct {
	ProjectName    string   `json:"project_name,omitempty"`
	FeatureName    string   `json:"feature_name,omitempty"`
	FeatureGoal    string   `json:"feature_goal,omitempty"`
	TaskName       string   `json:"task_name,omitempty"`
	TaskGoal       string   `json:"task_goal,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
	StructureNotes string   `json:"structure_notes,omitempty"`
}

// PromptText renders the context snapshot as labeled lines.
func (c *SessionContext) PromptText() string {
	if c == nil {
		return ""
	}
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Project", c.ProjectName)
	add("Feature", c.FeatureName)
	add("Feature goal", c.FeatureGoal)
	add("Task", c.TaskName)
	add("Task goal", c.TaskGoal)
	if len(c.Dependencies) > 0 {
		lines = append(lines, "Dependencies: "+strings.Join(c.Dependencies, ", "))
	}
	add("Structure", c.StructureNotes)
	return strings.Join(lines, "\n")
}

// AgentDescription is the static role definition for an agent type. It is
// set once at session creation and read-only afterwards.
type AgentDescription struct {
	AgentType        string `json:"agent_type"`
	Role             string `json:"role"`
	ToolInstructions string `json:"tool_instructions,omitempty"`
}

// PromptText renders the role and tool instructions in assembly order.
func (d *AgentDescription) PromptText() string {
	if d == nil {
		return ""
	}
	if d.ToolInstructions == "" {
		return d.Role
	}
	return d.Role + "\n\n" + d.ToolInstructions
}
