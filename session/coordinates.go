package session

import (
	"fmt"
	"strings"

	"github.com/cpgames/dagent/types"
)

// Coordinates are the logical address of a session. The session identifier
// is derived deterministically from them, so repeated lookups by the same
// coordinates always resolve to the same session without a separate index.
type Coordinates struct {
	AgentType string
	Kind      types.SessionKind
	FeatureID string
	TaskID    string
	TaskState types.TaskState
}

// Validate checks that the coordinates can address a session.
func (c Coordinates) Validate() error {
	if c.AgentType == "" {
		return fmt.Errorf("agent type is required")
	}
	if c.FeatureID == "" {
		return fmt.Errorf("feature id is required")
	}
	switch c.Kind {
	case types.KindFeature:
		if c.TaskID != "" || c.TaskState != "" {
			return fmt.Errorf("feature-scoped session must not carry a task id or state")
		}
	case types.KindTask:
		if c.TaskID == "" {
			return fmt.Errorf("task-scoped session requires a task id")
		}
	default:
		return fmt.Errorf("unknown session kind %q", c.Kind)
	}
	return nil
}

// SessionID derives the deterministic identifier:
//
//	{agentType}-feature-{featureId}
//	{agentType}-task-{featureId}-{taskId}[-{taskState}]
func (c Coordinates) SessionID() string {
	parts := []string{c.AgentType, string(c.Kind), c.FeatureID}
	if c.Kind == types.KindTask {
		parts = append(parts, c.TaskID)
		if c.TaskState != "" {
			parts = append(parts, string(c.TaskState))
		}
	}
	return strings.Join(parts, "-")
}
