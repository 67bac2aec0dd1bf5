package compaction

import (
	"fmt"
	"strings"

	"github.com/cpgames/dagent/types"
)

// section headings recognized in summarization responses, normalized to
// lower case without spaces or hyphens.
var sectionNames = map[string]string{
	"completed":  "completed",
	"inprogress": "in_progress",
	"pending":    "pending",
	"blockers":   "blockers",
	"blocker":    "blockers",
	"decisions":  "decisions",
	"decision":   "decisions",
}

// ParseSummary parses a summarization response into the categorized
// checkpoint summary. The response must contain at least one recognized
// section heading; anything else is a hard compaction failure.
func ParseSummary(text string) (*types.CheckpointSummary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedSummary)
	}

	summary := &types.CheckpointSummary{
		Completed:  []string{},
		InProgress: []string{},
		Pending:    []string{},
		Blockers:   []string{},
		Decisions:  []string{},
	}

	current := ""
	sections := 0

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if name, ok := headingName(trimmed); ok {
			current = name
			sections++
			continue
		}
		if current == "" {
			continue // Preamble before the first heading is ignored.
		}

		item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*• \t"))
		if item == "" || strings.EqualFold(item, "none") {
			continue
		}

		switch current {
		case "completed":
			summary.Completed = append(summary.Completed, item)
		case "in_progress":
			summary.InProgress = append(summary.InProgress, item)
		case "pending":
			summary.Pending = append(summary.Pending, item)
		case "blockers":
			summary.Blockers = append(summary.Blockers, item)
		case "decisions":
			summary.Decisions = append(summary.Decisions, item)
		}
	}

	if sections == 0 {
		return nil, fmt.Errorf("%w: no recognized sections", ErrMalformedSummary)
	}
	return summary, nil
}

// headingName reports whether the line is a section heading and returns the
// canonical section name. Accepts "## Completed", "**Completed**",
// "Completed:" and close variants.
func headingName(line string) (string, bool) {
	stripped := strings.TrimLeft(line, "#")
	stripped = strings.Trim(stripped, "*")
	stripped = strings.TrimSuffix(strings.TrimSpace(stripped), ":")

	key := strings.ToLower(stripped)
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "-", "")

	name, ok := sectionNames[key]
	if !ok {
		return "", false
	}
	// A heading line contains nothing but the section name.
	return name, true
}
