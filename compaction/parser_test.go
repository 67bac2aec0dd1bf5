package compaction

import (
	"errors"
	"testing"
)

const validResponse = `## Completed
- wrote the session store
- wired the notifier

## In Progress
- compaction controller

## Pending
- request assembler

## Blockers

## Decisions
- JSON documents on disk
`

func TestParseSummary(t *testing.T) {
	summary, err := ParseSummary(validResponse)
	if err != nil {
		t.Fatalf("ParseSummary failed: %v", err)
	}

	if len(summary.Completed) != 2 {
		t.Errorf("Completed = %v, want 2 items", summary.Completed)
	}
	if len(summary.InProgress) != 1 || summary.InProgress[0] != "compaction controller" {
		t.Errorf("InProgress = %v", summary.InProgress)
	}
	if len(summary.Pending) != 1 {
		t.Errorf("Pending = %v", summary.Pending)
	}
	if len(summary.Blockers) != 0 {
		t.Errorf("Blockers = %v, want empty", summary.Blockers)
	}
	if len(summary.Decisions) != 1 || summary.Decisions[0] != "JSON documents on disk" {
		t.Errorf("Decisions = %v", summary.Decisions)
	}
}

func TestParseSummaryHeadingVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"colon headings", "Completed:\n- a\nIn Progress:\n- b\nDecisions:\n- c"},
		{"bold headings", "**Completed**\n- a\n**Pending**\n- b"},
		{"hyphenated in-progress", "## In-Progress\n- a"},
		{"star bullets", "## Completed\n* a\n* b"},
		{"preamble ignored", "Here is the summary you asked for.\n\n## Completed\n- a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSummary(tt.text); err != nil {
				t.Errorf("ParseSummary(%q) failed: %v", tt.text, err)
			}
		})
	}
}

func TestParseSummarySkipsNonePlaceholders(t *testing.T) {
	summary, err := ParseSummary("## Completed\n- a\n## Blockers\n- None\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Blockers) != 0 {
		t.Errorf("Blockers = %v, want empty", summary.Blockers)
	}
}

func TestParseSummaryMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "  \n\t\n"},
		{"no recognized sections", "I could not summarize this conversation, sorry."},
		{"wrong sections", "## Overview\n- stuff\n## Notes\n- more stuff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSummary(tt.text)
			if !errors.Is(err, ErrMalformedSummary) {
				t.Errorf("ParseSummary(%q) error = %v, want ErrMalformedSummary", tt.text, err)
			}
		})
	}
}
