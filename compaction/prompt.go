package compaction

import (
	"strings"

	"github.com/cpgames/dagent/types"
)

// SummarySystemPrompt instructs the model to compress conversation history
// into the five-category checkpoint structure the engine persists.
const SummarySystemPrompt = `You are a conversation summarizer for an AI agent system. Your task is to compress the conversation below into a structured checkpoint that will replace the original messages while preserving everything needed to continue the work.

Respond with exactly these five markdown sections, each containing a bullet list. If a section has no relevant content, include the heading with no bullets.

## Completed
Work that has been finished, with enough detail to avoid redoing it.

## In Progress
Work that was actively underway, including its current state.

## Pending
Work that was planned or requested but not yet started.

## Blockers
Anything preventing progress: errors, missing inputs, unanswered questions.

## Decisions
Decisions made during the conversation and their rationale.

Guidelines:
- Be concise but complete; preserve file names, identifiers, and error messages verbatim.
- Maintain chronological order within each section.
- Do not add information that was not in the conversation.
- Respond with the five sections only, no preamble.`

// BuildSummaryPrompt creates the user message for summarization from the
// current checkpoint (if it has content) and the messages being compacted.
func BuildSummaryPrompt(cp *types.Checkpoint, messages []*types.ChatMessage) string {
	var b strings.Builder

	if text := cp.PromptText(); text != "" {
		b.WriteString("<previous_checkpoint>\n")
		b.WriteString(text)
		b.WriteString("\n</previous_checkpoint>\n\n")
		b.WriteString("The above is the checkpoint from earlier compactions. Carry its still-relevant entries forward into your response.\n\n")
	}

	b.WriteString("<conversation>\n")
	b.WriteString(formatMessages(messages))
	b.WriteString("\n</conversation>\n\n")
	b.WriteString("Summarize the conversation into the five sections exactly as instructed.")

	return b.String()
}

func formatMessages(messages []*types.ChatMessage) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case types.RoleAssistant:
			b.WriteString("Assistant:\n")
		case types.RoleSystem:
			b.WriteString("System:\n")
		default:
			b.WriteString("User:\n")
		}
		b.WriteString(msg.Content)
	}
	return b.String()
}
