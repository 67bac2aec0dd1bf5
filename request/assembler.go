// Package request assembles outbound prompts from a session's documents.
// Assembly is a pure read+format operation: repeated calls with the same
// inputs produce the same output and nothing persisted is touched.
package request

import (
	"strings"

	"github.com/cpgames/dagent/session"
	"github.com/cpgames/dagent/tokens"
)

// Section headings in the assembled user prompt.
const (
	contextHeading      = "# Context"
	checkpointHeading   = "# Checkpoint"
	conversationHeading = "# Conversation"
)

// Request is an assembled outbound prompt.
type Request struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	TotalTokens  int    `json:"total_tokens"`
}

// Preview is an assembled prompt plus the per-component token breakdown, for
// observability and for testing the budget math directly.
type Preview struct {
	SystemPrompt string                 `json:"system_prompt"`
	UserPrompt   string                 `json:"user_prompt"`
	Breakdown    tokens.Breakdown       `json:"breakdown"`
	Estimate     tokens.RequestEstimate `json:"estimate"`
}

// Assembler combines a session's documents and the next user turn into one
// outbound prompt.
type Assembler struct {
	estimator *tokens.Estimator
}

// NewAssembler creates an assembler using the given estimator.
func NewAssembler(estimator *tokens.Estimator) *Assembler {
	return &Assembler{estimator: estimator}
}

// Build assembles the prompt for the given documents and new user text.
// Assembly order is fixed: agent role instructions, tool instructions,
// context, checkpoint (only when its summary is non-empty), message log
// (only when non-empty), then the new user text.
func (a *Assembler) Build(docs session.Documents, userText string) *Request {
	est := a.estimate(docs, userText)
	return &Request{
		SystemPrompt: a.systemPrompt(docs),
		UserPrompt:   a.userPrompt(docs, userText),
		TotalTokens:  est.Total,
	}
}

// Preview assembles the prompt and exposes the per-component token counts.
func (a *Assembler) Preview(docs session.Documents, userText string) *Preview {
	est := a.estimate(docs, userText)
	return &Preview{
		SystemPrompt: a.systemPrompt(docs),
		UserPrompt:   a.userPrompt(docs, userText),
		Breakdown:    est.Breakdown,
		Estimate:     est,
	}
}

func (a *Assembler) estimate(docs session.Documents, userText string) tokens.RequestEstimate {
	return a.estimator.EstimateRequest(docs.Agent, docs.Context, docs.Checkpoint, docs.Log, userText)
}

func (a *Assembler) systemPrompt(docs session.Documents) string {
	return docs.Agent.PromptText()
}

func (a *Assembler) userPrompt(docs session.Documents, userText string) string {
	var sections []string

	if text := docs.Context.PromptText(); text != "" {
		sections = append(sections, contextHeading+"\n"+text)
	}
	if text := docs.Checkpoint.PromptText(); text != "" {
		sections = append(sections, checkpointHeading+"\n"+text)
	}
	if text := docs.Log.PromptText(); text != "" {
		sections = append(sections, conversationHeading+"\n"+text)
	}
	if userText != "" {
		sections = append(sections, userText)
	}

	return strings.Join(sections, "\n\n")
}
