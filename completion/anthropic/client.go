// Package anthropic implements the completion service on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cpgames/dagent/completion"
)

// ErrEmptyResponse indicates the model returned no text.
var ErrEmptyResponse = errors.New("empty response from completion service")

// DefaultMaxTokens caps responses when the request does not set a limit.
const DefaultMaxTokens = 4096

// Client is a completion.Service backed by the Anthropic streaming API.
type Client struct {
	client *anthropic.Client
	model  string
}

// New creates a client that submits prompts to the given model.
func New(client *anthropic.Client, model string) *Client {
	return &Client{client: client, model: model}
}

// Complete submits the prompt and accumulates the streamed response into
// its final text.
func (c *Client) Complete(ctx context.Context, req completion.Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	// Tool access is never granted here: compaction prompts run bare, and
	// the params carry no tool definitions for the model to call.

	stream := c.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulate stream: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("completion stream: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
