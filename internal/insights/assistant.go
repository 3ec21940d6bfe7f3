package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const maxHistory = 20

var errDisabled = apperr.Unavailable("AI analytics is not configured")

// Message is one turn of an analytics conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, system string, msgs []Message) (string, error)
}

// AnthropicCompleter calls the Claude Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a completer for apiKey. An empty model
// uses DefaultModel.
func NewAnthropicCompleter(apiKey, model string) *AnthropicCompleter {
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicCompleter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 1024,
	}
}

// Complete sends the conversation and joins the text blocks of the reply.
func (c *AnthropicCompleter) Complete(ctx context.Context, system string, msgs []Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
	}
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("claude returned an empty response")
	}
	return b.String(), nil
}

// Question is an analytics request from the dashboard.
type Question struct {
	Question string    `json:"question"`
	Messages []Message `json:"messages"`
}

// Answer is the assistant reply with the figures it was based on.
type Answer struct {
	Answer  string   `json:"answer"`
	Summary *Summary `json:"summary"`
}

// Enabled reports whether a completer is configured.
func (s *Service) Enabled() bool { return s.completer != nil }

// Health describes the analytics configuration.
type Health struct {
	Success    bool   `json:"success"`
	Configured bool   `json:"configured"`
	Model      string `json:"model,omitempty"`
}

// Health reports whether analytics questions can be answered.
func (s *Service) Health() Health {
	h := Health{Success: true, Configured: s.Enabled()}
	if h.Configured {
		h.Model = s.model
	}
	return h
}

// sanitize keeps the last turns, maps unknown roles to user and drops
// empty content. The result never starts with an assistant turn.
func sanitize(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, Message{Role: role, Content: content})
	}
	if len(out) > maxHistory {
		out = out[len(out)-maxHistory:]
	}
	for len(out) > 0 && out[0].Role == "assistant" {
		out = out[1:]
	}
	return out
}

const systemPrompt = `You are the analytics assistant for Yohanns, a sportswear retailer with several branches.
Answer the owner's or admin's question using only the JSON sales summary below. Amounts are in Philippine pesos.
If the summary cannot answer the question, say so briefly. Keep answers short and concrete.

Sales summary:
`

// Ask answers q from the current sales summary of sc.
func (s *Service) Ask(ctx context.Context, sc Scope, q Question) (*Answer, error) {
	if !s.Enabled() {
		return nil, errDisabled
	}
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return nil, apperr.Invalid("Question is required")
	}
	sum, err := s.Summary(ctx, sc)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to encode summary")
	}

	system := systemPrompt
	if !sc.All() {
		system += "(Figures cover the " + sc.BranchName + " branch only.)\n"
	}
	msgs := append(sanitize(q.Messages), Message{Role: "user", Content: question})
	reply, err := s.completer.Complete(ctx, system+string(data), msgs)
	if err != nil {
		s.log.Warn("analytics completion failed", zap.Error(err))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "AI analytics request failed")
	}
	return &Answer{Answer: reply, Summary: sum}, nil
}
