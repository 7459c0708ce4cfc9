package llm

import (
	"context"
	"strings"
)

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Conversation returns a system instruction followed by a single user turn,
// the shape every grounded answer uses.
func Conversation(system, user string) []Message {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	return append(msgs, Message{Role: RoleUser, Content: user})
}

// CompletionRequest contains the parameters for a completion. Zero Model and
// MaxTokens fall back to the provider's defaults.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Usage counts the tokens a completion consumed, when the provider reports it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionResponse contains the result of a completion.
type CompletionResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Provider is a chat model.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}

func (r CompletionRequest) withDefaults(model string) CompletionRequest {
	if r.Model == "" {
		r.Model = model
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = defaultMaxTokens
	}
	return r
}

// splitSystem joins the system messages into one instruction and returns
// the remaining turns in order.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
