package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	model   string
	baseURL string
	http    *jsonClient
}

// NewAnthropicProvider creates a new Anthropic provider. baseURL may be
// empty for the public API.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: newJSONClient("anthropic", 2*time.Minute, map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": anthropicVersion,
		}),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      string          `json:"system,omitempty"`
	Messages    []anthropicTurn `json:"messages"`
}

type anthropicResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	req = req.withDefaults(p.model)
	system, turns := splitSystem(req.Messages)

	apiReq := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    make([]anthropicTurn, 0, len(turns)),
	}
	for _, m := range turns {
		apiReq.Messages = append(apiReq.Messages, anthropicTurn{Role: string(m.Role), Content: m.Content})
	}
	if len(apiReq.Messages) == 0 {
		return nil, fmt.Errorf("anthropic: request has no user message")
	}

	var resp anthropicResponse
	if err := p.http.post(ctx, p.baseURL+"/v1/messages", apiReq, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Content:      text.String(),
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
