package llm

import (
	"context"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider talks to a local or remote Ollama daemon's chat endpoint.
type OllamaProvider struct {
	baseURL string
	model   string
	http    *jsonClient
}

// NewOllamaProvider creates a new Ollama provider. An empty baseURL means
// a local daemon on the default port.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		// Local models can be slow to load on first use.
		http: newJSONClient("ollama", 5*time.Minute, nil),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string       `json:"model"`
	Messages []ollamaTurn `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Model           string     `json:"model"`
	Message         ollamaTurn `json:"message"`
	DoneReason      string     `json:"done_reason"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount       int        `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	req = req.withDefaults(p.model)

	apiReq := ollamaChatRequest{
		Model:    req.Model,
		Messages: make([]ollamaTurn, 0, len(req.Messages)),
	}
	apiReq.Options.Temperature = req.Temperature
	apiReq.Options.NumPredict = req.MaxTokens
	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, ollamaTurn{Role: string(m.Role), Content: m.Content})
	}

	var resp ollamaChatResponse
	if err := p.http.post(ctx, p.baseURL+"/api/chat", apiReq, &resp); err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content:      resp.Message.Content,
		Model:        resp.Model,
		FinishReason: resp.DoneReason,
		Usage: Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}, nil
}
