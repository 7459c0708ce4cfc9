// Package rag answers questions from a tenant's indexed documents: it
// retrieves the nearest chunks, hands them to the language model as
// context and maps the chunks back to citations.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/document"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/logging"
	"github.com/ziadkadry99/docqa/internal/tenant"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// NotConfiguredAnswer is returned verbatim when no language model is set up.
const NotConfiguredAnswer = "LLM is not configured or available."

const (
	defaultTopK         = 15
	defaultMaxTopK      = 20
	defaultPreviewRunes = 200
	defaultTemperature  = 0.1
)

// Searcher is the slice of the chunk store the answerer needs.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, k int) ([]vectordb.SearchResult, error)
}

// Options tunes retrieval and generation. Zero values take defaults.
type Options struct {
	DefaultTopK  int
	MaxTopK      int
	PreviewRunes int
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Citation points back at one retrieved chunk.
type Citation struct {
	Filename        string `json:"filename"`
	Page            *int   `json:"page,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
	SectionTitle    string `json:"section_title,omitempty"`
	TableChunkIndex *int   `json:"table_chunk_index,omitempty"`
	TablePage       *int   `json:"table_page,omitempty"`
	Preview         string `json:"preview"`
}

// Answer is the result of one question.
type Answer struct {
	Question string     `json:"question"`
	Answer   string     `json:"answer"`
	Sources  []Citation `json:"sources"`
	UserID   string     `json:"user_id"`

	// ConfigurationError is set when no model was available; Answer then
	// holds NotConfiguredAnswer.
	ConfigurationError bool          `json:"configuration_error,omitempty"`
	Model              string        `json:"model,omitempty"`
	Elapsed            time.Duration `json:"-"`
}

// Answerer ties a chunk store to a language model.
type Answerer struct {
	store    Searcher
	provider llm.Provider
	opts     Options
}

// NewAnswerer creates an answerer. provider may be nil, in which case every
// answer is a configuration error.
func NewAnswerer(store Searcher, provider llm.Provider, opts Options) *Answerer {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = defaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = defaultMaxTopK
	}
	if opts.DefaultTopK > opts.MaxTopK {
		opts.DefaultTopK = opts.MaxTopK
	}
	if opts.PreviewRunes <= 0 {
		opts.PreviewRunes = defaultPreviewRunes
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	return &Answerer{store: store, provider: provider, opts: opts}
}

// Configured reports whether a language model is available.
func (a *Answerer) Configured() bool {
	return a.provider != nil
}

// Answer retrieves up to topK chunks for question from the tenant's index
// and asks the model to answer from them. topK 0 means the default; other
// values are clamped to [1, MaxTopK].
func (a *Answerer) Answer(ctx context.Context, tenantID, question string, topK int) (*Answer, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validation("question must not be empty")
	}

	out := &Answer{Question: question, UserID: tenantID, Sources: []Citation{}}
	log := logging.FromContext(ctx).With(zap.String("tenant_id", tenantID))

	if a.provider == nil {
		log.Warn("answer requested without a configured language model")
		out.Answer = NotConfiguredAnswer
		out.ConfigurationError = true
		return out, nil
	}

	start := time.Now()
	k := a.clampTopK(topK)
	results, err := a.store.Search(ctx, tenantID, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:       a.opts.Model,
		Messages:    llm.Conversation(systemPrompt, buildPrompt(buildContext(results), question)),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		log.Error("language model call failed", zap.Int("chunks", len(results)), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", apperr.ErrUpstream, a.provider.Name(), err)
	}

	out.Answer = strings.TrimSpace(resp.Content)
	out.Model = resp.Model
	out.Sources = a.citations(results)
	out.Elapsed = time.Since(start)

	log.Info("answered question",
		zap.Int("top_k", k),
		zap.Int("chunks", len(results)),
		zap.Int("sources", len(out.Sources)),
		zap.Int("answer_len", len(out.Answer)),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", out.Elapsed))
	return out, nil
}

func (a *Answerer) clampTopK(k int) int {
	if k == 0 {
		return a.opts.DefaultTopK
	}
	return max(1, min(k, a.opts.MaxTopK))
}

// citations maps results to citations in retrieval order, dropping a
// citation only when every field repeats an earlier one.
func (a *Answerer) citations(results []vectordb.SearchResult) []Citation {
	out := make([]Citation, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		c := citationFor(r.Unit, a.opts.PreviewRunes)
		key := c.key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func citationFor(u document.ContentUnit, previewRunes int) Citation {
	c := Citation{
		Filename:        u.SourceFilename,
		Page:            u.Page,
		ContentType:     string(u.ContentType),
		SectionTitle:    u.SectionTitle,
		TableChunkIndex: u.TableChunkIndex,
		Preview:         preview(u.Text, previewRunes),
	}
	if u.ContentType == document.ContentTableChunk {
		c.TablePage = u.Page
	}
	return c
}

func (c Citation) key() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		c.Filename, intKey(c.Page), c.ContentType, c.SectionTitle,
		intKey(c.TableChunkIndex), intKey(c.TablePage), c.Preview)
}

func intKey(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

// preview keeps the first n runes and always marks the cut.
func preview(text string, n int) string {
	r := []rune(text)
	if len(r) > n {
		r = r[:n]
	}
	return string(r) + "..."
}
