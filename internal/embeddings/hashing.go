package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashingDimensions is the vector size of the offline embedder.
const DefaultHashingDimensions = 512

// HashingEmbedder maps word unigrams and bigrams into a fixed-size vector
// with the hashing trick. It needs no model or network and is fully
// deterministic, so texts sharing vocabulary land close together.
type HashingEmbedder struct {
	dims      int
	token     *regexp.Regexp
	stopwords map[string]struct{}
}

// NewHashingEmbedder returns an embedder producing dims-dimensional vectors.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingEmbedder{
		dims:      dims,
		token:     regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords: stopwords(),
	}
}

func (e *HashingEmbedder) Name() string    { return "local/hashing" }
func (e *HashingEmbedder) Dimensions() int { return e.dims }

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashingEmbedder) vector(text string) []float32 {
	acc := make([]float64, e.dims)

	var prev string
	for _, tok := range e.token.FindAllString(strings.ToLower(text), -1) {
		if _, stop := e.stopwords[tok]; stop {
			prev = ""
			continue
		}
		e.add(acc, tok, 1)
		if prev != "" {
			e.add(acc, prev+" "+tok, 0.5)
		}
		prev = tok
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dims)
	if norm == 0 {
		// No usable tokens: a fixed unit vector keeps the result normalised.
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *HashingEmbedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	acc[idx] += weight
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has", "in",
		"is", "it", "its", "of", "on", "or", "that", "the", "to", "was", "were",
		"will", "with", "what", "which", "who", "how", "does", "do", "this",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
