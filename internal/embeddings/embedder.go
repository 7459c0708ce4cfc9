package embeddings

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

// Embedder turns texts into vectors. Implementations return one vector per
// input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// defaultBatchSize bounds how many texts go into one provider request.
const defaultBatchSize = 100

// embedInBatches splits texts into batches of at most size, calls fn for
// each and checks that every batch came back whole.
func embedInBatches(ctx context.Context, name string, texts []string, size int,
	fn func(ctx context.Context, batch []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if size <= 0 {
		size = defaultBatchSize
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := texts[i:min(i+size, len(texts))]
		vecs, err := fn(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", apperr.ErrUpstream, name, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
				apperr.ErrUpstream, name, len(vecs), len(batch))
		}
		for j, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: %s returned an empty vector for text %d",
					apperr.ErrUpstream, name, i+j)
			}
		}
		all = append(all, vecs...)
	}
	return all, nil
}
