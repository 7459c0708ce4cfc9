package vectordb

import (
	"context"

	"github.com/ziadkadry99/docqa/internal/document"
)

// ChunkStore is the per-tenant index of content units.
type ChunkStore interface {
	// Ready fails with apperr.ErrNotConfigured when the store cannot embed.
	Ready() error

	// Insert embeds and adds units to the tenant's index. Either every unit
	// becomes visible to readers or none does.
	Insert(ctx context.Context, tenantID string, units []document.ContentUnit) error

	// ReplaceSource inserts units for filename and then removes the units the
	// file had before, returning how many old units were dropped.
	ReplaceSource(ctx context.Context, tenantID, filename string, units []document.ContentUnit) (int, error)

	// DeleteBySource removes every unit whose source is one of filenames.
	// Each filename is attempted; per-filename outcomes are in the result.
	DeleteBySource(ctx context.Context, tenantID string, filenames []string) (*DeleteResult, error)

	// Search returns up to k units ordered by descending similarity.
	Search(ctx context.Context, tenantID, query string, k int) ([]SearchResult, error)

	// Exists reports whether the tenant has an index on disk.
	Exists(tenantID string) bool

	// Count returns the number of units in the tenant's index.
	Count(ctx context.Context, tenantID string) (int, error)

	// Purge destroys the tenant's index.
	Purge(ctx context.Context, tenantID string) error
}
