package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/document"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/logging"
	"github.com/ziadkadry99/docqa/internal/tenant"
)

const (
	collectionName = "chunks"
	addConcurrency = 4
)

// ChromemStore implements ChunkStore with one persistent chromem-go DB per
// tenant, rooted at <root>/<tenant dir>.
type ChromemStore struct {
	root     string
	compress bool
	embedder embeddings.Embedder
	embedFn  chromem.EmbeddingFunc

	mu      sync.Mutex
	tenants map[string]*tenantIndex

	seqMu   sync.Mutex
	lastSeq int64
	now     func() time.Time
}

type tenantIndex struct {
	mu     sync.RWMutex
	db     *chromem.DB
	col    *chromem.Collection
	purged bool
}

// NewChromemStore creates a store rooted at root. A nil embedder yields a
// store whose every operation fails with apperr.ErrNotConfigured.
func NewChromemStore(root string, embedder embeddings.Embedder, compress bool) *ChromemStore {
	s := &ChromemStore{
		root:     root,
		compress: compress,
		embedder: embedder,
		tenants:  make(map[string]*tenantIndex),
		now:      time.Now,
	}
	if embedder != nil {
		s.embedFn = embeddings.ToChromemFunc(embedder)
	}
	return s
}

var _ ChunkStore = (*ChromemStore)(nil)

func (s *ChromemStore) Ready() error {
	if s.embedder == nil {
		return apperr.NotConfigured("embedding function")
	}
	return nil
}

func (s *ChromemStore) check(tenantID string) error {
	if err := s.Ready(); err != nil {
		return err
	}
	return tenant.Validate(tenantID)
}

func (s *ChromemStore) dir(tenantID string) string {
	return filepath.Join(s.root, tenant.Dir(tenantID))
}

// GetOrCreate opens the tenant's index from disk, creating it on first
// access.
func (s *ChromemStore) GetOrCreate(tenantID string) error {
	if err := s.check(tenantID); err != nil {
		return err
	}
	_, err := s.open(tenantID, true)
	return err
}

// open returns the cached index or loads it. With create false a tenant
// that has nothing on disk yields (nil, nil).
func (s *ChromemStore) open(tenantID string, create bool) (*tenantIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ti, ok := s.tenants[tenantID]; ok {
		return ti, nil
	}

	dir := s.dir(tenantID)
	if !create {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, nil
		}
	}

	db, err := chromem.NewPersistentDB(dir, s.compress)
	if err != nil {
		return nil, fmt.Errorf("opening index for tenant %q: %w", tenantID, err)
	}
	col, err := db.GetOrCreateCollection(collectionName, map[string]string{"tenant_id": tenantID}, s.embedFn)
	if err != nil {
		return nil, fmt.Errorf("creating collection for tenant %q: %w", tenantID, err)
	}

	ti := &tenantIndex{db: db, col: col}
	s.tenants[tenantID] = ti
	return ti, nil
}

// writable returns the tenant's index locked for writing.
func (s *ChromemStore) writable(tenantID string) (*tenantIndex, error) {
	for {
		ti, err := s.open(tenantID, true)
		if err != nil {
			return nil, err
		}
		ti.mu.Lock()
		if !ti.purged {
			return ti, nil
		}
		ti.mu.Unlock()
	}
}

// readable returns the tenant's index locked for reading, or nil when the
// tenant has no index.
func (s *ChromemStore) readable(tenantID string) (*tenantIndex, error) {
	for {
		ti, err := s.open(tenantID, false)
		if err != nil || ti == nil {
			return nil, err
		}
		ti.mu.RLock()
		if !ti.purged {
			return ti, nil
		}
		ti.mu.RUnlock()
	}
}

func (s *ChromemStore) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := max(s.lastSeq+1, s.now().UnixNano())
	s.lastSeq = seq
	return seq
}

func (s *ChromemStore) Insert(ctx context.Context, tenantID string, units []document.ContentUnit) error {
	if err := s.check(tenantID); err != nil {
		return err
	}
	if len(units) == 0 {
		return nil
	}
	if err := validateUnits(tenantID, "", units); err != nil {
		return err
	}

	docs, err := s.prepare(ctx, units)
	if err != nil {
		return err
	}

	ti, err := s.writable(tenantID)
	if err != nil {
		return err
	}
	defer ti.mu.Unlock()

	return s.add(ctx, ti, tenantID, docs)
}

func (s *ChromemStore) ReplaceSource(ctx context.Context, tenantID, filename string, units []document.ContentUnit) (int, error) {
	if err := s.check(tenantID); err != nil {
		return 0, err
	}
	if err := validateUnits(tenantID, filename, units); err != nil {
		return 0, err
	}

	docs, err := s.prepare(ctx, units)
	if err != nil {
		return 0, err
	}

	ti, err := s.writable(tenantID)
	if err != nil {
		return 0, err
	}
	defer ti.mu.Unlock()

	previous, err := s.idsFor(ctx, ti, filename)
	if err != nil {
		return 0, err
	}
	if len(docs) > 0 {
		if err := s.add(ctx, ti, tenantID, docs); err != nil {
			return 0, err
		}
	}
	if len(previous) == 0 {
		return 0, nil
	}

	if err := ti.col.Delete(context.WithoutCancel(ctx), nil, nil, previous...); err != nil {
		s.rollback(ctx, ti, tenantID, docs)
		return 0, fmt.Errorf("removing previous chunks of %q: %w", filename, err)
	}
	return len(previous), nil
}

// prepare embeds every unit up front so a provider failure adds nothing.
func (s *ChromemStore) prepare(ctx context.Context, units []document.ContentUnit) ([]chromem.Document, error) {
	if len(units) == 0 {
		return nil, nil
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(units), err)
	}
	if len(vecs) != len(units) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(units))
	}

	docs := make([]chromem.Document, len(units))
	for i, u := range units {
		docs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Metadata:  unitToMetadata(u, s.nextSeq()),
			Embedding: vecs[i],
			Content:   u.Text,
		}
	}
	return docs, nil
}

func (s *ChromemStore) add(ctx context.Context, ti *tenantIndex, tenantID string, docs []chromem.Document) error {
	if err := ti.col.AddDocuments(ctx, docs, addConcurrency); err != nil {
		s.rollback(ctx, ti, tenantID, docs)
		return fmt.Errorf("adding %d chunks for tenant %q: %w", len(docs), tenantID, err)
	}
	return nil
}

func (s *ChromemStore) rollback(ctx context.Context, ti *tenantIndex, tenantID string, docs []chromem.Document) {
	if len(docs) == 0 {
		return
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	if err := ti.col.Delete(context.WithoutCancel(ctx), nil, nil, ids...); err != nil {
		logging.FromContext(ctx).Error("rolling back chunk insert",
			zap.String("tenant_id", tenantID), zap.Int("chunks", len(ids)), zap.Error(err))
	}
}

// idsFor collects the ids of every chunk from filename. chromem has no
// metadata listing, so it queries with the filename as text, the whole
// collection as the limit and a source filter.
func (s *ChromemStore) idsFor(ctx context.Context, ti *tenantIndex, filename string) ([]string, error) {
	count := ti.col.Count()
	if count == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{filename})
	if err != nil {
		return nil, fmt.Errorf("embedding lookup key for %q: %w", filename, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for lookup key", len(vecs))
	}
	results, err := ti.col.QueryEmbedding(ctx, vecs[0], count, map[string]string{metaSource: filename}, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chunks of %q: %w", filename, err)
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *ChromemStore) DeleteBySource(ctx context.Context, tenantID string, filenames []string) (*DeleteResult, error) {
	if err := s.check(tenantID); err != nil {
		return nil, err
	}

	res := &DeleteResult{Sources: make([]SourceDeletion, 0, len(filenames)), Succeeded: true}

	if !s.Exists(tenantID) {
		for _, f := range filenames {
			res.Sources = append(res.Sources, SourceDeletion{Filename: f})
		}
		return res, nil
	}

	ti, err := s.writable(tenantID)
	if err != nil {
		return nil, err
	}
	defer ti.mu.Unlock()

	log := logging.FromContext(ctx)
	for _, f := range filenames {
		out := SourceDeletion{Filename: f}
		ids, err := s.idsFor(ctx, ti, f)
		if err == nil && len(ids) > 0 {
			if err = ti.col.Delete(ctx, nil, nil, ids...); err == nil {
				out.Removed = len(ids)
			}
		}
		if err != nil {
			out.Err = err
			res.Succeeded = false
			log.Warn("deleting chunks", zap.String("tenant_id", tenantID), zap.String("filename", f), zap.Error(err))
		}
		res.Sources = append(res.Sources, out)
	}
	return res, nil
}

func (s *ChromemStore) Search(ctx context.Context, tenantID, query string, k int) ([]SearchResult, error) {
	if err := s.check(tenantID); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, apperr.Validation("k must be at least 1, got %d", k)
	}

	ti, err := s.readable(tenantID)
	if err != nil || ti == nil {
		return nil, err
	}
	defer ti.mu.RUnlock()

	count := ti.col.Count()
	if count == 0 {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vecs))
	}

	results, err := queryThroughTies(ctx, ti.col, vecs[0], k, count)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		unit, seq := metadataToUnit(r.Content, r.Metadata)
		out[i] = SearchResult{Unit: unit, Similarity: r.Similarity, seq: seq}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].seq < out[j].seq
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// queryThroughTies fetches at least k results and keeps widening the query
// while the last fetched similarity still equals the k-th one, since chromem
// orders tied results arbitrarily.
func queryThroughTies(ctx context.Context, col *chromem.Collection, vec []float32, k, count int) ([]chromem.Result, error) {
	n := min(k+1, count)
	for {
		results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		if n >= count || len(results) <= k {
			return results, nil
		}
		if results[len(results)-1].Similarity != results[k-1].Similarity {
			return results, nil
		}
		n = min(n*2, count)
	}
}

func (s *ChromemStore) Exists(tenantID string) bool {
	if tenantID == "" {
		return false
	}
	s.mu.Lock()
	_, cached := s.tenants[tenantID]
	s.mu.Unlock()
	if cached {
		return true
	}
	_, err := os.Stat(s.dir(tenantID))
	return err == nil
}

func (s *ChromemStore) Count(ctx context.Context, tenantID string) (int, error) {
	if err := s.check(tenantID); err != nil {
		return 0, err
	}
	ti, err := s.readable(tenantID)
	if err != nil || ti == nil {
		return 0, err
	}
	defer ti.mu.RUnlock()
	return ti.col.Count(), nil
}

func (s *ChromemStore) Purge(ctx context.Context, tenantID string) error {
	if err := s.check(tenantID); err != nil {
		return err
	}

	// Holding s.mu keeps the index from being reopened mid-removal.
	s.mu.Lock()
	defer s.mu.Unlock()
	if ti := s.tenants[tenantID]; ti != nil {
		ti.mu.Lock()
		ti.purged = true
		ti.mu.Unlock()
		delete(s.tenants, tenantID)
	}

	if err := os.RemoveAll(s.dir(tenantID)); err != nil {
		return fmt.Errorf("removing index for tenant %q: %w", tenantID, err)
	}
	logging.FromContext(ctx).Info("purged tenant index", zap.String("tenant_id", tenantID))
	return nil
}

func validateUnits(tenantID, filename string, units []document.ContentUnit) error {
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return err
		}
		if u.TenantID != tenantID {
			return apperr.Validation("chunk from %q belongs to tenant %q, not %q", u.SourceFilename, u.TenantID, tenantID)
		}
		if filename != "" && u.SourceFilename != filename {
			return apperr.Validation("chunk source %q does not match %q", u.SourceFilename, filename)
		}
	}
	return nil
}
