package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/decompose"
	"github.com/ziadkadry99/docqa/internal/document"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// fakeDecomposer returns three text sections and two table chunks for any
// file whose content is not "empty".
type fakeDecomposer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDecomposer) Decompose(_ context.Context, path, name, tenantID string) (*decompose.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res := &decompose.Result{}
	if strings.TrimSpace(string(data)) == "empty" {
		return res, nil
	}
	p := document.IntPtr(1)
	res.Units = []document.ContentUnit{
		document.NewTextSection(tenantID, name, "# Introduction\n\n"+string(data), "Introduction", p),
		document.NewTextSection(tenantID, name, "# Methods\n\nsurvey of refunds", "Methods", p),
		document.NewTextSection(tenantID, name, "# Results\n\nrefunds within 30 days", "Results", p),
		document.NewTableChunk(tenantID, name, "| 0 | 1 |\n|---|---|\n| a | b |", 2, 0, 0, document.ExtractorLayout),
		document.NewTableChunk(tenantID, name, "| 0 | 1 |\n|---|---|\n| c | d |", 2, 0, 1, document.ExtractorLayout),
	}
	res.TextSections, res.TableChunks = 3, 2
	return res, nil
}

// failingStore wraps a real store and fails ReplaceSource or DeleteBySource on demand.
type failingStore struct {
	vectordb.ChunkStore
	replaceErr error
	deleteErr  error
}

func (f *failingStore) ReplaceSource(ctx context.Context, tenantID, filename string, units []document.ContentUnit) (int, error) {
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}
	return f.ChunkStore.ReplaceSource(ctx, tenantID, filename, units)
}

func (f *failingStore) DeleteBySource(ctx context.Context, tenantID string, filenames []string) (*vectordb.DeleteResult, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return f.ChunkStore.DeleteBySource(ctx, tenantID, filenames)
}

type fixture struct {
	mgr     *Manager
	store   *failingStore
	dec     *fakeDecomposer
	layout  Layout
	records *Records
	audit   *audit.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	layout := Layout{
		StagingRoot:   filepath.Join(root, "staged_files"),
		ProcessedRoot: filepath.Join(root, "uploaded_files"),
	}
	store := &failingStore{ChunkStore: vectordb.NewChromemStore(filepath.Join(root, "vector_store"), embeddings.NewHashingEmbedder(64), false)}
	dec := &fakeDecomposer{}
	records := NewRecords(database)
	auditStore := audit.NewStore(database)

	mgr := NewManager(Config{
		Layout:            layout,
		Store:             store,
		Decomposer:        dec,
		Records:           records,
		Audit:             auditStore,
		MaxUploadBytes:    1024,
		AllowedExtensions: []string{".pdf", "txt"},
		MaxConcurrency:    2,
	})
	return &fixture{mgr: mgr, store: store, dec: dec, layout: layout, records: records, audit: auditStore}
}

func (f *fixture) upload(t *testing.T, tenantID, name, body string) {
	t.Helper()
	_, err := f.mgr.Upload(context.Background(), tenantID, name, strings.NewReader(body))
	require.NoError(t, err)
}

func TestUploadStagesFile(t *testing.T) {
	f := setup(t)
	ctx := audit.WithActor(context.Background(), "alice")

	staged, err := f.mgr.Upload(ctx, "alice", "policy.pdf", strings.NewReader("refund policy"))
	require.NoError(t, err)
	assert.Equal(t, f.layout.StagingPath("alice", "policy.pdf"), staged.StagingPath)
	assert.Equal(t, int64(13), staged.Size)

	data, err := os.ReadFile(staged.StagingPath)
	require.NoError(t, err)
	assert.Equal(t, "refund policy", string(data))

	rec, err := f.records.Get(ctx, "alice", "policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateStaged, rec.State)

	// Re-upload overwrites and leaves no temp files behind.
	_, err = f.mgr.Upload(ctx, "alice", "policy.pdf", strings.NewReader("v2"))
	require.NoError(t, err)
	data, _ = os.ReadFile(staged.StagingPath)
	assert.Equal(t, "v2", string(data))
	entries, _ := os.ReadDir(f.layout.StagingDir("alice"))
	assert.Len(t, entries, 1)

	logged, err := f.audit.Query(ctx, audit.QueryFilter{TenantID: "alice", Action: audit.ActionUpload})
	require.NoError(t, err)
	require.Len(t, logged, 2)
	assert.Equal(t, "alice", logged[0].ActorID)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, name := range []string{"", "../evil.pdf", "a/b.pdf", `a\b.pdf`, "..", ".hidden.pdf", "notes.exe"} {
		_, err := f.mgr.Upload(ctx, "alice", name, strings.NewReader("x"))
		assert.ErrorIs(t, err, apperr.ErrValidation, "name %q", name)
	}

	_, err := f.mgr.Upload(ctx, "alice", "big.pdf", strings.NewReader(strings.Repeat("x", 2048)))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, statErr := os.Stat(f.layout.StagingPath("alice", "big.pdf"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = f.mgr.Upload(ctx, "", "a.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// Extensions are matched case-insensitively.
	_, err = f.mgr.Upload(ctx, "alice", "SCAN.PDF", strings.NewReader("x"))
	assert.NoError(t, err)
}

func TestProcessCountsChunksAndArchives(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "policy.pdf", "refund policy")

	report, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)

	st := report.Files[0]
	assert.Equal(t, StatusProcessed, st.Status)
	assert.Equal(t, 5, st.TotalChunks)
	assert.Equal(t, 2, st.TableChunks)
	assert.Equal(t, 3, st.TextSections)
	assert.Equal(t, 5, report.TotalChunks)
	assert.Equal(t, 2, report.TableChunks)
	assert.Equal(t, 3, report.TextSections)

	_, err = os.Stat(f.layout.StagingPath("alice", "policy.pdf"))
	assert.True(t, os.IsNotExist(err), "staged copy should be moved")
	_, err = os.Stat(f.layout.ProcessedPath("alice", "policy.pdf"))
	assert.NoError(t, err)

	n, err := f.store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rec, err := f.records.Get(ctx, "alice", "policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, rec.State)
	assert.Equal(t, 5, rec.ChunkCount)
}

func TestProcessReportsEachFileInOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "a.pdf", "alpha")
	f.upload(t, "alice", "blank.txt", "empty")
	f.upload(t, "alice", "c.pdf", "gamma")

	report, err := f.mgr.Process(ctx, "alice", []string{"a.pdf", "missing.pdf", "blank.txt", "c.pdf", "../x.pdf"})
	require.NoError(t, err)
	require.Len(t, report.Files, 5)

	want := []ProcessStatus{StatusProcessed, StatusNotInStaging, StatusNoContent, StatusProcessed, StatusProcessError}
	for i, w := range want {
		assert.Equal(t, w, report.Files[i].Status, report.Files[i].Filename)
	}
	assert.Equal(t, 10, report.TotalChunks)
	assert.Contains(t, report.OverallMessage, "2 of 5")

	// Zero-unit files stay staged as processed_empty.
	_, err = os.Stat(f.layout.StagingPath("alice", "blank.txt"))
	assert.NoError(t, err)
	rec, err := f.records.Get(ctx, "alice", "blank.txt")
	require.NoError(t, err)
	assert.Equal(t, StateProcessedEmpty, rec.State)

	_, err = f.mgr.Process(ctx, "alice", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProcessKeepsStagedFileWhenInsertFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "policy.pdf", "refund policy")
	f.store.replaceErr = errors.New("index unavailable")

	report, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	st := report.Files[0]
	assert.Equal(t, StatusProcessError, st.Status)
	assert.Contains(t, st.Message, "index unavailable")
	assert.Zero(t, st.TotalChunks)

	_, err = os.Stat(f.layout.StagingPath("alice", "policy.pdf"))
	assert.NoError(t, err, "file must remain staged")
	_, err = os.Stat(f.layout.ProcessedPath("alice", "policy.pdf"))
	assert.True(t, os.IsNotExist(err))

	rec, err := f.records.Get(ctx, "alice", "policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Contains(t, rec.LastError, "index unavailable")

	// Retrying after the index recovers succeeds.
	f.store.replaceErr = nil
	report, err = f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, report.Files[0].Status)
}

func TestProcessExtractionErrorKeepsFileStaged(t *testing.T) {
	f := setup(t)
	f.upload(t, "alice", "broken.pdf", "%PDF garbage")
	f.dec.err = apperr.Extraction("broken.pdf", errors.New("no xref"))

	report, err := f.mgr.Process(context.Background(), "alice", []string{"broken.pdf"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessError, report.Files[0].Status)
	_, err = os.Stat(f.layout.StagingPath("alice", "broken.pdf"))
	assert.NoError(t, err)
}

func TestProcessCancelledBeforeInsert(t *testing.T) {
	f := setup(t)
	f.upload(t, "alice", "policy.pdf", "refund policy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessError, report.Files[0].Status)
	assert.Contains(t, report.Files[0].Message, "cancelled")

	// The record is written even though the request context is gone.
	rec, err := f.records.Get(context.Background(), "alice", "policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	_, err = os.Stat(f.layout.StagingPath("alice", "policy.pdf"))
	assert.NoError(t, err)
}

func TestReprocessReplacesChunks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.upload(t, "alice", "policy.pdf", "first version")
	_, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)

	f.upload(t, "alice", "policy.pdf", "second version")
	_, err = f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)

	n, err := f.store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "old chunks replaced, not duplicated")
}

func TestDeleteRemovesEmbeddingsAndFiles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "policy.pdf", "refund policy")
	_, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	f.upload(t, "alice", "draft.txt", "empty")

	report, err := f.mgr.Delete(ctx, "alice", []string{"policy.pdf", "draft.txt", "never.pdf"})
	require.NoError(t, err)
	require.Len(t, report.Files, 3)

	assert.Equal(t, StatusDeleted, report.Files[0].Status)
	assert.True(t, report.Files[0].EmbeddingsRemoved)
	assert.True(t, report.Files[0].FileRemoved)
	assert.Equal(t, 5, report.Files[0].ChunksRemoved)

	// A staged-only file is removed too.
	assert.Equal(t, StatusDeleted, report.Files[1].Status)
	_, err = os.Stat(f.layout.StagingPath("alice", "draft.txt"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, StatusNotInStorage, report.Files[2].Status)
	assert.True(t, report.Files[2].EmbeddingsRemoved)
	assert.False(t, report.Files[2].FileRemoved)

	n, _ := f.store.Count(ctx, "alice")
	assert.Zero(t, n)

	_, err = f.records.Get(ctx, "alice", "policy.pdf")
	assert.True(t, apperr.IsNotFound(err))

	// Deleting again is harmless.
	again, err := f.mgr.Delete(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	assert.Equal(t, StatusNotInStorage, again.Files[0].Status)
}

func TestDeleteKeepsFileWhenEmbeddingsFail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "policy.pdf", "refund policy")
	_, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)

	f.store.deleteErr = errors.New("index locked")
	report, err := f.mgr.Delete(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)

	st := report.Files[0]
	assert.Equal(t, StatusEmbeddingsError, st.Status)
	assert.False(t, st.EmbeddingsRemoved)
	assert.False(t, st.FileRemoved)
	assert.Equal(t, "Deletion process completed with some errors.", report.OverallMessage)

	_, err = os.Stat(f.layout.ProcessedPath("alice", "policy.pdf"))
	assert.NoError(t, err)
}

func TestListMergesStagesAndRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "b.pdf", "beta")
	f.upload(t, "alice", "a.txt", "alpha")
	_, err := f.mgr.Process(ctx, "alice", []string{"b.pdf"})
	require.NoError(t, err)

	files, err := f.mgr.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, StageStaged, files[0].Stage)
	assert.Equal(t, StateStaged, files[0].State)
	assert.Equal(t, "txt", files[0].FileType)

	assert.Equal(t, "b.pdf", files[1].Filename)
	assert.Equal(t, StageProcessed, files[1].Stage)
	assert.Equal(t, StateIndexed, files[1].State)
	assert.Equal(t, 5, files[1].ChunkCount)

	other, err := f.mgr.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecoverInterrupted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.records.Put(ctx, Record{TenantID: "alice", Filename: "a.pdf", State: StateProcessing}))
	require.NoError(t, f.records.Put(ctx, Record{TenantID: "alice", Filename: "b.pdf", State: StateIndexed}))

	n, err := f.mgr.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.records.Get(ctx, "alice", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	rec, _ = f.records.Get(ctx, "alice", "b.pdf")
	assert.Equal(t, StateIndexed, rec.State)
}

func TestPurgeRemovesEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "alice", "a.pdf", "alpha")
	_, err := f.mgr.Process(ctx, "alice", []string{"a.pdf"})
	require.NoError(t, err)
	f.upload(t, "alice", "b.pdf", "beta")
	f.upload(t, "bob", "c.pdf", "gamma")

	require.NoError(t, f.mgr.Purge(ctx, "alice"))

	files, err := f.mgr.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.False(t, f.store.Exists("alice"))
	recs, _ := f.records.List(ctx, "alice")
	assert.Empty(t, recs)

	bobFiles, _ := f.mgr.List(ctx, "bob")
	assert.Len(t, bobFiles, 1)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var k keyedMutex
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, k.locks)
}

func TestProcessFailsFastWithoutEmbedder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.store.ChunkStore = vectordb.NewChromemStore(t.TempDir(), nil, false)
	f.upload(t, "alice", "policy.pdf", "refund policy")

	report, err := f.mgr.Process(ctx, "alice", []string{"policy.pdf"})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)

	st := report.Files[0]
	assert.Equal(t, StatusProcessError, st.Status)
	assert.Contains(t, st.Message, "index unavailable")
	assert.Zero(t, f.dec.calls, "decomposer must not run without an embedder")

	_, err = os.Stat(f.layout.StagingPath("alice", "policy.pdf"))
	assert.NoError(t, err, "file stays staged")

	rec, err := f.records.Get(ctx, "alice", "policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
}

func TestProcessAndDeleteRaceLeavesNoDanglingState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := range 10 {
		name := fmt.Sprintf("race%d.pdf", i)
		f.upload(t, "alice", name, "refund policy "+name)

		var (
			wg      sync.WaitGroup
			process *ProcessReport
			del     *DeleteReport
			perr    error
			derr    error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			process, perr = f.mgr.Process(ctx, "alice", []string{name})
		}()
		go func() {
			defer wg.Done()
			del, derr = f.mgr.Delete(ctx, "alice", []string{name})
		}()
		wg.Wait()
		require.NoError(t, perr)
		require.NoError(t, derr)

		// Either order deletes a file that existed somewhere.
		assert.Equal(t, StatusDeleted, del.Files[0].Status, name)
		assert.Contains(t, []ProcessStatus{StatusProcessed, StatusNotInStaging}, process.Files[0].Status, name)

		for _, p := range []string{f.layout.StagingPath("alice", name), f.layout.ProcessedPath("alice", name)} {
			_, err := os.Stat(p)
			assert.True(t, os.IsNotExist(err), "dangling file %s", p)
		}
		_, err := f.records.Get(ctx, "alice", name)
		assert.True(t, apperr.IsNotFound(err), "dangling record for %s", name)
	}

	n, err := f.store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n, "no chunks may survive a delete")
}
