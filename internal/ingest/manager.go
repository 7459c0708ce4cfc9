// Package ingest moves uploaded files through staging, decomposition and
// indexing, and deletes them again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/decompose"
	"github.com/ziadkadry99/docqa/internal/logging"
	"github.com/ziadkadry99/docqa/internal/tenant"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// DefaultMaxConcurrency bounds how many files one Process call handles at once.
const DefaultMaxConcurrency = 4

// Decomposer turns a staged file into content units.
type Decomposer interface {
	Decompose(ctx context.Context, path, displayName, tenantID string) (*decompose.Result, error)
}

// Config wires a Manager.
type Config struct {
	Layout     Layout
	Store      vectordb.ChunkStore
	Decomposer Decomposer
	Records    *Records
	// Audit is optional.
	Audit *audit.Store

	MaxUploadBytes    int64
	AllowedExtensions []string
	MaxConcurrency    int
}

// Manager implements the staged upload / process / delete lifecycle.
type Manager struct {
	layout     Layout
	store      vectordb.ChunkStore
	decomposer Decomposer
	records    *Records
	audit      *audit.Store

	maxUpload   int64
	extensions  []string
	concurrency int

	locks keyedMutex
}

// NewManager creates a Manager from cfg.
func NewManager(cfg Config) *Manager {
	exts := make([]string, 0, len(cfg.AllowedExtensions))
	for _, e := range cfg.AllowedExtensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrency
	}
	return &Manager{
		layout:      cfg.Layout,
		store:       cfg.Store,
		decomposer:  cfg.Decomposer,
		records:     cfg.Records,
		audit:       cfg.Audit,
		maxUpload:   cfg.MaxUploadBytes,
		extensions:  exts,
		concurrency: concurrency,
	}
}

// ValidateFilename rejects names that could escape the tenant directory or
// that no loader handles.
func (m *Manager) ValidateFilename(name string) error {
	if name == "" {
		return apperr.Validation("filename is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") ||
		strings.ContainsRune(name, 0) || filepath.Base(name) != name {
		return apperr.Validation("invalid filename %q", name)
	}
	if strings.HasPrefix(name, ".") {
		return apperr.Validation("hidden files are not accepted: %q", name)
	}
	if len(m.extensions) > 0 && !slices.Contains(m.extensions, strings.ToLower(filepath.Ext(name))) {
		return apperr.Validation("unsupported file type %q; allowed: %s", filepath.Ext(name), strings.Join(m.extensions, ", "))
	}
	return nil
}

// Upload writes r into the tenant's staging area, replacing any staged file
// of the same name.
func (m *Manager) Upload(ctx context.Context, tenantID, filename string, r io.Reader) (*StagedFile, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	if err := m.ValidateFilename(filename); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(fileKey(tenantID, filename))
	defer unlock()

	dir := m.layout.StagingDir(tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	size, err := m.writeAtomic(dir, filename, r)
	if err != nil {
		return nil, err
	}

	staged := &StagedFile{
		TenantID:    tenantID,
		Filename:    filename,
		StagingPath: m.layout.StagingPath(tenantID, filename),
		Size:        size,
		Message:     "File staged successfully. Call process to index it.",
	}

	wctx := context.WithoutCancel(ctx)
	if err := m.records.Put(wctx, Record{TenantID: tenantID, Filename: filename, State: StateStaged, SizeBytes: size}); err != nil {
		logging.FromContext(ctx).Error("recording staged file", zap.String("tenant_id", tenantID), zap.String("filename", filename), zap.Error(err))
	}
	m.logAudit(wctx, tenantID, audit.ActionUpload, filename, string(StateStaged), fmt.Sprintf("%d bytes", size))

	logging.FromContext(ctx).Info("file staged",
		zap.String("tenant_id", tenantID), zap.String("filename", filename), zap.Int64("bytes", size))
	return staged, nil
}

// writeAtomic copies r into a temp file in dir and renames it into place,
// so readers never see a partial upload.
func (m *Manager) writeAtomic(dir, filename string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	src := r
	if m.maxUpload > 0 {
		src = io.LimitReader(r, m.maxUpload+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing %q: %w", filename, err)
	}
	if m.maxUpload > 0 && n > m.maxUpload {
		tmp.Close()
		return 0, apperr.Validation("%q exceeds the upload limit of %d bytes", filename, m.maxUpload)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("syncing %q: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %q: %w", filename, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, filename)); err != nil {
		return 0, fmt.Errorf("moving %q into staging: %w", filename, err)
	}
	return n, nil
}

// Process decomposes and indexes each staged file. Every filename gets a
// status, in request order; the error is reserved for invalid requests.
func (m *Manager) Process(ctx context.Context, tenantID string, filenames []string) (*ProcessReport, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	if len(filenames) == 0 {
		return nil, apperr.Validation("no filenames provided for processing")
	}

	report := &ProcessReport{TenantID: tenantID, Files: make([]FileProcessStatus, len(filenames))}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, name := range filenames {
		g.Go(func() error {
			report.Files[i] = m.processOne(ctx, tenantID, name)
			return nil
		})
	}
	_ = g.Wait()

	report.summarize()
	return report, nil
}

func (m *Manager) processOne(ctx context.Context, tenantID, filename string) FileProcessStatus {
	log := logging.FromContext(ctx).With(zap.String("tenant_id", tenantID), zap.String("filename", filename))
	wctx := context.WithoutCancel(ctx)
	st := FileProcessStatus{Filename: filename}

	fail := func(msg string, err error) FileProcessStatus {
		st.Status = StatusProcessError
		st.Message = msg
		if err != nil {
			st.Message = fmt.Sprintf("%s: %v", msg, err)
		}
		log.Error("processing failed", zap.String("reason", msg), zap.Error(err))
		if rerr := m.records.SetState(wctx, tenantID, filename, StateFailed, st.Message); rerr != nil {
			log.Error("recording failure", zap.Error(rerr))
		}
		m.logAudit(wctx, tenantID, audit.ActionProcess, filename, string(st.Status), st.Message)
		return st
	}

	if err := m.ValidateFilename(filename); err != nil {
		st.Status = StatusProcessError
		st.Message = err.Error()
		return st
	}

	unlock := m.locks.Lock(fileKey(tenantID, filename))
	defer unlock()

	path := m.layout.StagingPath(tenantID, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		st.Status = StatusNotInStaging
		st.Message = "File not found in staging area."
		m.logAudit(wctx, tenantID, audit.ActionProcess, filename, string(st.Status), "")
		return st
	}

	if ctx.Err() != nil {
		return fail("cancelled", nil)
	}
	if err := m.store.Ready(); err != nil {
		return fail("index unavailable", err)
	}

	prev, err := m.records.Get(wctx, tenantID, filename)
	if err != nil {
		prev = &Record{TenantID: tenantID, Filename: filename}
	}
	prev.State = StateProcessing
	prev.SizeBytes = info.Size()
	prev.LastError = ""
	if err := m.records.Put(wctx, *prev); err != nil {
		log.Error("recording processing state", zap.Error(err))
	}

	log.Info("processing file")
	res, err := m.decomposer.Decompose(ctx, path, filename, tenantID)
	if err != nil {
		return fail("could not extract content", err)
	}

	st.TotalChunks = res.Total()
	st.TextSections = res.TextSections
	st.TableChunks = res.TableChunks

	if res.Total() == 0 {
		st.Status = StatusNoContent
		st.Message = "File has no processable content (text/tables); it stays in staging."
		rec := Record{TenantID: tenantID, Filename: filename, State: StateProcessedEmpty, SizeBytes: info.Size()}
		if err := m.records.Put(wctx, rec); err != nil {
			log.Error("recording empty result", zap.Error(err))
		}
		m.logAudit(wctx, tenantID, audit.ActionProcess, filename, string(st.Status), "")
		log.Warn("no processable content")
		return st
	}

	if ctx.Err() != nil {
		st.TotalChunks, st.TextSections, st.TableChunks = 0, 0, 0
		return fail("cancelled", nil)
	}

	replaced, err := m.store.ReplaceSource(ctx, tenantID, filename, res.Units)
	if err != nil {
		st.TotalChunks, st.TextSections, st.TableChunks = 0, 0, 0
		return fail("could not add chunks to the index", err)
	}

	rec := Record{
		TenantID:     tenantID,
		Filename:     filename,
		State:        StateIndexed,
		SizeBytes:    info.Size(),
		ChunkCount:   res.Total(),
		TextSections: res.TextSections,
		TableChunks:  res.TableChunks,
	}

	st.Status = StatusProcessed
	st.Message = "File processed and indexed successfully."
	if err := m.archive(tenantID, filename); err != nil {
		st.Status = StatusIndexedNotMove
		st.Message = fmt.Sprintf("Indexed, but the file could not be moved out of staging: %v", err)
		rec.Inconsistency = st.Message
		log.Error("archiving indexed file", zap.Error(err))
	}

	if err := m.records.Put(wctx, rec); err != nil {
		log.Error("recording indexed state", zap.Error(err))
	}
	m.logAudit(wctx, tenantID, audit.ActionProcess, filename, string(st.Status),
		fmt.Sprintf("%d chunks (%d text, %d table), %d replaced", st.TotalChunks, st.TextSections, st.TableChunks, replaced))
	log.Info("file indexed", zap.Int("chunks", st.TotalChunks), zap.Int("replaced", replaced))
	return st
}

func (m *Manager) archive(tenantID, filename string) error {
	if err := os.MkdirAll(m.layout.ProcessedDir(tenantID), 0o755); err != nil {
		return err
	}
	return os.Rename(m.layout.StagingPath(tenantID, filename), m.layout.ProcessedPath(tenantID, filename))
}

// Delete removes each file's chunks and then the file itself. A file whose
// chunks could not be removed is kept.
func (m *Manager) Delete(ctx context.Context, tenantID string, filenames []string) (*DeleteReport, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	if len(filenames) == 0 {
		return nil, apperr.Validation("no filenames provided for deletion")
	}

	log := logging.FromContext(ctx).With(zap.String("tenant_id", tenantID))
	wctx := context.WithoutCancel(ctx)
	report := &DeleteReport{TenantID: tenantID, Files: make([]FileDeleteStatus, len(filenames))}

	var valid []string
	for i, name := range filenames {
		report.Files[i].Filename = name
		if err := m.ValidateFilename(name); err != nil {
			report.Files[i].Status = StatusNotInStorage
			report.Files[i].Message = err.Error()
			continue
		}
		if !slices.Contains(valid, name) {
			valid = append(valid, name)
		}
	}

	// Locks are taken in sorted order so concurrent deletes cannot deadlock.
	sorted := slices.Clone(valid)
	sort.Strings(sorted)
	for _, name := range sorted {
		unlock := m.locks.Lock(fileKey(tenantID, name))
		defer unlock()
	}

	var (
		result   *vectordb.DeleteResult
		storeErr error
	)
	if len(valid) > 0 {
		result, storeErr = m.store.DeleteBySource(ctx, tenantID, valid)
	}

	for i := range report.Files {
		fs := &report.Files[i]
		if fs.Status != "" {
			continue
		}

		if storeErr != nil {
			fs.Status = StatusEmbeddingsError
			fs.Message = fmt.Sprintf("Could not delete embeddings; file kept: %v", storeErr)
			continue
		}
		outcome, _ := result.For(fs.Filename)
		if outcome.Err != nil {
			fs.Status = StatusEmbeddingsError
			fs.Message = fmt.Sprintf("Could not delete embeddings; file kept: %v", outcome.Err)
			continue
		}
		fs.EmbeddingsRemoved = true
		fs.ChunksRemoved = outcome.Removed

		found, err := m.removeFiles(tenantID, fs.Filename)
		switch {
		case err != nil:
			fs.Status = StatusStorageError
			fs.Message = fmt.Sprintf("Embeddings deleted, but file system deletion failed: %v", err)
		case !found:
			fs.Status = StatusNotInStorage
			fs.Message = "Embeddings removed (if existed), file not found in storage."
		default:
			fs.Status = StatusDeleted
			fs.FileRemoved = true
			fs.Message = "Deleted from storage and vector store."
		}

		if fs.Status != StatusStorageError {
			if err := m.records.Delete(wctx, tenantID, fs.Filename); err != nil {
				log.Error("deleting ingestion record", zap.String("filename", fs.Filename), zap.Error(err))
			}
		}
	}

	for _, fs := range report.Files {
		m.logAudit(wctx, tenantID, audit.ActionDelete, fs.Filename, string(fs.Status), fs.Message)
		if fs.Status == StatusStorageError || fs.Status == StatusEmbeddingsError {
			log.Error("delete failed", zap.String("filename", fs.Filename), zap.String("status", string(fs.Status)), zap.String("message", fs.Message))
		}
	}

	report.summarize()
	return report, nil
}

// removeFiles deletes the processed copy and any lingering staged copy.
func (m *Manager) removeFiles(tenantID, filename string) (bool, error) {
	found := false
	for _, p := range []string{m.layout.ProcessedPath(tenantID, filename), m.layout.StagingPath(tenantID, filename)} {
		err := os.Remove(p)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return found, err
		}
	}
	return found, nil
}

// List returns the tenant's staged and processed files with their state.
func (m *Manager) List(ctx context.Context, tenantID string) ([]FileInfo, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return nil, err
	}

	records, err := m.records.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Record, len(records))
	for _, r := range records {
		byName[r.Filename] = r
	}

	var out []FileInfo
	for _, src := range []struct {
		dir   string
		stage Stage
	}{
		{m.layout.ProcessedDir(tenantID), StageProcessed},
		{m.layout.StagingDir(tenantID), StageStaged},
	} {
		entries, err := os.ReadDir(src.dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s files: %w", src.stage, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			fi := FileInfo{
				Filename:   e.Name(),
				Size:       info.Size(),
				ModifiedAt: info.ModTime().UTC(),
				FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(e.Name())), "."),
				Stage:      src.stage,
			}
			if rec, ok := byName[e.Name()]; ok {
				fi.State = rec.State
				fi.LastError = rec.LastError
				if src.stage == StageProcessed || rec.State == StateIndexed {
					fi.ChunkCount = rec.ChunkCount
				}
			}
			out = append(out, fi)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Filename != out[j].Filename {
			return out[i].Filename < out[j].Filename
		}
		return out[i].Stage < out[j].Stage
	})
	return out, nil
}

// RecoverInterrupted marks files left in processing by a previous run as
// failed. Their staged copies are untouched so they can be processed again.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	stuck, err := m.records.MarkInterrupted(ctx)
	if err != nil {
		return 0, fmt.Errorf("recovering interrupted ingestion: %w", err)
	}
	for _, r := range stuck {
		m.logAudit(ctx, r.TenantID, audit.ActionRecover, r.Filename, string(StateFailed), r.LastError)
		logging.FromContext(ctx).Warn("marked interrupted file as failed",
			zap.String("tenant_id", r.TenantID), zap.String("filename", r.Filename))
	}
	return len(stuck), nil
}

// Purge destroys everything the tenant owns: index, files and records.
func (m *Manager) Purge(ctx context.Context, tenantID string) error {
	if err := tenant.Validate(tenantID); err != nil {
		return err
	}
	if err := m.store.Purge(ctx, tenantID); err != nil {
		return err
	}
	for _, dir := range []string{m.layout.StagingDir(tenantID), m.layout.ProcessedDir(tenantID)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	if err := m.records.DeleteTenant(ctx, tenantID); err != nil {
		return err
	}
	m.logAudit(context.WithoutCancel(ctx), tenantID, audit.ActionPurge, "", "purged", "")
	logging.FromContext(ctx).Info("tenant purged", zap.String("tenant_id", tenantID))
	return nil
}

func (m *Manager) logAudit(ctx context.Context, tenantID string, action audit.Action, filename, outcome, detail string) {
	if m.audit == nil {
		return
	}
	err := m.audit.Log(ctx, audit.Entry{
		TenantID: tenantID,
		ActorID:  audit.ActorFrom(ctx),
		Action:   action,
		Filename: filename,
		Outcome:  outcome,
		Detail:   detail,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("writing audit entry", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
