package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/db"
)

// State is where a file sits in the ingestion lifecycle.
type State string

const (
	StateStaged         State = "staged"
	StateProcessing     State = "processing"
	StateIndexed        State = "indexed"
	StateProcessedEmpty State = "processed_empty"
	StateFailed         State = "failed"
)

const tsLayout = "2006-01-02 15:04:05.000000"

// Record is the persisted ingestion state of one (tenant, filename).
type Record struct {
	TenantID      string    `json:"tenant_id"`
	Filename      string    `json:"filename"`
	State         State     `json:"state"`
	SizeBytes     int64     `json:"size_bytes"`
	ChunkCount    int       `json:"chunk_count"`
	TextSections  int       `json:"text_sections"`
	TableChunks   int       `json:"table_chunks"`
	LastError     string    `json:"last_error,omitempty"`
	Inconsistency string    `json:"inconsistency,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Records stores ingestion records in SQLite.
type Records struct {
	db  *db.DB
	now func() time.Time
}

// NewRecords creates a Records store backed by the given database.
func NewRecords(database *db.DB) *Records {
	return &Records{db: database, now: time.Now}
}

// Put inserts or replaces the record for (rec.TenantID, rec.Filename).
func (r *Records) Put(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingested_files (tenant_id, filename, state, size_bytes, chunk_count,
			text_sections, table_chunks, last_error, inconsistency, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, filename) DO UPDATE SET
			state = excluded.state,
			size_bytes = excluded.size_bytes,
			chunk_count = excluded.chunk_count,
			text_sections = excluded.text_sections,
			table_chunks = excluded.table_chunks,
			last_error = excluded.last_error,
			inconsistency = excluded.inconsistency,
			updated_at = excluded.updated_at`,
		rec.TenantID, rec.Filename, string(rec.State), rec.SizeBytes, rec.ChunkCount,
		rec.TextSections, rec.TableChunks, rec.LastError, rec.Inconsistency,
		r.now().UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("saving ingestion record %s/%s: %w", rec.TenantID, rec.Filename, err)
	}
	return nil
}

// SetState changes only the state and error of an existing record, creating
// a bare record when none exists.
func (r *Records) SetState(ctx context.Context, tenantID, filename string, state State, lastErr string) error {
	rec, err := r.Get(ctx, tenantID, filename)
	if apperr.IsNotFound(err) {
		rec = &Record{TenantID: tenantID, Filename: filename}
	} else if err != nil {
		return err
	}
	rec.State = state
	rec.LastError = lastErr
	return r.Put(ctx, *rec)
}

const recordColumns = `SELECT tenant_id, filename, state, size_bytes, chunk_count, text_sections,
	table_chunks, last_error, inconsistency, updated_at FROM ingested_files`

// Get returns the record for (tenantID, filename).
func (r *Records) Get(ctx context.Context, tenantID, filename string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, recordColumns+" WHERE tenant_id = ? AND filename = ?", tenantID, filename)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no ingestion record for %q", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("reading ingestion record: %w", err)
	}
	return rec, nil
}

// List returns the tenant's records ordered by filename.
func (r *Records) List(ctx context.Context, tenantID string) ([]Record, error) {
	return r.query(ctx, recordColumns+" WHERE tenant_id = ? ORDER BY filename", tenantID)
}

// Delete removes the record for (tenantID, filename).
func (r *Records) Delete(ctx context.Context, tenantID, filename string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM ingested_files WHERE tenant_id = ? AND filename = ?", tenantID, filename); err != nil {
		return fmt.Errorf("deleting ingestion record: %w", err)
	}
	return nil
}

// DeleteTenant removes every record of the tenant.
func (r *Records) DeleteTenant(ctx context.Context, tenantID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM ingested_files WHERE tenant_id = ?", tenantID); err != nil {
		return fmt.Errorf("deleting ingestion records of %q: %w", tenantID, err)
	}
	return nil
}

// MarkInterrupted moves every record stuck in processing to failed and
// returns the affected records.
func (r *Records) MarkInterrupted(ctx context.Context) ([]Record, error) {
	stuck, err := r.query(ctx, recordColumns+" WHERE state = ?", string(StateProcessing))
	if err != nil {
		return nil, err
	}
	for i := range stuck {
		stuck[i].State = StateFailed
		stuck[i].LastError = "interrupted while processing"
		if err := r.Put(ctx, stuck[i]); err != nil {
			return nil, err
		}
	}
	return stuck, nil
}

func (r *Records) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ingestion records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ingestion record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec          Record
		state, stamp string
	)
	err := sc.Scan(&rec.TenantID, &rec.Filename, &state, &rec.SizeBytes, &rec.ChunkCount,
		&rec.TextSections, &rec.TableChunks, &rec.LastError, &rec.Inconsistency, &stamp)
	if err != nil {
		return nil, err
	}
	rec.State = State(state)
	if t, perr := time.Parse(tsLayout, stamp); perr == nil {
		rec.UpdatedAt = t
	} else if t, perr := time.Parse(time.RFC3339Nano, stamp); perr == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}
