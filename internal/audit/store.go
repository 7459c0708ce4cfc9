package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/db"
)

const tsLayout = "2006-01-02 15:04:05.000000"

// Store provides persistence for audit entries.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Log inserts a new audit entry. If entry.ID is empty a UUID is generated,
// and a zero Timestamp is set to now.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.ActorID == "" {
		entry.ActorID = SystemActor
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, timestamp, tenant_id, actor_id, action, filename, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(tsLayout),
		entry.TenantID,
		entry.ActorID,
		string(entry.Action),
		entry.Filename,
		entry.Outcome,
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, timestamp, tenant_id, actor_id, action, filename, outcome, detail FROM audit_entries"

// GetByID retrieves a single audit entry of the tenant.
func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ? AND tenant_id = ?", id, tenantID)
	e, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("audit entry %q", id)
	}
	return e, err
}

// QueryFilter controls which audit entries are returned by Query.
// TenantID is required.
type QueryFilter struct {
	TenantID string
	ActorID  string
	Action   Action
	Filename string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	if filter.TenantID == "" {
		return nil, apperr.Validation("audit query needs a tenant")
	}

	clauses := []string{"tenant_id = ?"}
	args := []any{filter.TenantID}

	if filter.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Filename != "" {
		clauses = append(clauses, "filename = ?")
		args = append(args, filter.Filename)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(tsLayout))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(tsLayout))
	}

	query := selectColumns + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteTenant removes every entry of the tenant.
func (s *Store) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_entries WHERE tenant_id = ?", tenantID)
	if err != nil {
		return 0, fmt.Errorf("deleting audit entries of %q: %w", tenantID, err)
	}
	return res.RowsAffected()
}

// DeleteBefore removes all audit entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_entries WHERE timestamp < ?",
		before.UTC().Format(tsLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old audit entries: %w", err)
	}
	return res.RowsAffected()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Entry, error) {
	var (
		e          Entry
		ts, action string
	)
	err := sc.Scan(&e.ID, &ts, &e.TenantID, &e.ActorID, &action, &e.Filename, &e.Outcome, &e.Detail)
	if err != nil {
		return nil, err
	}
	e.Action = Action(action)
	if t, parseErr := time.Parse(tsLayout, ts); parseErr == nil {
		e.Timestamp = t
	} else if t, parseErr := time.Parse(time.RFC3339Nano, ts); parseErr == nil {
		e.Timestamp = t
	}
	return &e, nil
}
