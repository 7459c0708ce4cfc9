// Package auth manages docqa users and the bearer tokens that identify
// them. A user's username is also their tenant id.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/tenant"
)

// Role gates what a user may do with their own documents.
type Role string

const (
	// RoleAdmin may upload, process, delete and purge.
	RoleAdmin  Role = "admin"
	RoleReader Role = "reader"
)

// ValidRoles lists every accepted role.
var ValidRoles = []Role{RoleAdmin, RoleReader}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

const tsLayout = "2006-01-02 15:04:05.000000"

// User is a registered account. The password hash never leaves the store.
type User struct {
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users in SQLite.
type Store struct {
	db   *db.DB
	cost int
	now  func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, cost: bcrypt.DefaultCost, now: time.Now}
}

// Create registers a user. An existing username yields apperr.ErrConflict.
func (s *Store) Create(ctx context.Context, username, password, fullName string, role Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}
	if err := tenant.Validate(username); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid role %q, must be one of: %s, %s", role, RoleAdmin, RoleReader)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	created := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING`,
		username, fullName, string(hash), string(role), created.Format(tsLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user %q: %w", username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: username %q already exists", apperr.ErrConflict, username)
	}

	return &User{Username: username, FullName: fullName, Role: role, CreatedAt: created}, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both yield apperr.ErrUnauthorized.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, hash, err := s.get(ctx, username)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, fmt.Errorf("%w: incorrect username or password", apperr.ErrUnauthorized)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: incorrect username or password", apperr.ErrUnauthorized)
	}
	return u, nil
}

// Get returns a user by name.
func (s *Store) Get(ctx context.Context, username string) (*User, error) {
	u, _, err := s.get(ctx, username)
	return u, err
}

// List returns every user ordered by username.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username, full_name, role, created_at, password_hash FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, _, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Delete removes a user. Their documents are left to tenant purge.
func (s *Store) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("deleting user %q: %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user %q", username)
	}
	return nil
}

func (s *Store) get(ctx context.Context, username string) (*User, string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT username, full_name, role, created_at, password_hash FROM users WHERE username = ?", username)
	u, hash, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperr.NotFound("user %q", username)
	}
	return u, hash, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*User, string, error) {
	var (
		u        User
		role, ts string
		hash     string
	)
	if err := sc.Scan(&u.Username, &u.FullName, &role, &ts, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("scanning user: %w", err)
	}
	u.Role = Role(role)
	if t, err := time.Parse(tsLayout, ts); err == nil {
		u.CreatedAt = t
	} else if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		u.CreatedAt = t
	}
	return &u, hash, nil
}
