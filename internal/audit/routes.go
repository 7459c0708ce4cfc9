package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/docqa/internal/apperr"
)

// TenantFunc resolves the tenant that owns a request.
type TenantFunc func(*http.Request) string

// RegisterRoutes mounts audit endpoints under /audit on the given router.
// Entries are always scoped to the requesting tenant.
func RegisterRoutes(r chi.Router, store *Store, tenantOf TenantFunc) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", handleQuery(store, tenantOf))
		r.Get("/{id}", handleGetByID(store, tenantOf))
	})
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func handleQuery(store *Store, tenantOf TenantFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFrom(r, tenantOf(r))
		if err != nil {
			writeError(w, err)
			return
		}
		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// filterFrom reads actor, action, filename, since, until (RFC 3339), limit
// and offset from the query string.
func filterFrom(r *http.Request, tenantID string) (QueryFilter, error) {
	q := r.URL.Query()
	f := QueryFilter{
		TenantID: tenantID,
		ActorID:  q.Get("actor"),
		Action:   Action(q.Get("action")),
		Filename: q.Get("filename"),
		Limit:    defaultQueryLimit,
	}

	var err error
	if f.Since, err = timeParam(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Until, err = timeParam(q.Get("until"), "until"); err != nil {
		return f, err
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, apperr.Validation("limit must be a positive integer")
		}
		f.Limit = min(n, maxQueryLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperr.Validation("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func timeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Validation("%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

func handleGetByID(store *Store, tenantOf TenantFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		entry, err := store.GetByID(r.Context(), tenantOf(r), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, entry)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case apperr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
