package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/auth"
	"github.com/ziadkadry99/docqa/internal/ingest"
	"github.com/ziadkadry99/docqa/internal/logging"
)

type registerRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	FullName string    `json:"full_name"`
	Role     auth.Role `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      auth.Role `json:"role"`
	Token     string    `json:"access_token,omitempty"`
	TokenType string    `json:"token_type,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{ID: u.Username, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowRegistration {
		writeError(w, r, fmt.Errorf("%w: registration is disabled", apperr.ErrForbidden))
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleReader
	}

	u, err := s.deps.Users.Create(r.Context(), req.Username, req.Password, req.FullName, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.audit(r, u.Username, audit.ActionRegister, "", string(u.Role))
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.deps.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		logging.FromContext(r.Context()).Warn("login failed", zap.String("username", req.Username))
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, err)
		return
	}
	token, exp, err := s.deps.Tokens.Issue(u)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := newUserResponse(u)
	resp.Token, resp.TokenType, resp.ExpiresAt = token, "bearer", exp
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload stages every multipart part named "file". Parts are
// streamed straight into staging; the first failure ends the request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, apperr.Validation("expected multipart/form-data: %v", err))
		return
	}

	tenantID := tenantOf(r)
	staged := []*ingest.StagedFile{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, r, apperr.Validation("reading multipart body: %v", err))
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		sf, err := s.deps.Ingest.Upload(r.Context(), tenantID, part.FileName(), part)
		part.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		staged = append(staged, sf)
	}

	if len(staged) == 0 {
		writeError(w, r, apperr.Validation(`no "file" parts in upload`))
		return
	}
	writeJSON(w, http.StatusOK, staged)
}

type filenamesRequest struct {
	Filenames []string `json:"filenames"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req filenamesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.deps.Ingest.Process(r.Context(), tenantOf(r), req.Filenames)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req filenamesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.deps.Ingest.Delete(r.Context(), tenantOf(r), req.Filenames)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type listResponse struct {
	TenantID string            `json:"user_id"`
	Files    []ingest.FileInfo `json:"files"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantOf(r)
	files, err := s.deps.Ingest.List(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []ingest.FileInfo{}
	}
	writeJSON(w, http.StatusOK, listResponse{TenantID: tenantID, Files: files})
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tenantID := tenantOf(r)
	ans, err := s.deps.Answerer.Answer(r.Context(), tenantID, req.Question, req.TopK)
	if err != nil {
		s.audit(r, tenantID, audit.ActionQuery, "", "error")
		writeError(w, r, err)
		return
	}
	outcome := "answered"
	if ans.ConfigurationError {
		outcome = "not_configured"
	}
	s.audit(r, tenantID, audit.ActionQuery, "", outcome)
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantOf(r)
	if err := s.deps.Ingest.Purge(r.Context(), tenantID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id": tenantID,
		"message": "All documents, embeddings and records removed.",
	})
}

func (s *Server) audit(r *http.Request, tenantID string, action audit.Action, filename, outcome string) {
	if s.deps.Audit == nil {
		return
	}
	err := s.deps.Audit.Log(r.Context(), audit.Entry{
		TenantID: tenantID,
		ActorID:  audit.ActorFrom(r.Context()),
		Action:   action,
		Filename: filename,
		Outcome:  outcome,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("writing audit entry", zap.Error(err))
	}
}
