package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/auth"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/decompose"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/ingest"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// fakeLLM answers from the prompt: it reports "not found" when the context
// is empty and otherwise quotes the safety training policy.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if strings.Contains(prompt, "(no relevant documents were found)") {
		return &llm.CompletionResponse{Content: "I couldn't find the answer in the documents."}, nil
	}
	return &llm.CompletionResponse{Content: "Per policy.pdf, safety training is mandatory for all staff every year."}, nil
}

type testEnv struct {
	srv    *Server
	users  *auth.Store
	tokens *auth.Tokens
	llm    *fakeLLM
}

func newTestEnv(t *testing.T, withLLM bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store := vectordb.NewChromemStore(filepath.Join(root, "vector_store"), embeddings.NewHashingEmbedder(256), false)
	auditStore := audit.NewStore(database)
	mgr := ingest.NewManager(ingest.Config{
		Layout: ingest.Layout{
			StagingRoot:   filepath.Join(root, "staged_files"),
			ProcessedRoot: filepath.Join(root, "uploaded_files"),
		},
		Store:             store,
		Decomposer:        decompose.New(loader.TextLoader{}, nil),
		Records:           ingest.NewRecords(database),
		Audit:             auditStore,
		MaxUploadBytes:    1 << 20,
		AllowedExtensions: []string{".pdf", ".txt"},
	})

	fake := &fakeLLM{}
	var provider llm.Provider
	if withLLM {
		provider = fake
	}
	tokens, err := auth.NewTokens([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	users := auth.NewStore(database)

	srv := New(Config{AllowRegistration: true}, Deps{
		Ingest:   mgr,
		Answerer: rag.NewAnswerer(store, provider, rag.Options{}),
		Users:    users,
		Tokens:   tokens,
		Audit:    auditStore,
	})
	return &testEnv{srv: srv, users: users, tokens: tokens, llm: fake}
}

func (e *testEnv) token(t *testing.T, username string, role auth.Role) string {
	t.Helper()
	u, err := e.users.Create(context.Background(), username, "pw-"+username, "", role)
	require.NoError(t, err)
	tok, _, err := e.tokens.Issue(u)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, token string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

const policyText = `Introduction
This policy describes workplace safety obligations.

Safety Training
All staff must complete safety training every year before operating equipment.`

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, true)
	srv := New(Config{AllowAll: true}, env.srv.deps)

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestEndToEndPolicyScenario(t *testing.T) {
	env := newTestEnv(t, true)
	t1 := env.token(t, "t1", auth.RoleAdmin)
	t2 := env.token(t, "t2", auth.RoleAdmin)

	w := env.upload(t, t1, map[string]string{"policy.pdf": policyText})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	staged := decode[[]ingest.StagedFile](t, w)
	require.Len(t, staged, 1)
	assert.Equal(t, "policy.pdf", staged[0].Filename)
	assert.Equal(t, "t1", staged[0].TenantID)

	w = env.do(t, http.MethodPost, "/api/v1/documents/process", t1, map[string]any{"filenames": []string{"policy.pdf"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[ingest.ProcessReport](t, w)
	require.Len(t, report.Files, 1)
	assert.Equal(t, ingest.StatusProcessed, report.Files[0].Status)
	assert.Positive(t, report.Files[0].TotalChunks)

	w = env.do(t, http.MethodPost, "/api/v1/query", t1, map[string]any{"question": "What is the safety training policy?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ans := decode[rag.Answer](t, w)
	assert.Contains(t, strings.ToLower(ans.Answer), "safety training")
	assert.Equal(t, "t1", ans.UserID)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "policy.pdf", ans.Sources[0].Filename)

	w = env.do(t, http.MethodPost, "/api/v1/query", t2, map[string]any{"question": "What is the safety training policy?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ans = decode[rag.Answer](t, w)
	assert.Contains(t, ans.Answer, "couldn't find")
	assert.Empty(t, ans.Sources)

	w = env.do(t, http.MethodGet, "/api/v1/documents", t1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[listResponse](t, w)
	require.Len(t, list.Files, 1)
	assert.Equal(t, ingest.StageProcessed, list.Files[0].Stage)

	w = env.do(t, http.MethodPost, "/api/v1/documents/delete", t1, map[string]any{"filenames": []string{"policy.pdf"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	del := decode[ingest.DeleteReport](t, w)
	require.Len(t, del.Files, 1)
	assert.Equal(t, ingest.StatusDeleted, del.Files[0].Status)

	w = env.do(t, http.MethodPost, "/api/v1/query", t1, map[string]any{"question": "What is the safety training policy?"})
	ans = decode[rag.Answer](t, w)
	assert.Empty(t, ans.Sources)
}

func TestQueryWithoutLLMReturnsConfigurationAnswer(t *testing.T) {
	env := newTestEnv(t, false)
	tok := env.token(t, "reader1", auth.RoleReader)

	w := env.do(t, http.MethodPost, "/api/v1/query", tok, map[string]any{"question": "anything?"})
	require.Equal(t, http.StatusOK, w.Code)
	ans := decode[rag.Answer](t, w)
	assert.True(t, ans.ConfigurationError)
	assert.Equal(t, rag.NotConfiguredAnswer, ans.Answer)
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t, true)
	tok := env.token(t, "t1", auth.RoleReader)

	w := env.do(t, http.MethodPost, "/api/v1/query", tok, map[string]any{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiredAndAdminGating(t *testing.T) {
	env := newTestEnv(t, true)
	reader := env.token(t, "r1", auth.RoleReader)

	w := env.do(t, http.MethodGet, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = env.do(t, http.MethodGet, "/api/v1/documents", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/documents", reader, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/documents/process", reader, map[string]any{"filenames": []string{"a.pdf"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.upload(t, reader, map[string]string{"a.txt": "hello"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/tenant", reader, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "alice", "password": "pw", "full_name": "Alice", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[userResponse](t, w)
	assert.Equal(t, "alice", created.ID)
	assert.Empty(t, created.Token)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "alice", "password": "other", "role": "reader",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "bob", "password": "pw", "role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[userResponse](t, w)
	assert.Equal(t, "bearer", login.TokenType)
	require.NotEmpty(t, login.Token)

	w = env.do(t, http.MethodGet, "/api/v1/documents", login.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterRoleScopesOwnTenant(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "carol", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, auth.RoleReader, decode[userResponse](t, w).Role)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "dave", "password": "pw", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, auth.RoleAdmin, decode[userResponse](t, w).Role)

	// Readers cannot write, even to their own tenant.
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"username": "carol", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	carol := decode[userResponse](t, w).Token

	w = env.do(t, http.MethodPost, "/api/v1/documents/process", carol, map[string]any{"filenames": []string{"x.pdf"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegistrationDisabled(t *testing.T) {
	env := newTestEnv(t, true)
	srv := New(Config{AllowRegistration: false}, env.srv.deps)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]string{"username": "x", "password": "y"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", &buf)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUploadRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, true)
	tok := env.token(t, "t1", auth.RoleAdmin)

	w := env.upload(t, tok, map[string]string{"malware.exe": "MZ"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload(t, tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/documents/upload", tok, map[string]string{"file": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessAndDeleteReportPerFile(t *testing.T) {
	env := newTestEnv(t, true)
	tok := env.token(t, "t1", auth.RoleAdmin)

	w := env.upload(t, tok, map[string]string{"notes.txt": "Introduction\nSome notes."})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/documents/process", tok, map[string]any{"filenames": []string{"notes.txt", "missing.txt"}})
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[ingest.ProcessReport](t, w)
	require.Len(t, report.Files, 2)
	assert.Equal(t, ingest.StatusProcessed, report.Files[0].Status)
	assert.Equal(t, ingest.StatusNotInStaging, report.Files[1].Status)

	w = env.do(t, http.MethodPost, "/api/v1/documents/process", tok, map[string]any{"filenames": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/documents/delete", tok, map[string]any{"filenames": []string{"missing.txt"}})
	require.Equal(t, http.StatusOK, w.Code)
	del := decode[ingest.DeleteReport](t, w)
	assert.Equal(t, ingest.StatusNotInStorage, del.Files[0].Status)
}

func TestPurgeTenant(t *testing.T) {
	env := newTestEnv(t, true)
	tok := env.token(t, "t1", auth.RoleAdmin)

	env.upload(t, tok, map[string]string{"policy.pdf": policyText})
	env.do(t, http.MethodPost, "/api/v1/documents/process", tok, map[string]any{"filenames": []string{"policy.pdf"}})

	w := env.do(t, http.MethodDelete, "/api/v1/tenant", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/documents", tok, nil)
	list := decode[listResponse](t, w)
	assert.Empty(t, list.Files)
}

func TestAuditRoutesScopedToTenant(t *testing.T) {
	env := newTestEnv(t, true)
	t1 := env.token(t, "t1", auth.RoleAdmin)
	t2 := env.token(t, "t2", auth.RoleAdmin)

	env.upload(t, t1, map[string]string{"a.txt": "Introduction\nhello"})
	env.do(t, http.MethodPost, "/api/v1/query", t1, map[string]any{"question": "hello?"})

	w := env.do(t, http.MethodGet, "/api/v1/audit/", t1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entries := decode[[]audit.Entry](t, w)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "t1", e.TenantID)
		assert.Equal(t, "t1", e.ActorID)
	}

	w = env.do(t, http.MethodGet, "/api/v1/audit/", t2, nil)
	assert.Empty(t, decode[[]audit.Entry](t, w))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
