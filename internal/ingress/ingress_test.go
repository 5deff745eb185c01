package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivycove/cortex/internal/convstore"
	"github.com/ivycove/cortex/internal/energy"
	"github.com/ivycove/cortex/internal/loop"
	"github.com/ivycove/cortex/internal/tools"
)

func newTestServer(t *testing.T) (*Server, *convstore.Store) {
	t.Helper()
	store, err := convstore.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l := loop.New()
	l.Store = store
	l.Energy = energy.New(1.0)
	l.Focus = &tools.Focus{}

	reg := energy.New(1.0)
	return New(l, store, reg, 0, 10000), store
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPostMessageValidationRejectsEmptyContent(t *testing.T) {
	s, _ := newTestServer(t)
	w := postJSON(t, s, "/message", map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Details)
}

func TestPostMessageValidationRejectsBadUUID(t *testing.T) {
	s, _ := newTestServer(t)
	w := postJSON(t, s, "/message", map[string]any{"content": "hi", "id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMessageValidationRejectsNegativeBudget(t *testing.T) {
	s, _ := newTestServer(t)
	negative := -1.0
	w := postJSON(t, s, "/message", map[string]any{"content": "hi", "energyBudget": negative})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMessageAcceptsValidRequest(t *testing.T) {
	s, _ := newTestServer(t)
	w := postJSON(t, s, "/message", map[string]any{"content": "Hello, how are you?"})
	require.Equal(t, http.StatusOK, w.Code)

	var accepted messageAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "received", accepted.Status)
	assert.NotEmpty(t, accepted.RequestID)
}

func TestApprovalResponseRequiresExistingConversation(t *testing.T) {
	s, _ := newTestServer(t)
	w := postJSON(t, s, "/message", map[string]any{
		"id":               "11111111-1111-4111-8111-111111111111",
		"content":          "",
		"approvalResponse": map[string]any{"approved": true},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/health", "/ready", "/live"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/conversations/11111111-1111-4111-8111-111111111111", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
