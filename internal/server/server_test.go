package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/askdb/internal/chat"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/metrics"
	"github.com/koustreak/askdb/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixture = filepath.Join("..", "database", "sqlite", "testdata", "music.sql")

type fakeModels struct {
	models []string
	err    error
}

func (f fakeModels) ListModels(context.Context) ([]string, error) { return f.models, f.err }

type testAPI struct {
	handler  http.Handler
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// newTestAPI serves a chat whose model answers every query prompt with
// query and every answer prompt with answer.
func newTestAPI(t *testing.T, query, answer string, models llm.ModelLister) *testAPI {
	t.Helper()
	gen := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.HasSuffix(prompt, "Response:") {
			return answer, nil
		}
		return query, nil
	})

	m := metrics.New()
	sessions := session.NewManager(session.NewConnector())
	t.Cleanup(sessions.Close)
	cfg := chat.DefaultConfig()
	cfg.MaxAttempts = 2

	h := NewHandler(Dependencies{
		Sessions: sessions,
		Chat:     chat.NewHandler(sessions, gen, cfg, nil, m),
		Models:   models,
		Metrics:  m,
	})
	return &testAPI{handler: h, sessions: sessions, metrics: m}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

func connectBody(t *testing.T) string {
	raw, err := json.Marshal(connectRequest{Location: fixture})
	require.NoError(t, err)
	return string(raw)
}

func TestChatFlow(t *testing.T) {
	a := newTestAPI(t, "SELECT COUNT(*) FROM albums;", "There are 4 albums in the database.", nil)

	w := a.do(t, http.MethodPost, "/v1/connect", connectBody(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conn connectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conn))
	assert.Equal(t, "sqlite", conn.Driver)
	assert.Equal(t, 3, conn.Tables)

	w = a.do(t, http.MethodGet, "/v1/schema", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CREATE TABLE")

	w = a.do(t, http.MethodPost, "/v1/chat", `{"question":"How many albums are there?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var turn map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turn))
	assert.Equal(t, "There are 4 albums in the database.", turn["answer"])
	assert.Equal(t, "SELECT COUNT(*) FROM albums;", turn["query"])
	assert.EqualValues(t, 1, turn["attempts"])
	assert.NotContains(t, turn, "error")

	w = a.do(t, http.MethodGet, "/v1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, chat.RoleAssistant, hist.Messages[1].Role)

	w = a.do(t, http.MethodDelete, "/v1/history", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/v1/history", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Empty(t, hist.Messages)

	w = a.do(t, http.MethodDelete, "/v1/connect", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, a.sessions.Connected())
}

func TestChat_NotConnected(t *testing.T) {
	a := newTestAPI(t, "SELECT 1", "One.", nil)

	w := a.do(t, http.MethodPost, "/v1/chat", `{"question":"How many albums?"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), chat.MsgNotConnected)
	assert.Contains(t, w.Body.String(), `"kind":"not_connected"`)

	w = a.do(t, http.MethodGet, "/v1/schema", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChat_Exhausted(t *testing.T) {
	a := newTestAPI(t, "SELECT * FROM nope;", "unused", nil)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/v1/connect", connectBody(t)).Code)

	w := a.do(t, http.MethodPost, "/v1/chat", `{"question":"q"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), chat.MsgNoValidQuery)
	assert.Contains(t, w.Body.String(), `"attempts":2`)
}

func TestBadRequests(t *testing.T) {
	a := newTestAPI(t, "SELECT 1", "One.", nil)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"malformed json", http.MethodPost, "/v1/chat", `{"question":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/chat", `{"q":"x"}`, http.StatusBadRequest},
		{"blank question", http.MethodPost, "/v1/chat", `{"question":"  "}`, http.StatusBadRequest},
		{"blank location", http.MethodPost, "/v1/connect", `{"location":""}`, http.StatusBadRequest},
		{"unsupported location", http.MethodPost, "/v1/connect", `{"location":"redis://localhost"}`, http.StatusBadRequest},
		{"missing script", http.MethodPost, "/v1/connect", `{"location":"/nope/missing.sql"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestModels(t *testing.T) {
	t.Run("listed", func(t *testing.T) {
		a := newTestAPI(t, "", "", fakeModels{models: []string{"llama3", "sqlcoder"}})
		w := a.do(t, http.MethodGet, "/v1/models", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"models":["llama3","sqlcoder"]}`, w.Body.String())
	})

	t.Run("backend down", func(t *testing.T) {
		a := newTestAPI(t, "", "", fakeModels{err: errs.New(errs.ErrKindGenerationFailed, "model backend unreachable")})
		w := a.do(t, http.MethodGet, "/v1/models", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unsupported", func(t *testing.T) {
		a := newTestAPI(t, "", "", nil)
		w := a.do(t, http.MethodGet, "/v1/models", "")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t, "", "", nil)

	w := a.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","connected":false}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `askdb_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(errs.ErrKindTimeout))
	assert.Equal(t, http.StatusBadGateway, statusFor(errs.ErrKindCompositionFailed))
	assert.Equal(t, http.StatusForbidden, statusFor(errs.ErrKindPermissionDenied))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errs.ErrKindUnknown))
}
