package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/mailobot/internal/gateway"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/tests/testutil"
)

// newTestServer wires a gateway against a fake Rasa backend.
func newTestServer(
	t *testing.T, backend http.HandlerFunc, cfg gateway.Config,
) (*gateway.Server, *store.SQLiteStore) {
	t.Helper()

	s := testutil.NewTestStore(t)

	url := "http://127.0.0.1:1" // unreachable unless a backend is given
	if backend != nil {
		srv := httptest.NewServer(backend)
		t.Cleanup(srv.Close)
		url = srv.URL
	}

	relayClient := relay.New(url, 2*time.Second)
	return gateway.NewServer(cfg, s, relayClient, zap.NewNop()), s
}

func TestCheckBackendAvailable(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version": "3.6.0"}`))
	}, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/check_rasa", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "available", body["status"])
}

func TestCheckBackendUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, nil, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/check_rasa", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["status"])
	assert.NotEmpty(t, body["reason"])
}

func TestSendMessagePassthrough(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"recipient_id": "u1", "text": "Hello!"}]`))
	}, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, "/api/send_message",
		strings.NewReader(`{"message": "hi"}`),
	)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// The backend's body passes through verbatim.
	var segments []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &segments))
	require.Len(t, segments, 1)
	assert.Equal(t, "Hello!", segments[0]["text"])
}

func TestSendMessageRequiresMessage(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, "/api/send_message",
		strings.NewReader(`{"message": "   "}`),
	)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageFallbackWhenUnreachable(t *testing.T) {
	srv, _ := newTestServer(t, nil, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, "/api/send_message",
		strings.NewReader(`{"message": "hi"}`),
	)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Error            string          `json:"error"`
		FallbackResponse []relay.Segment `json:"fallback_response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	require.Len(t, body.FallbackResponse, 1)
	assert.Contains(t, body.FallbackResponse[0].Text,
		"I'm having trouble connecting to my backend services")
}

func TestRelayMessageNormalizes(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"text": "Opening your inbox."},
			{"custom": {"action": {"name": "show_inbox"}}}
		]`))
	}, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, "/api/rasa_message",
		strings.NewReader(`{"message": "show my inbox"}`),
	)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []relay.Segment   `json:"messages"`
		Actions  []json.RawMessage `json:"actions"`
		Context  map[string]any    `json:"context"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Messages, 1)
	require.Len(t, body.Actions, 1)

	action, err := relay.DecodeAction(body.Actions[0])
	require.NoError(t, err)
	assert.Equal(t, relay.ShowInbox{}, action)
}

func TestSaveIMAPSettings(t *testing.T) {
	settingsFile := filepath.Join(t.TempDir(), "imap_settings.json")

	srv, s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, gateway.Config{SettingsFile: settingsFile})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, "/api/save_imap_settings",
		strings.NewReader(`{
			"host": "imap.example.com",
			"port": "993",
			"username": "me@example.com",
			"password": "secret"
		}`),
	)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])

	saved, err := s.GetIMAPSettings(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "imap.example.com", saved.Host)
	assert.True(t, saved.TLS)

	// The settings file side channel got a copy.
	data, err := os.ReadFile(settingsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "imap.example.com")
}

func TestSaveIMAPSettingsValidation(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(
		http.MethodPost, "/api/save_imap_settings",
		strings.NewReader(`{"host": "", "username": ""}`),
	)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, gateway.Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/send_message", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
