package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageSuccess(t *testing.T) {
	var gotReq request

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, webhookPath, r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"text": "Hi there!"}]`))
		},
	))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)

	reply, err := c.SendMessage(
		context.Background(), "hello", map[string]any{"lastAction": "none"},
	)
	require.NoError(t, err)

	assert.Equal(t, "hello", gotReq.Message)
	assert.NotEmpty(t, gotReq.Sender)
	assert.Equal(t, "none", gotReq.Metadata["lastAction"])

	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "Hi there!", reply.Messages[0].Text)
}

func TestSendMessageBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)

	_, err := c.SendMessage(context.Background(), "hello", nil)
	assert.Error(t, err)
}

func TestSendMessageConnectionRefused(t *testing.T) {
	// A closed server guarantees a refused connection.
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {},
	))
	url := srv.URL
	srv.Close()

	c := New(url, 2*time.Second)

	_, err := c.SendMessage(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Equal(t, FailureConnection, ClassifyFailure(err))
}

func TestSendMessageTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		},
	))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)

	ctx, cancel := context.WithTimeout(
		context.Background(), 20*time.Millisecond,
	)
	defer cancel()

	_, err := c.SendMessage(ctx, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, FailureTimeout, ClassifyFailure(err))
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, versionPath, r.URL.Path)
			w.Write([]byte(`{"version": "3.6.0"}`))
		},
	))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)

	health := c.CheckHealth(context.Background())
	assert.True(t, health.Available)
	assert.Equal(t, "3.6.0", health.Version["version"])
}

func TestCheckHealthUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {},
	))
	url := srv.URL
	srv.Close()

	c := New(url, 5*time.Second)

	health := c.CheckHealth(context.Background())
	assert.False(t, health.Available)
	assert.NotEmpty(t, health.Reason)
}

func TestFallbackReplyTexts(t *testing.T) {
	timeoutReply := FallbackReply(context.DeadlineExceeded, nil)
	require.Len(t, timeoutReply.Messages, 1)
	assert.Equal(t,
		"I'm sorry, I couldn't process your request in time. "+
			"Please try again later.",
		timeoutReply.Messages[0].Text,
	)

	// Produce a real connection error to classify.
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {},
	))
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	_, err := c.SendRaw(context.Background(), "x", nil)
	require.Error(t, err)

	connReply := FallbackReply(err, map[string]any{"k": "v"})
	require.Len(t, connReply.Messages, 1)
	assert.Equal(t,
		"I'm having trouble connecting to my backend services. "+
			"Please ensure the Rasa server is running.",
		connReply.Messages[0].Text,
	)
	assert.Equal(t, "v", connReply.Context["k"])

	otherReply := FallbackReply(assert.AnError, nil)
	require.Len(t, otherReply.Messages, 1)
	assert.Equal(t,
		"I'm sorry, I encountered an error processing your request. "+
			"Please try again later.",
		otherReply.Messages[0].Text,
	)
}
