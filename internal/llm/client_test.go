package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/query", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "summarize mitosis", req["query"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true, "response": "mitosis summary", "tokens_used": 42,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	text, err := c.Invoke(context.Background(), "summarize mitosis", Params{AgentID: "worker-1"})
	require.NoError(t, err)
	assert.Equal(t, "mitosis summary", text)
}

func TestInvokeRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "response": "ok"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxAttempts: 3})
	text, err := c.Invoke(context.Background(), "q", Params{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvokeRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxAttempts: 2})
	_, err := c.Invoke(context.Background(), "q", Params{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestInvokeTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, MaxAttempts: 1})
	_, err := c.Invoke(context.Background(), "q", Params{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestInvokeNonRetryableErrorReturnsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxAttempts: 3})
	_, err := c.Invoke(context.Background(), "q", Params{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestInvokeServiceLevelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "model unavailable"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxAttempts: 1})
	_, err := c.Invoke(context.Background(), "q", Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}
