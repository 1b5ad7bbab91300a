package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSearchRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "krebs cycle", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]string{
				{"title": "Krebs cycle", "url": "https://a", "snippet": "citric acid"},
				{"title": "TCA overview", "url": "https://b", "snippet": "eight steps"},
			},
		})
	}))
	defer srv.Close()

	ws := NewWebSearch(srv.URL)
	results, err := ws.Run(context.Background(), "krebs cycle")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a", results[0].SourceKey)
	assert.Equal(t, "Krebs cycle", results[0].Title)
	assert.Equal(t, "citric acid", results[0].Content)
}

func TestWebSearchCapsResults(t *testing.T) {
	hits := make([]map[string]string, 10)
	for i := range hits {
		hits[i] = map[string]string{"title": "t", "url": "https://x", "snippet": "s"}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": hits})
	}))
	defer srv.Close()

	ws := NewWebSearch(srv.URL)
	ws.MaxResults = 3
	results, err := ws.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestWebSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := NewWebSearch(srv.URL)
	_, err := ws.Run(context.Background(), "q")
	assert.Error(t, err)
}

func TestWebFetchRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fetch", r.URL.Path)
		assert.Equal(t, "https://target", r.URL.Query().Get("url"))
		_ = json.NewEncoder(w).Encode(map[string]string{"title": "Target", "content": "body text"})
	}))
	defer srv.Close()

	wf := NewWebFetch(srv.URL)
	results, err := wf.Run(context.Background(), "https://target")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://target", results[0].SourceKey)
	assert.Equal(t, "body text", results[0].Content)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewWebSearch("http://search")))
	require.NoError(t, r.Register(NewWebFetch("http://fetch")))

	assert.Equal(t, []string{"web_fetch", "web_search"}, r.Names())

	_, ok := r.Get("web_search")
	assert.True(t, ok)
	_, ok = r.Get("calculator")
	assert.False(t, ok)

	assert.Error(t, r.Register(NewWebSearch("http://dup")), "duplicate registration rejected")
}
