package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// WebSearch queries the search sidecar (GET {base}/search?q=...) and maps
// hits to citable results keyed by URL.
type WebSearch struct {
	BaseURL    string
	MaxResults int
	HTTP       *http.Client
}

// NewWebSearch builds a search adapter with defaults.
func NewWebSearch(baseURL string) *WebSearch {
	return &WebSearch{
		BaseURL:    baseURL,
		MaxResults: 5,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WebSearch) Name() string { return "web_search" }

type searchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Run executes the search and returns up to MaxResults hits.
func (w *WebSearch) Run(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s/search?q=%s&limit=%d", w.BaseURL, url.QueryEscape(query), w.MaxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("web_search request: %w", err)
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web_search HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Results []searchHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("web_search decode: %w", err)
	}

	out := make([]Result, 0, len(payload.Results))
	for _, hit := range payload.Results {
		if len(out) >= w.MaxResults {
			break
		}
		out = append(out, Result{
			Content:   hit.Snippet,
			SourceKey: hit.URL,
			Title:     hit.Title,
			URL:       hit.URL,
			Snippet:   hit.Snippet,
		})
	}
	return out, nil
}

// WebFetch retrieves one page (GET {base}/fetch?url=...) through the fetch
// sidecar, which handles rendering and extraction.
type WebFetch struct {
	BaseURL string
	HTTP    *http.Client
}

// NewWebFetch builds a fetch adapter with defaults.
func NewWebFetch(baseURL string) *WebFetch {
	return &WebFetch{BaseURL: baseURL, HTTP: &http.Client{Timeout: 45 * time.Second}}
}

func (w *WebFetch) Name() string { return "web_fetch" }

// Run fetches the page named by query (a URL) and returns one result.
func (w *WebFetch) Run(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s/fetch?url=%s", w.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("web_fetch request: %w", err)
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web_fetch HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("web_fetch decode: %w", err)
	}

	return []Result{{
		Content:   payload.Content,
		SourceKey: query,
		Title:     payload.Title,
		URL:       query,
	}}, nil
}
