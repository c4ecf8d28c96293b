package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPSearcher implements Searcher against a Tavily-style search API.
type HTTPSearcher struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPSearcher creates the searcher. Returns nil when no API key is
// configured so callers can pass the nil Searcher straight to NewRegistry.
func NewHTTPSearcher(endpoint, apiKey string, logger *zap.Logger) *HTTPSearcher {
	if apiKey == "" {
		return nil
	}
	if endpoint == "" {
		endpoint = "https://api.tavily.com/search"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSearcher{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
		logger:   logger,
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements Searcher.
func (s *HTTPSearcher) Search(ctx context.Context, query string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"api_key":     s.apiKey,
		"query":       query,
		"max_results": 5,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search HTTP %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	if len(sr.Results) == 0 {
		return "No search results found.", nil
	}

	var buf bytes.Buffer
	for i, r := range sr.Results {
		fmt.Fprintf(&buf, "%d. %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	s.logger.Debug("search ok", zap.String("query", query), zap.Int("results", len(sr.Results)))
	return buf.String(), nil
}
