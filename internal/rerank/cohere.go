// Package rerank is the cross-encoder re-ranking backend. Absence of
// a configured backend is not an error; the orchestrator falls back to
// pass-through truncation.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Result is one re-ranked document: the index into the input slice and
// the backend's relevance score.
type Result struct {
	Index int
	Score float64
}

// Reranker orders documents by relevance to a query.
type Reranker interface {
	// Rerank returns up to topN results, most relevant first.
	Rerank(ctx context.Context, query string, texts []string, topN int) ([]Result, error)

	// Close releases resources.
	Close() error
}

// Config configures the Cohere rerank client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// CohereClient calls Cohere's /v1/rerank endpoint.
type CohereClient struct {
	client    *http.Client
	transport *http.Transport
	config    Config

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Reranker = (*CohereClient)(nil)

// NewCohereClient creates a Cohere rerank client.
func NewCohereClient(cfg Config) (*CohereClient, error) {
	if cfg.APIKey == "" {
		return nil, askerr.New(askerr.ErrCodeAPIKeyMissing, "COHERE_API_KEY is not set", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.com"
	}
	if cfg.Model == "" {
		cfg.Model = "rerank-english-v3.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &CohereClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank sends the query and candidate texts to the backend and
// returns the relevance-ordered subset.
func (c *CohereClient) Rerank(ctx context.Context, query string, texts []string, topN int) ([]Result, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	c.mu.RUnlock()

	if len(texts) == 0 || topN <= 0 {
		return []Result{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.config.Model,
		Query:     query,
		Documents: texts,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := c.config.BaseURL + "/v1/rerank"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, askerr.StageError(askerr.StageRerank, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, askerr.StageError(askerr.StageRerank,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, askerr.StageError(askerr.StageRerank,
			fmt.Errorf("failed to decode response: %w", err))
	}

	results := make([]Result, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, askerr.StageError(askerr.StageRerank,
				fmt.Errorf("result index %d out of range", r.Index))
		}
		results = append(results, Result{Index: r.Index, Score: r.RelevanceScore})
	}
	return results, nil
}

// Close releases idle connections.
func (c *CohereClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}
