// Package llm is the chat completion client used for answer
// generation, speaking the OpenAI-compatible /chat/completions API in
// both single-shot and server-sent-event streaming form.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces completions for a message sequence.
type Generator interface {
	// Complete returns the full answer text.
	Complete(ctx context.Context, messages []Message, maxTokens int) (string, error)

	// CompleteStream returns a channel of answer tokens and a one-shot
	// error channel. The token channel closes when generation ends;
	// the error channel delivers at most one error after that.
	CompleteStream(ctx context.Context, messages []Message, maxTokens int) (<-chan string, <-chan error)

	// Close releases resources.
	Close() error
}

// Config configures the OpenAI-compatible chat client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is the HTTP chat completion client.
type Client struct {
	client    *http.Client
	transport *http.Transport
	config    Config

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Generator = (*Client)(nil)

// NewClient creates a chat completion client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, askerr.New(askerr.ErrCodeAPIKeyMissing, "OPENAI_API_KEY is not set", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete returns the full answer text in one call.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.post(reqCtx, chatRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", askerr.StageError(askerr.StageGenerate, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", askerr.StageError(askerr.StageGenerate,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", askerr.StageError(askerr.StageGenerate,
			fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return "", askerr.StageError(askerr.StageGenerate,
			fmt.Errorf("response contained no choices"))
	}
	return result.Choices[0].Message.Content, nil
}

// CompleteStream streams answer tokens as they are generated. The
// producer stops when the context is cancelled or the upstream stream
// ends with the [DONE] sentinel. No request timeout is applied: the
// caller's context bounds the stream lifetime.
func (c *Client) CompleteStream(ctx context.Context, messages []Message, maxTokens int) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errCh)

		resp, err := c.post(ctx, chatRequest{
			Model:     c.config.Model,
			Messages:  messages,
			MaxTokens: maxTokens,
			Stream:    true,
		})
		if err != nil {
			errCh <- askerr.StageError(askerr.StageGenerate, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errCh <- askerr.StageError(askerr.StageGenerate,
				fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
			return
		}

		if err := c.readSSE(ctx, resp.Body, tokens); err != nil {
			errCh <- err
		}
	}()

	return tokens, errCh
}

// readSSE parses "data:" lines until [DONE] or stream end.
func (c *Client) readSSE(ctx context.Context, body io.Reader, tokens chan<- string) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			select {
			case tokens <- choice.Delta.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// Cancellation surfaces as a read error on the response body.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return askerr.StageError(askerr.StageGenerate,
			fmt.Errorf("stream read failed: %w", err))
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload chatRequest) (*http.Response, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("client is closed")
	}
	c.mu.RUnlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return resp, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}
