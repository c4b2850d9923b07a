package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "gpt-4.1-mini",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeAPIKeyMissing, askerr.GetCode(err))
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4.1-mini", req.Model)
		assert.Equal(t, 512, req.MaxTokens)
		assert.False(t, req.Stream)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	answer, err := c.Complete(context.Background(),
		[]Message{{Role: "user", Content: "question"}}, 512)
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
}

func TestClient_CompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "q"}}, 64)
	require.Error(t, err)
	assert.Equal(t, askerr.StageGenerate, askerr.GetStage(err))
}

func sseChunk(content string) string {
	chunk := map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n\n", data)
}

func TestClient_CompleteStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, token := range []string{"Hello", " ", "world"} {
			_, _ = fmt.Fprint(w, sseChunk(token))
			flusher.Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	tokens, errCh := c.CompleteStream(context.Background(),
		[]Message{{Role: "user", Content: "q"}}, 64)

	var got []string
	for token := range tokens {
		got = append(got, token)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"Hello", " ", "world"}, got)
}

func TestClient_CompleteStreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	tokens, errCh := c.CompleteStream(context.Background(),
		[]Message{{Role: "user", Content: "q"}}, 64)

	for range tokens {
		t.Fatal("no tokens expected on error")
	}
	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, askerr.StageGenerate, askerr.GetStage(err))
}

func TestClient_CompleteStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = fmt.Fprint(w, sseChunk("first"))
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, srv.URL)
	tokens, errCh := c.CompleteStream(ctx, []Message{{Role: "user", Content: "q"}}, 64)

	first := <-tokens
	assert.Equal(t, "first", first)
	cancel()

	for range tokens {
	}
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
}
