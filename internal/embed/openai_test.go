package embed

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

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// fakeEmbedServer answers /embeddings with deterministic vectors.
func fakeEmbedServer(t *testing.T, dims int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{}
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = 1 // unit vector, stable under normalization
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestEmbedder(t *testing.T, url string, batchSize int) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "text-embedding-3-small",
		Dimensions: 4,
		BatchSize:  batchSize,
		MaxRetries: 1,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeAPIKeyMissing, askerr.GetCode(err))
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbedServer(t, 4, &calls)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIEmbedder_EmptyTextSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbedServer(t, 4, &calls)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32)

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), vec)

	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)

	assert.Equal(t, int32(0), calls.Load())
}

func TestOpenAIEmbedder_BatchWindows(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbedServer(t, 4, &calls)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 2)

	texts := []string{"a", "b", "", "c", "d", "e"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 6)

	// 5 non-empty texts in windows of 2 = 3 calls
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, make([]float32, 4), vecs[2], "empty entry is a zero vector")
	assert.Equal(t, float32(1), vecs[0][0])
}

func TestOpenAIEmbedder_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			return
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: make([]float32, 4)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32)
	_, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: make([]float32, 8)})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Dimensions: 4,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "wrong dims")
	require.Error(t, err)
	assert.ErrorIs(t, err, askerr.New(askerr.ErrCodeDimensionMismatch, "", nil))
}

func TestOpenAIEmbedder_ClosedRejectsCalls(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbedServer(t, 4, &calls)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "after close")
	assert.Error(t, err)
}
