package cmd

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/askdoc/askdoc/internal/config"
	"github.com/askdoc/askdoc/internal/embed"
	"github.com/askdoc/askdoc/internal/ingest"
	"github.com/askdoc/askdoc/internal/llm"
	"github.com/askdoc/askdoc/internal/rag"
	"github.com/askdoc/askdoc/internal/rerank"
	"github.com/askdoc/askdoc/internal/store"
)

// app holds the wired pipeline components for one command invocation.
type app struct {
	cfg      config.Config
	store    *store.DocumentStore
	embedder embed.Embedder
	ingestor *ingest.Ingestor
	service  *rag.Service

	closers []func() error
}

// newApp loads configuration and wires the store, embedder, and
// ingestor. When withGenerator is set, the LLM client, optional
// reranker, and answer service are wired too.
func newApp(withGenerator bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	s, err := store.Open(store.Config{
		DataDir:       cfg.Paths.DataDir,
		Dimensions:    cfg.OpenAI.Dimensions,
		SparseBackend: cfg.Search.SparseBackend,
	}, slog.Default())
	if err != nil {
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)

	openAI, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.EmbedModel,
		Dimensions: cfg.OpenAI.Dimensions,
		BatchSize:  cfg.OpenAI.BatchSize,
		Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		MaxRetries: cfg.OpenAI.MaxRetries,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.embedder = embed.NewCachedEmbedder(openAI, cfg.Ingest.EmbedCacheSize)
	a.closers = append(a.closers, a.embedder.Close)

	a.ingestor = ingest.New(s, a.embedder, ingest.Options{
		ChunkSize:    cfg.Search.ChunkSize,
		ChunkOverlap: cfg.Search.ChunkOverlap,
		LockPath:     filepath.Join(cfg.Paths.DataDir, "ingest.lock"),
	}, slog.Default())

	if !withGenerator {
		return a, nil
	}

	generator, err := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.ChatModel,
		Timeout: time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, generator.Close)

	var reranker rerank.Reranker
	if cfg.RerankEnabled() {
		cohere, err := rerank.NewCohereClient(rerank.Config{
			APIKey:  cfg.Cohere.APIKey,
			BaseURL: cfg.Cohere.BaseURL,
			Model:   cfg.Cohere.Model,
			Timeout: time.Duration(cfg.Cohere.TimeoutSecs) * time.Second,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		reranker = cohere
		a.closers = append(a.closers, cohere.Close)
	}

	a.service = rag.NewService(s, a.embedder, generator, reranker, rag.Options{
		SearchK:         cfg.Search.SearchK,
		RerankN:         cfg.Search.RerankN,
		RRFConstant:     cfg.Search.RRFConstant,
		ContextBudget:   cfg.Search.ContextBudget,
		MaxAnswerTokens: cfg.Search.MaxAnswerTokens,
	}, slog.Default())

	return a, nil
}

// close releases components in reverse wiring order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
