package rag

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/askdoc/askdoc/internal/embed"
	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/llm"
	"github.com/askdoc/askdoc/internal/rerank"
	"github.com/askdoc/askdoc/internal/store"
)

// Options tunes the retrieval pipeline.
type Options struct {
	// SearchK is the candidate budget per retrieval mode.
	SearchK int
	// RerankN is the number of chunks kept after re-ranking.
	RerankN int
	// RRFConstant is the RRF smoothing parameter.
	RRFConstant int
	// ContextBudget is the maximum context size in characters.
	ContextBudget int
	// MaxAnswerTokens bounds the generated answer length.
	MaxAnswerTokens int
}

// DefaultOptions returns the standard pipeline tuning.
func DefaultOptions() Options {
	return Options{
		SearchK:         20,
		RerankN:         5,
		RRFConstant:     60,
		ContextBudget:   2000,
		MaxAnswerTokens: 512,
	}
}

// Service runs the question answering pipeline.
type Service struct {
	retriever Retriever
	embedder  embed.Embedder
	generator llm.Generator
	reranker  rerank.Reranker
	opts      Options
	logger    *slog.Logger
}

// NewService wires the pipeline. The reranker may be nil, in which
// case fused candidates are truncated instead of re-ranked.
func NewService(retriever Retriever, embedder embed.Embedder, generator llm.Generator, reranker rerank.Reranker, opts Options, logger *slog.Logger) *Service {
	if opts.SearchK <= 0 {
		opts.SearchK = DefaultOptions().SearchK
	}
	if opts.RerankN <= 0 {
		opts.RerankN = DefaultOptions().RerankN
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = DefaultOptions().RRFConstant
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultOptions().ContextBudget
	}
	if opts.MaxAnswerTokens <= 0 {
		opts.MaxAnswerTokens = DefaultOptions().MaxAnswerTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		embedder:  embedder,
		generator: generator,
		reranker:  reranker,
		opts:      opts,
		logger:    logger,
	}
}

// retrieve runs dense and sparse retrieval concurrently and fuses the
// ranked lists. Both modes share the same candidate budget and source
// filter.
func (s *Service) retrieve(ctx context.Context, question, sourceID string) ([]store.ScoredChunk, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, askerr.StageError(askerr.StageEmbed, err)
	}

	var dense, sparse []store.ScoredChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.retriever.SearchDense(gctx, vector, s.opts.SearchK, sourceID)
		return err
	})
	g.Go(func() error {
		var err error
		sparse, err = s.retriever.SearchKeyword(gctx, question, s.opts.SearchK, sourceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, askerr.StageError(askerr.StageRetrieve, err)
	}

	fused := fuseRRF([][]store.ScoredChunk{dense, sparse}, s.opts.RRFConstant)
	s.logger.Debug("retrieval complete",
		"dense", len(dense), "sparse", len(sparse), "fused", len(fused))
	return fused, nil
}

// prepare runs retrieval through context assembly and returns the
// chat messages plus the cited sources. usedRag is false when nothing
// was retrieved and the model answers from general knowledge.
func (s *Service) prepare(ctx context.Context, question, sourceID string) (messages []llm.Message, sources []Source, usedRag bool, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, false, askerr.New(askerr.ErrCodeQuestionEmpty, "question must not be empty", nil)
	}

	fused, err := s.retrieve(ctx, question, sourceID)
	if err != nil {
		return nil, nil, false, err
	}

	if len(fused) == 0 {
		messages = []llm.Message{
			{Role: "system", Content: systemPromptFallback},
			{Role: "user", Content: question},
		}
		return messages, []Source{}, false, nil
	}

	top, err := s.rerankChunks(ctx, question, fused, s.opts.RerankN)
	if err != nil {
		return nil, nil, false, err
	}
	contextText, sources := assembleContext(top, s.opts.ContextBudget)

	messages = []llm.Message{
		{Role: "system", Content: systemPromptRAG},
		{Role: "user", Content: userPrompt(question, contextText)},
	}
	return messages, sources, true, nil
}

// Ask answers a question in one shot.
func (s *Service) Ask(ctx context.Context, question, sourceID string) (AskResponse, error) {
	messages, sources, usedRag, err := s.prepare(ctx, question, sourceID)
	if err != nil {
		return AskResponse{}, err
	}

	answer, err := s.generator.Complete(ctx, messages, s.opts.MaxAnswerTokens)
	if err != nil {
		return AskResponse{}, err
	}

	return AskResponse{Answer: answer, Sources: sources, UsedRag: usedRag}, nil
}

// AskStream answers a question as a stream of events: one sources
// event, then one content event per generated token. The event channel
// closes when generation ends; the error channel delivers at most one
// error after that. Retrieval and prompt errors surface on the error
// channel after an immediately closed event channel.
func (s *Service) AskStream(ctx context.Context, question, sourceID string) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		messages, sources, _, err := s.prepare(ctx, question, sourceID)
		if err != nil {
			errCh <- err
			return
		}

		select {
		case events <- StreamEvent{Type: EventSources, Sources: sources}:
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		}

		tokens, genErr := s.generator.CompleteStream(ctx, messages, s.opts.MaxAnswerTokens)
		for token := range tokens {
			select {
			case events <- StreamEvent{Type: EventContent, Text: token}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := <-genErr; err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

// Search runs dense retrieval only, without fusion or generation.
// Used for index inspection.
func (s *Service) Search(ctx context.Context, query string, topK int, sourceID string) ([]Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, askerr.New(askerr.ErrCodeQuestionEmpty, "query must not be empty", nil)
	}
	if topK <= 0 {
		topK = s.opts.SearchK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, askerr.StageError(askerr.StageEmbed, err)
	}
	hits, err := s.retriever.SearchDense(ctx, vector, topK, sourceID)
	if err != nil {
		return nil, askerr.StageError(askerr.StageRetrieve, err)
	}

	sources := make([]Source, len(hits))
	for i, h := range hits {
		sources[i] = toSource(h)
	}
	return sources, nil
}
