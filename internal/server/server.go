// Package server exposes the HTTP API: question answering, streaming
// chat, document upload and management, and index inspection.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/ingest"
	"github.com/askdoc/askdoc/internal/rag"
)

// maxUploadBytes bounds document uploads.
const maxUploadBytes = 32 << 20

// Answerer is the question answering surface the API serves.
type Answerer interface {
	Ask(ctx context.Context, question, sourceID string) (rag.AskResponse, error)
	AskStream(ctx context.Context, question, sourceID string) (<-chan rag.StreamEvent, <-chan error)
	Search(ctx context.Context, query string, topK int, sourceID string) ([]rag.Source, error)
}

// Uploader is the document ingestion surface the API serves.
type Uploader interface {
	IngestUpload(ctx context.Context, filename string, data []byte, sourceID string) (ingest.Result, error)
	Remove(ctx context.Context, sourceID string) (int, error)
}

// Catalog lists what the index currently holds.
type Catalog interface {
	ListSources(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Options configures the HTTP server.
type Options struct {
	Host      string
	Port      int
	ChatModel string
	Debug     bool
}

// Server is the AskDoc HTTP API.
type Server struct {
	router   *gin.Engine
	answerer Answerer
	uploader Uploader
	catalog  Catalog
	opts     Options
	logger   *slog.Logger
}

// New builds the API server and its routes.
func New(answerer Answerer, uploader Uploader, catalog Catalog, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		answerer: answerer,
		uploader: uploader,
		catalog:  catalog,
		opts:     opts,
		logger:   logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMeta(logger))

	router.GET("/health", s.handleHealth)
	router.POST("/ask", s.handleAsk)
	router.POST("/chat_stream", s.handleChatStream)
	router.POST("/search", s.handleSearch)
	router.GET("/documents", s.handleListDocuments)
	router.POST("/documents", s.handleUpload)
	router.DELETE("/documents/:source_id", s.handleDeleteDocument)

	s.router = router
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

type askRequest struct {
	Question string `json:"question"`
	SourceID string `json:"source_id"`
}

type searchRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
	SourceID string `json:"source_id"`
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.catalog.Count(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"model":     s.opts.ChatModel,
		"documents": count,
	})
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, askerr.ValidationError("invalid request body", err))
		return
	}

	resp, err := s.answerer.Ask(c.Request.Context(), req.Question, req.SourceID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleChatStream answers as newline-delimited JSON: one sources
// event, then one content event per token. Errors before the first
// event map to a regular error response; mid-stream errors end the
// stream and are logged.
func (s *Server) handleChatStream(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, askerr.ValidationError("invalid request body", err))
		return
	}

	events, errCh := s.answerer.AskStream(c.Request.Context(), req.Question, req.SourceID)

	enc := json.NewEncoder(c.Writer)
	wrote := false
	for ev := range events {
		if !wrote {
			c.Header("Content-Type", "application/x-ndjson")
			c.Status(http.StatusOK)
			wrote = true
		}
		if err := enc.Encode(ev); err != nil {
			s.logger.Warn("stream write failed", "error", err)
			return
		}
		c.Writer.Flush()
	}

	if err := <-errCh; err != nil {
		if !wrote {
			s.writeError(c, err)
			return
		}
		s.logger.Warn("stream aborted", "error", err)
	}
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, askerr.ValidationError("invalid request body", err))
		return
	}

	results, err := s.answerer.Search(c.Request.Context(), req.Query, req.TopK, req.SourceID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	sources, err := s.catalog.ListSources(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if sources == nil {
		sources = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"source_ids": sources})
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		s.writeError(c, askerr.ValidationError("missing file field", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.writeError(c, askerr.ValidationError("unreadable upload", err))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(c, askerr.ValidationError("unreadable upload", err))
		return
	}

	sourceID := c.PostForm("source_id")
	res, err := s.uploader.IngestUpload(c.Request.Context(), fileHeader.Filename, data, sourceID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	sourceID := c.Param("source_id")

	deleted, err := s.uploader.Remove(c.Request.Context(), sourceID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "source_id": sourceID})
}

// writeError maps structured errors to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := askerr.GetCode(err)

	switch askerr.GetCategory(err) {
	case askerr.CategoryValidation:
		status = http.StatusBadRequest
	case askerr.CategoryBackend:
		status = http.StatusBadGateway
	case askerr.CategoryIO:
		if code == askerr.ErrCodeFileNotFound {
			status = http.StatusNotFound
		} else {
			status = http.StatusBadRequest
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
