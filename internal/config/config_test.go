package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Search.SearchK)
	assert.Equal(t, 5, cfg.Search.RerankN)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 2000, cfg.Search.ContextBudget)
	assert.Equal(t, SparseBackendFTS5, cfg.Search.SparseBackend)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "askdoc.yaml")
	yaml := `
server:
  port: 9090
search:
  search_k: 10
  sparse_backend: bleve
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Search.SearchK)
	assert.Equal(t, SparseBackendBleve, cfg.Search.SparseBackend)
	// Untouched values keep defaults
	assert.Equal(t, 5, cfg.Search.RerankN)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "askdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("ASKDOC_PORT", "7070")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("COHERE_API_KEY", "co-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.True(t, cfg.RerankEnabled())
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeConfigNotFound, askerr.GetCode(err))
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap >= chunk size", func(c *Config) { c.Search.ChunkOverlap = c.Search.ChunkSize }},
		{"zero search_k", func(c *Config) { c.Search.SearchK = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"unknown sparse backend", func(c *Config) { c.Search.SparseBackend = "lucene" }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRerankEnabled_FalseWithoutKey(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.RerankEnabled())
}
