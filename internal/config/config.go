// Package config loads and validates the AskDoc configuration.
//
// Precedence, lowest to highest:
//  1. Built-in defaults
//  2. YAML config file (askdoc.yaml in cwd, else ~/.config/askdoc/config.yaml)
//  3. Environment variables (OPENAI_API_KEY, COHERE_API_KEY, ASKDOC_*)
//
// A .env file in the working directory is loaded into the environment first.
// The resulting Config is immutable by convention: it is constructed once in
// cmd and passed by value into component constructors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Sparse (keyword) index backends.
const (
	SparseBackendFTS5  = "fts5"
	SparseBackendBleve = "bleve"
)

// Config is the complete AskDoc configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Paths  PathsConfig  `yaml:"paths"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Cohere CohereConfig `yaml:"cohere"`
	Search SearchConfig `yaml:"search"`
	Ingest IngestConfig `yaml:"ingest"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the local indexes (SQLite, vector graph, keyword index).
	DataDir string `yaml:"data_dir"`
	// DocsDir is the default directory scanned by `askdoc ingest`.
	DocsDir string `yaml:"docs_dir"`
}

// OpenAIConfig configures the embedding and chat completion backends.
// The API key is never read from YAML, only from the environment.
type OpenAIConfig struct {
	APIKey      string `yaml:"-"`
	BaseURL     string `yaml:"base_url"`
	ChatModel   string `yaml:"chat_model"`
	EmbedModel  string `yaml:"embed_model"`
	Dimensions  int    `yaml:"dimensions"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// CohereConfig configures the optional re-ranking backend.
// An empty API key disables re-ranking (pass-through truncation).
type CohereConfig struct {
	APIKey      string `yaml:"-"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SearchConfig configures the retrieval pipeline.
type SearchConfig struct {
	// SearchK is the candidate budget per retrieval mode (dense and sparse).
	SearchK int `yaml:"search_k"`
	// RerankN is the number of candidates kept after re-ranking.
	RerankN int `yaml:"rerank_n"`
	// RRFConstant is the RRF smoothing parameter (k). Default 60.
	RRFConstant int `yaml:"rrf_constant"`
	// ContextBudget is the maximum context size in characters.
	ContextBudget int `yaml:"context_budget"`
	// MaxAnswerTokens bounds the generated answer length.
	MaxAnswerTokens int `yaml:"max_answer_tokens"`
	// SparseBackend selects the keyword index: "fts5" (default) or "bleve".
	SparseBackend string `yaml:"sparse_backend"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// EmbedCacheSize is the LRU embedding cache capacity.
	EmbedCacheSize int `yaml:"embed_cache_size"`
	// WatchDebounce is the watch-mode debounce window in milliseconds.
	WatchDebounceMS int `yaml:"watch_debounce_ms"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8080,
			LogLevel: "info",
		},
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
			DocsDir: "data/docs",
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			ChatModel:   "gpt-4.1-mini",
			EmbedModel:  "text-embedding-3-small",
			Dimensions:  1536,
			TimeoutSecs: 60,
			BatchSize:   32,
			MaxRetries:  3,
		},
		Cohere: CohereConfig{
			BaseURL:     "https://api.cohere.com",
			Model:       "rerank-english-v3.0",
			TimeoutSecs: 30,
		},
		Search: SearchConfig{
			SearchK:         20,
			RerankN:         5,
			RRFConstant:     60,
			ContextBudget:   2000,
			MaxAnswerTokens: 512,
			SparseBackend:   SparseBackendFTS5,
			ChunkSize:       1000,
			ChunkOverlap:    200,
		},
		Ingest: IngestConfig{
			EmbedCacheSize:  1000,
			WatchDebounceMS: 500,
		},
	}
}

// Load reads the configuration from the given path. If path is empty, the
// default locations are tried; a missing file is not an error.
func Load(path string) (Config, error) {
	// Populate the environment from .env if present. Missing file is fine.
	_ = godotenv.Load()

	cfg := Default()

	resolved, explicit := resolvePath(path)
	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			if explicit {
				return cfg, askerr.New(askerr.ErrCodeConfigNotFound,
					fmt.Sprintf("config file not found: %s", resolved), err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, askerr.ConfigError(fmt.Sprintf("invalid config file %s", resolved), err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolvePath picks the config file to read. Returns the path and whether it
// was explicitly requested (an explicit missing file is an error).
func resolvePath(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if _, err := os.Stat("askdoc.yaml"); err == nil {
		return "askdoc.yaml", false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "askdoc", "config.yaml"), false
}

// applyEnv overlays environment variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}
	if v := os.Getenv("COHERE_API_KEY"); v != "" {
		cfg.Cohere.APIKey = v
	}
	if v := os.Getenv("ASKDOC_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ASKDOC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ASKDOC_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("ASKDOC_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("ASKDOC_DOCS_DIR"); v != "" {
		cfg.Paths.DocsDir = v
	}
}

// Validate checks invariants that would otherwise surface as runtime bugs.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return askerr.ConfigError(fmt.Sprintf("invalid port %d", c.Server.Port), nil)
	}
	if c.Search.ChunkSize <= 0 {
		return askerr.ConfigError("chunk_size must be positive", nil)
	}
	if c.Search.ChunkOverlap < 0 || c.Search.ChunkOverlap >= c.Search.ChunkSize {
		return askerr.ConfigError(
			fmt.Sprintf("chunk_overlap %d must be in [0, chunk_size)", c.Search.ChunkOverlap), nil)
	}
	if c.Search.SearchK <= 0 {
		return askerr.ConfigError("search_k must be positive", nil)
	}
	if c.Search.RerankN <= 0 {
		return askerr.ConfigError("rerank_n must be positive", nil)
	}
	if c.Search.RRFConstant <= 0 {
		return askerr.ConfigError("rrf_constant must be positive", nil)
	}
	if c.Search.ContextBudget <= 0 {
		return askerr.ConfigError("context_budget must be positive", nil)
	}
	switch c.Search.SparseBackend {
	case SparseBackendFTS5, SparseBackendBleve:
	default:
		return askerr.ConfigError(
			fmt.Sprintf("unknown sparse_backend %q (use %s or %s)",
				c.Search.SparseBackend, SparseBackendFTS5, SparseBackendBleve), nil)
	}
	if c.OpenAI.Dimensions <= 0 {
		return askerr.ConfigError("dimensions must be positive", nil)
	}
	return nil
}

// RerankEnabled reports whether a re-ranking backend is configured.
func (c Config) RerankEnabled() bool {
	return c.Cohere.APIKey != ""
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".askdoc")
	}
	return filepath.Join(home, ".askdoc")
}
