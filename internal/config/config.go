package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr              string  `yaml:"addr" validate:"required"`
	MaxFileSizeMB     int     `yaml:"max_file_size_mb" validate:"gte=1"`
	SessionTTLMinutes int     `yaml:"session_ttl_minutes" validate:"gte=1"`
	CooldownSeconds   float64 `yaml:"cooldown_seconds" validate:"gte=0"`
	MaxQueries        int     `yaml:"max_queries_per_session" validate:"gte=1"`
}

// EmbeddingConfig selects and configures the embedding provider.
// Device is a hint for locally hosted models; the OpenAI provider
// ignores it.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=openai ollama"`
	Model     string `yaml:"model" validate:"required"`
	BaseURL   string `yaml:"base_url"`
	Device    string `yaml:"device" validate:"oneof=cpu cuda"`
	Normalize bool   `yaml:"normalize"`
}

// LLMConfig configures the chat model used to generate answers.
type LLMConfig struct {
	Model          string  `yaml:"model" validate:"required"`
	BaseURL        string  `yaml:"base_url"`
	Temperature    float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxRetries     int     `yaml:"max_retries" validate:"gte=0"`
	TimeoutSeconds int     `yaml:"request_timeout_seconds" validate:"gte=1"`
}

// RAGConfig controls retrieval and conversation bookkeeping.
type RAGConfig struct {
	RetrievalK       int `yaml:"retrieval_k" validate:"gte=1"`
	MaxHistoryLength int `yaml:"max_history_length" validate:"gte=1"`
}

// PDFConfig controls the page window rendered around an answer page.
type PDFConfig struct {
	ContextPagesBefore int `yaml:"context_pages_before" validate:"gte=0"`
	ContextPagesAfter  int `yaml:"context_pages_after" validate:"gte=0"`
	DPI                int `yaml:"dpi" validate:"gte=36,lte=600"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
	PDF       PDFConfig       `yaml:"pdf"`

	// APIKey is read from the environment, never from the file.
	APIKey string `yaml:"-"`
}

const apiKeyEnv = "OPENAI_API_KEY"

// LoadConfig reads the YAML config at path, applies defaults, resolves
// credentials from the environment and validates the result. Any
// failure here is fatal at startup.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// missing file means defaults plus environment
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.APIKey = os.Getenv(apiKeyEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks numeric settings and required credentials.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// Answer generation always goes through an OpenAI-compatible
	// endpoint, so the key is required regardless of the embedding
	// provider.
	if c.APIKey == "" {
		return fmt.Errorf("%s missing in environment", apiKeyEnv)
	}
	return nil
}

// RequestTimeout returns the per-attempt timeout for model calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// Cooldown returns the minimum interval between accepted queries.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Server.CooldownSeconds * float64(time.Second))
}

// SessionTTL returns how long an idle session is kept alive.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLMinutes) * time.Minute
}

// MaxFileSize returns the upload limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Server.MaxFileSizeMB) * 1024 * 1024
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			MaxFileSizeMB:     20,
			SessionTTLMinutes: 60,
			CooldownSeconds:   2.0,
			MaxQueries:        10,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Device:   "cpu",
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			Temperature:    0.2,
			MaxRetries:     5,
			TimeoutSeconds: 30,
		},
		RAG: RAGConfig{
			RetrievalK:       2,
			MaxHistoryLength: 20,
		},
		PDF: PDFConfig{
			ContextPagesBefore: 2,
			ContextPagesAfter:  2,
			DPI:                150,
		},
	}
}
