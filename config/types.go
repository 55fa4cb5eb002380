// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/scholarsearch/internal/observability"
)

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "simple" | "verbose"
	File   string `yaml:"file,omitempty"`
}

func (c *LoggingConfig) Validate() error { return nil }

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DevMode        bool          `yaml:"dev_mode"` // disables cache lookup globally
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// AuthConfig configures JWT bearer-token validation. Hector-style: a JWT
// consumer validating tokens issued by an external provider, never an
// issuer itself.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	JWKSURL  string `yaml:"jwks_url"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

func (c *AuthConfig) Validate() error {
	if c.Enabled {
		if c.JWKSURL == "" {
			return fmt.Errorf("jwks_url is required when auth is enabled")
		}
		if c.Issuer == "" {
			return fmt.Errorf("issuer is required when auth is enabled")
		}
	}
	return nil
}

func (c *AuthConfig) SetDefaults() {}

// QuotaConfig holds the per-tier request budgets (§3: banned=0, verified=20,
// anonymous=10, all higher tiers unbounded).
type QuotaConfig struct {
	VerifiedLimit  int    `yaml:"verified_limit"`
	AnonymousLimit int    `yaml:"anonymous_limit"`
	StoreDriver    string `yaml:"store_driver"` // "memory" | "postgres" | "mysql" | "sqlite"
	DSN            string `yaml:"dsn,omitempty"`
}

func (c *QuotaConfig) Validate() error { return nil }

func (c *QuotaConfig) SetDefaults() {
	if c.VerifiedLimit == 0 {
		c.VerifiedLimit = 20
	}
	if c.AnonymousLimit == 0 {
		c.AnonymousLimit = 10
	}
	if c.StoreDriver == "" {
		c.StoreDriver = "memory"
	}
}

// CacheConfig controls the query fingerprint cache.
type CacheConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	StoreDriver string        `yaml:"store_driver"` // "memory" | "postgres" | "mysql" | "sqlite"
	DSN         string        `yaml:"dsn,omitempty"`
}

func (c *CacheConfig) Validate() error { return nil }

func (c *CacheConfig) SetDefaults() {
	if c.TTL == 0 {
		c.TTL = 6 * time.Hour
	}
	if c.StoreDriver == "" {
		c.StoreDriver = "memory"
	}
}

// VectorConfig selects and configures the semantic index backend.
type VectorConfig struct {
	Provider   string `yaml:"provider"` // "chromem" | "qdrant" | "pinecone"
	Collection string `yaml:"collection"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Dimension  int    `yaml:"dimension"`
}

func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case "chromem", "qdrant", "pinecone", "":
		return nil
	default:
		return fmt.Errorf("unsupported vector provider: %s", c.Provider)
	}
}

func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "passages"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider"` // "openai" | "ollama" | "cohere"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

func (c *EmbedderConfig) Validate() error { return nil }

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
}

// LLMConfig selects and configures the planner/analyzer LLM provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "openai" | "anthropic" | "gemini" | "ollama"
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Temperature float64       `yaml:"temperature"`
}

func (c *LLMConfig) Validate() error { return nil }

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 15 * time.Second
	}
}

// RetrievalConfig controls the Retrieval Adapter's index connection and the
// Fan-out Executor's concurrency.
type RetrievalConfig struct {
	IndexEndpoint      string  `yaml:"index_endpoint,omitempty"`
	DefaultSemanticMix float64 `yaml:"default_semantic_ratio"`
	FanoutConcurrency  int     `yaml:"fanout_concurrency"`
	MergeHardCap       int     `yaml:"merge_hard_cap"`

	// KeywordDriver/KeywordDSN configure the SQL paragraph store behind
	// keyword and hybrid mode; an empty driver means keyword mode has no
	// store to query (semantic-only deployment).
	KeywordDriver string `yaml:"keyword_driver,omitempty"` // "postgres" | "mysql" | "sqlite"
	KeywordDSN    string `yaml:"keyword_dsn,omitempty"`
}

func (c *RetrievalConfig) Validate() error { return nil }

func (c *RetrievalConfig) SetDefaults() {
	if c.DefaultSemanticMix == 0 {
		c.DefaultSemanticMix = 0.5
	}
	if c.FanoutConcurrency == 0 {
		c.FanoutConcurrency = 5
	}
	if c.MergeHardCap == 0 {
		c.MergeHardCap = 200
	}
}

// AnalyzerConfig controls the Parallel Analyzer's batching.
type AnalyzerConfig struct {
	BatchSize     int `yaml:"batch_size"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

func (c *AnalyzerConfig) Validate() error { return nil }

func (c *AnalyzerConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 2
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 10
	}
}

// MemoryConfig controls the Memory Adapter.
type MemoryConfig struct {
	Enabled    bool `yaml:"enabled"`
	TopK       int  `yaml:"top_k"`
	StoreDriver string `yaml:"store_driver,omitempty"` // "memory" | "postgres" | "mysql" | "sqlite"
	DSN         string `yaml:"dsn,omitempty"`
}

func (c *MemoryConfig) Validate() error { return nil }

func (c *MemoryConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.StoreDriver == "" {
		c.StoreDriver = "memory"
	}
}

// Config is the single entry point for all process configuration, the way
// a docker-compose.yml is the single entry point for a stack.
type Config struct {
	Server    ServerConfig                `yaml:"server,omitempty"`
	Logging   LoggingConfig               `yaml:"logging,omitempty"`
	Auth      AuthConfig                  `yaml:"auth,omitempty"`
	Tracing   observability.TracingConfig `yaml:"tracing,omitempty"`
	Quota     QuotaConfig                 `yaml:"quota,omitempty"`
	Cache     CacheConfig                 `yaml:"cache,omitempty"`
	Vector    VectorConfig                `yaml:"vector,omitempty"`
	Embedder  EmbedderConfig              `yaml:"embedder,omitempty"`
	LLM       LLMConfig                   `yaml:"llm,omitempty"`
	Retrieval RetrievalConfig             `yaml:"retrieval,omitempty"`
	Analyzer  AnalyzerConfig              `yaml:"analyzer,omitempty"`
	Memory    MemoryConfig                `yaml:"memory,omitempty"`
}

// Validate validates the complete configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector config: %w", err)
	}
	return nil
}

// SetDefaults fills every zero-valued field with a runnable default, so the
// service starts with no configuration file at all (in-memory cache store,
// chromem-go vector store, OpenAI LLM/embedder expecting an API key from the
// environment).
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Auth.SetDefaults()
	c.Tracing.SetDefaults()
	c.Quota.SetDefaults()
	c.Cache.SetDefaults()
	c.Vector.SetDefaults()
	c.Embedder.SetDefaults()
	c.LLM.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Analyzer.SetDefaults()
	c.Memory.SetDefaults()
}
