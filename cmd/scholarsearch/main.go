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

// Command scholarsearch is the CLI for the scholarly search service.
//
// Usage:
//
//	scholarsearch serve --config config.yaml
//	scholarsearch validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/scholarsearch/analyzer"
	"github.com/kadirpekel/scholarsearch/assembler"
	"github.com/kadirpekel/scholarsearch/cache"
	"github.com/kadirpekel/scholarsearch/config"
	"github.com/kadirpekel/scholarsearch/embedder"
	"github.com/kadirpekel/scholarsearch/executor"
	"github.com/kadirpekel/scholarsearch/identity"
	"github.com/kadirpekel/scholarsearch/internal/logger"
	"github.com/kadirpekel/scholarsearch/internal/version"
	"github.com/kadirpekel/scholarsearch/llm"
	"github.com/kadirpekel/scholarsearch/memory"
	"github.com/kadirpekel/scholarsearch/planner"
	"github.com/kadirpekel/scholarsearch/quota"
	"github.com/kadirpekel/scholarsearch/retrieval"
	"github.com/kadirpekel/scholarsearch/server"
	"github.com/kadirpekel/scholarsearch/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the search server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version.Get())
	return nil
}

// ValidateCmd loads and validates a configuration file without starting
// the server.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	fmt.Println("configuration is valid")
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host  string `help:"HTTP listen host, overrides config." placeholder:"HOST"`
	Port  int    `help:"HTTP listen port, overrides config." placeholder:"PORT"`
	Watch bool   `help:"Watch the config file and log a reload notice on change."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	srv, closers, err := buildServer(ctx, cfg)
	if err != nil {
		closeAll(closers)
		return fmt.Errorf("build server: %w", err)
	}
	defer closeAll(closers)

	if c.Watch && cli.Config != "" {
		stop, err := config.WatchConfig(ctx, cli.Config, func(*config.Config) {
			slog.Info("config file changed; restart the process to apply it", "path", cli.Config)
		})
		if err != nil {
			slog.Warn("config watch failed to start", "error", err)
		} else {
			defer stop()
		}
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.NewRouter(srv),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: 0, // the streaming analyzer route holds the connection open longer than any fixed write timeout
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("scholarsearch listening", "addr", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return config.LoadConfig(path)
}

// closer names a resource to release on shutdown, in the order it was
// acquired; closeAll releases them in reverse.
type closer struct {
	name string
	fn   func() error
}

func closeAll(closers []closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			slog.Warn("close failed", "component", closers[i].name, "error", err)
		}
	}
}

// buildServer wires every configured component into a *server.Server,
// dispatching each store-backed concern (cache, quota, keyword index,
// memory) on its own driver the way memory.NewFromConfig already does.
func buildServer(ctx context.Context, cfg *config.Config) (*server.Server, []closer, error) {
	var closers []closer

	vectorProvider, err := vector.NewProviderFromConfig(cfg.Vector)
	if err != nil {
		return nil, nil, fmt.Errorf("vector provider: %w", err)
	}
	closers = append(closers, closer{"vector", vectorProvider.Close})

	emb, err := embedder.NewFromConfig(cfg.Embedder)
	if err != nil {
		return nil, closers, fmt.Errorf("embedder: %w", err)
	}

	llmClient, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return nil, closers, fmt.Errorf("llm client: %w", err)
	}
	closers = append(closers, closer{"llm", llmClient.Close})

	var keywordStore *retrieval.KeywordStore
	if cfg.Retrieval.KeywordDriver != "" {
		keywordStore, err = retrieval.OpenKeywordStore(ctx, cfg.Retrieval.KeywordDriver, cfg.Retrieval.KeywordDSN)
		if err != nil {
			return nil, closers, fmt.Errorf("keyword store: %w", err)
		}
		closers = append(closers, closer{"keyword_store", keywordStore.Close})
	}

	retrievalAdapter := retrieval.New(keywordStore, vectorProvider, emb, cfg.Vector.Collection)

	cacheStore, cacheCloser, err := buildCacheStore(ctx, cfg.Cache)
	if err != nil {
		return nil, closers, fmt.Errorf("cache store: %w", err)
	}
	if cacheCloser != nil {
		closers = append(closers, closer{"cache_store", cacheCloser})
	}
	cacheLayer := cache.New(cacheStore, cfg.Cache.TTL, cfg.Server.DevMode)

	quotaStore, quotaCloser, err := buildQuotaStore(ctx, cfg.Quota)
	if err != nil {
		return nil, closers, fmt.Errorf("quota store: %w", err)
	}
	if quotaCloser != nil {
		closers = append(closers, closer{"quota_store", quotaCloser})
	}
	quotaGate := quota.New(quotaStore, cfg.Quota.VerifiedLimit, cfg.Quota.AnonymousLimit)

	memAdapter, err := memory.NewFromConfig(ctx, cfg.Memory, emb)
	if err != nil {
		return nil, closers, fmt.Errorf("memory adapter: %w", err)
	}
	closers = append(closers, closer{"memory", memAdapter.Close})

	plannerInstance := planner.New(llmClient)
	executorInstance := executor.New(retrievalAdapter, cfg.Retrieval.FanoutConcurrency, cfg.Retrieval.MergeHardCap)
	analyzerInstance := analyzer.New(llmClient)

	pipeline := assembler.New(cacheLayer, quotaGate, plannerInstance, executorInstance, analyzerInstance, memAdapter)
	pipeline.BatchSize = cfg.Analyzer.BatchSize
	pipeline.MaxConcurrent = cfg.Analyzer.MaxConcurrent
	pipeline.RetrievalLimitPerQuery = cfg.Retrieval.MergeHardCap
	pipeline.MemoryTopK = cfg.Memory.TopK
	pipeline.Model = llmClient.Model()

	var validator identity.TokenValidator
	if cfg.Auth.Enabled {
		v, err := identity.NewJWTValidator(ctx, cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return nil, closers, fmt.Errorf("jwt validator: %w", err)
		}
		validator = v
	}

	return &server.Server{
		Pipeline:  pipeline,
		Retrieval: retrievalAdapter,
		LLM:       llmClient,
		Auth:      validator,
		Version:   version.Get().Version,
	}, closers, nil
}

// buildCacheStore dispatches on cfg.StoreDriver the way
// memory.NewFromConfig already dispatches on its own StoreDriver field.
func buildCacheStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, func() error, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return cache.NewMemoryStore(), nil, nil
	case "postgres", "mysql", "sqlite", "sqlite3":
		store, err := cache.OpenSQLStore(ctx, cfg.StoreDriver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache store driver: %s", cfg.StoreDriver)
	}
}

// buildQuotaStore mirrors buildCacheStore for the quota gate's count store.
func buildQuotaStore(ctx context.Context, cfg config.QuotaConfig) (quota.Store, func() error, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return quota.NewMemoryStore(), nil, nil
	case "postgres", "mysql", "sqlite", "sqlite3":
		store, err := quota.OpenSQLStore(ctx, cfg.StoreDriver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported quota store driver: %s", cfg.StoreDriver)
	}
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("scholarsearch"),
		kong.Description("Scholarly search service: keyword/semantic/hybrid retrieval with planned, analyzed answers."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	ctx.FatalIfErrorf(err)

	output := os.Stderr
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		ctx.FatalIfErrorf(err)
		defer closeFile()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
