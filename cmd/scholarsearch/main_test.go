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

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/config"
)

func ollamaConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.LLM.Provider = "ollama"
	cfg.Embedder.Provider = "ollama"
	cfg.Vector.Provider = "chromem"
	cfg.Cache.StoreDriver = "memory"
	cfg.Quota.StoreDriver = "memory"
	cfg.Memory.StoreDriver = "memory"
	return cfg
}

func TestBuildServer_WiresEveryComponentWithoutNetworkCalls(t *testing.T) {
	cfg := ollamaConfig()

	srv, closers, err := buildServer(context.Background(), cfg)
	require.NoError(t, err)
	defer closeAll(closers)

	assert.NotNil(t, srv.Pipeline)
	assert.NotNil(t, srv.Retrieval)
	assert.NotNil(t, srv.LLM)
	assert.Nil(t, srv.Auth)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.NotEmpty(t, closers)
}

func TestBuildServer_SkipsKeywordStoreWhenNoDriverConfigured(t *testing.T) {
	cfg := ollamaConfig()
	cfg.Retrieval.KeywordDriver = ""

	srv, closers, err := buildServer(context.Background(), cfg)
	require.NoError(t, err)
	defer closeAll(closers)

	assert.NotNil(t, srv.Retrieval)
}

func TestBuildServer_RejectsUnsupportedCacheDriver(t *testing.T) {
	cfg := ollamaConfig()
	cfg.Cache.StoreDriver = "not-a-real-driver"

	_, _, err := buildServer(context.Background(), cfg)
	require.Error(t, err)
}

func TestLoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.StoreDriver)
}

func TestValidateCmd_AcceptsDefaultConfig(t *testing.T) {
	cmd := &ValidateCmd{}
	err := cmd.Run(&CLI{})
	assert.NoError(t, err)
}
