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

package memory

import (
	"context"
	"fmt"

	"github.com/kadirpekel/scholarsearch/config"
	"github.com/kadirpekel/scholarsearch/embedder"
)

// NewFromConfig builds the configured Adapter. emb may be nil; when non-nil
// and cfg.StoreDriver isn't "memory", Recall ranks by embedding similarity
// instead of recency.
func NewFromConfig(ctx context.Context, cfg config.MemoryConfig, emb embedder.Embedder) (Adapter, error) {
	if !cfg.Enabled {
		return NilAdapter{}, nil
	}
	switch cfg.StoreDriver {
	case "", "memory":
		return NewInMemoryAdapter(), nil
	case "postgres", "mysql", "sqlite", "sqlite3":
		return OpenSQLAdapter(ctx, cfg.StoreDriver, cfg.DSN, emb)
	default:
		return nil, fmt.Errorf("unsupported memory store driver: %s", cfg.StoreDriver)
	}
}
