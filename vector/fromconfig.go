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

package vector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kadirpekel/scholarsearch/config"
)

// NewProviderFromConfig builds a Provider from the top-level vector
// configuration, dispatching to the backend named by cfg.Provider.
func NewProviderFromConfig(cfg config.VectorConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewProvider(&ProviderConfig{Type: ProviderChromem})

	case "qdrant":
		host, port := splitHostPort(cfg.Endpoint, 6334)
		return NewProvider(&ProviderConfig{
			Type: ProviderQdrant,
			Qdrant: &QdrantConfig{
				Host:   host,
				Port:   port,
				APIKey: cfg.APIKey,
			},
		})

	case "pinecone":
		return NewProvider(&ProviderConfig{
			Type: ProviderPinecone,
			Pinecone: &PineconeConfig{
				APIKey:    cfg.APIKey,
				Host:      cfg.Endpoint,
				IndexName: cfg.Collection,
			},
		})

	default:
		return nil, fmt.Errorf("unsupported vector provider: %s", cfg.Provider)
	}
}

// splitHostPort splits a "host:port" endpoint, falling back to defaultPort
// when no port is present or the port isn't numeric.
func splitHostPort(endpoint string, defaultPort int) (string, int) {
	if endpoint == "" {
		return "", defaultPort
	}
	host, portStr, found := strings.Cut(endpoint, ":")
	if !found {
		return endpoint, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return endpoint, defaultPort
	}
	return host, port
}
