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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads, env-expands and validates a YAML configuration file.
// A missing file is not an error: the returned Config carries only defaults,
// matching the zero-config operating mode.
func LoadConfig(filePath string) (*Config, error) {
	var cfg Config

	if filePath != "" {
		if err := loadConfigFile(filePath, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadConfigFromString parses a YAML string directly, used by tests.
func LoadConfigFromString(yamlContent string) (*Config, error) {
	var cfg Config
	if err := unmarshalExpanded([]byte(yamlContent), &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from string: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := unmarshalExpanded(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// unmarshalExpanded decodes YAML into a generic tree, expands
// ${VAR}/${VAR:-default}/$VAR references against the process environment,
// then re-marshals and strictly decodes into cfg.
func unmarshalExpanded(data []byte, cfg *Config) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	expanded := ExpandEnvVarsInData(convertYAMLMap(raw))
	out, err := yaml.Marshal(expanded)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(out, cfg)
}

// convertYAMLMap normalizes yaml.v3's map[string]interface{} decoding (it
// already uses string keys, unlike gopkg.in/yaml.v2's map[interface{}]interface{},
// but nested maps still need a recursive pass so ExpandEnvVarsInData's type
// switch matches uniformly).
func convertYAMLMap(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = convertYAMLMap(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = convertYAMLMap(val)
		}
		return out
	default:
		return v
	}
}

// WatchConfig reloads the file at path whenever it changes on disk and
// invokes onReload with the freshly loaded Config. The serve command's
// callback only logs a restart notice; nothing is applied live. Errors from a
// single reload attempt are logged and do not stop the watch.
func WatchConfig(ctx context.Context, path string, onReload func(*Config)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		const delay = 150 * time.Millisecond

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(delay, func() {
					cfg, err := LoadConfig(path)
					if err != nil {
						slog.Error("config reload failed", "path", path, "error", err)
						return
					}
					slog.Info("config reloaded", "path", path)
					onReload(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "error", err)
			}
		}
	}()

	return watcher.Close, nil
}
