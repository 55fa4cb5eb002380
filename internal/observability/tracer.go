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

// Package observability provides OpenTelemetry tracing and Prometheus metrics
// helpers for the Planner, Fan-out Executor, Parallel Analyzer and LLM Adapter
// calls. Those packages do not call the helpers; only TracingConfig is
// referenced elsewhere, from config.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Span name constants, reused as attribute keys across the pipeline.
const (
	SpanPlan     = "scholarsearch.plan"
	SpanRetrieve = "scholarsearch.retrieve"
	SpanAnalyze  = "scholarsearch.analyze"
	SpanLLMCall  = "scholarsearch.llm_call"

	AttrLLMModel        = "llm.model"
	AttrLLMProvider     = "llm.provider"
	AttrRetrievalMode   = "retrieval.mode"
	AttrPlanStrategy    = "plan.strategy"
	AttrAnalyzerBatches = "analyzer.batch_count"
)

// TracingConfig configures the tracer.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "stdout" | "otlp" | "none"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// SetDefaults fills zero-valued fields with runnable defaults.
func (c *TracingConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
	if c.ServiceName == "" {
		c.ServiceName = "scholarsearch"
	}
}

var globalTracer trace.Tracer = otel.Tracer("scholarsearch")

// Init installs a TracerProvider per cfg as the global OpenTelemetry tracer.
// Returns a shutdown function; safe to call with cfg == nil or disabled,
// in which case tracing becomes a cheap no-op.
func Init(ctx context.Context, cfg *TracingConfig) (func(context.Context) error, error) {
	if cfg == nil || !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	cfg.SetDefaults()

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	globalTracer = provider.Tracer(cfg.ServiceName)

	slog.Info("tracing initialized", "exporter", cfg.Exporter, "sampling_rate", cfg.SamplingRate)
	return provider.Shutdown, nil
}

func createExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return stdouttrace.New()
	}
}

// GetTracer returns the process tracer; name is not used, every component
// gets the same tracer.
func GetTracer(name string) trace.Tracer {
	return globalTracer
}
