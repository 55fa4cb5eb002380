// Package scholarsearch is a keyword/semantic/hybrid search service over a
// paragraph corpus, answering natural-language queries with a planned
// retrieval fan-out and an LLM-written introduction grounded in the
// retrieved sources.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/scholarsearch/cmd/scholarsearch@latest
//
// Start the server against a config file:
//
//	scholarsearch serve --config config.yaml
//
// # Architecture
//
// A query flows through a fixed pipeline: Query Fingerprint & Cache Store →
// Quota Gate → Planner → Fan-out Executor (Retrieval Adapter) → Parallel
// Analyzer → Response Assembler, with a Memory Adapter threading prior turns
// of the same session into the plan. Each stage is its own package so the
// pipeline can be tested and swapped stage by stage.
//
// # License
//
// Apache-2.0 - See LICENSE for details.
package scholarsearch
