// Package mirage is a dynamic REST metaservice: every incoming HTTP request
// is handed to an LLM planner, which answers with a structured plan plus a
// short program in a restricted Python-like language. The program is checked
// by a safety validator, then executed in an in-process sandbox against a
// per-tenant resource store, and its declared REPLY becomes the HTTP response.
//
// # Pipeline
//
// Request handling flows strictly downward:
//
//	RequestContext → Planner (LLM) → Plan{action, resource, identifier, code}
//	              → Host (validate + execute) → ResourceStore mutation → Reply
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider] — LLM backend (single prompt in, single completion out)
//   - [Store] — per-tenant session namespace factory
//   - [SessionStore], [ResourceStore] — record collections with CRUD,
//     pagination, suffix search, and schema inference
//   - [Tracer] — optional span creation (OTEL-backed impl in observer)
//
// # Included Implementations
//
// Providers: provider/anthropic, provider/openai.
// Storage: store/memory (transient), store/file (JSON-per-resource on disk),
// store/sqlite (single file), store/postgres (JSONB).
// The sandbox language — lexer, parser, safety validator, interpreter —
// lives in the script package.
//
// See cmd/mirage for the complete service binary.
package mirage
