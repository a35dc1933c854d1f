// Package scenario defines the test flow graphs executed by the engine.
//
// A scenario is a directed graph of typed nodes (start, action,
// condition, loop, end) joined by labeled connections. The engine walks
// one scenario per (device, repetition) unit; this package owns the
// graph model, its validation rules, and its persistence.
//
// # Architecture
//
//	┌─────────────┐     validates      ┌──────────────┐
//	│  HTTP API   │ ──── imports ────► │   Registry    │
//	└─────────────┘                    │  (cache+lock) │
//	┌─────────────┐      reads         └──────┬───────┘
//	│   Engine    │ ◄── DeepCopy ────         │
//	└─────────────┘                    ┌──────▼───────┐
//	                                   │  Repository   │
//	                                   │   (SQLite)    │
//	                                   └──────────────┘
//
// The registry hands out deep copies only, so a running test never
// observes a concurrent edit to its graph.
//
// Import payloads are checked against an embedded JSON Schema before
// structural validation, so malformed uploads fail with a precise
// schema error rather than a partial decode.
package scenario
