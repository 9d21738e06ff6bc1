// Package store provides the SQLite-backed event journal for quorum gates.
//
// Every event a gate emits is appended to the events table, keyed by its
// unique id and ordered by (gate, seq). A gate is rebuilt on start by
// replaying its journal through Restore.
//
// # Critical Patterns
//
// Logical time:
//   - All ordering uses seq INTEGER (the gate's logical clock), never timestamps
//   - Queries order by seq ASC, id ASC COLLATE BINARY
//
// Idempotent append:
//   - INSERT ... ON CONFLICT(id) DO NOTHING, so redelivering an event is a no-op
//   - UNIQUE(gate, seq) rejects a second writer racing on the same gate
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
