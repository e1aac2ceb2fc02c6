// Package store provides SQLite-backed durable storage for the ledger's
// block log.
//
// The log is append-only:
//   - blocks: one row per committed batch, with its instructions as
//     canonical JSON, the world hash after it and the chained block hash
//   - events: the events a block raised, in raise order
//   - rejections: batches that failed, with the failing instruction index
//     and error code
//
// The world itself is never stored. It is rebuilt by replaying blocks in
// height order, and each block's world hash checks the replay.
//
// ReadEvents searches the event history by object, kind and height range
// with a parameterized query ordered by (height, idx).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
