// Package engine runs ledger batches against the world.
//
// ARCHITECTURE:
//
// Single-Writer Batch Loop:
// Batches are processed one at a time for deterministic behavior. Submit
// enqueues a batch from any goroutine and returns a Pending future; Run
// dequeues batches in FIFO order and processes each one to completion
// before starting the next. Apply processes a batch on the caller's
// goroutine and shares the writer lock with Run.
//
// Batch Processing Flow:
//  1. Open a world.Tx
//  2. For each instruction: authorize, execute, then cascade the raised
//     events through the triggers
//  3. Run the time check: schedule triggers due in (previous block time,
//     block time] and pre-commit triggers
//  4. Hash the world, chain the block and append it to the store
//  5. Commit the Tx and publish the block to subscribers
//
// Any failure rolls the Tx back, including every trigger effect, and the
// batch is reported as rejected with the failing instruction index (-1
// for the time check). Rejections are recorded in the store but do not
// produce blocks.
//
// Readers (Snapshot) never see a partial batch.
//
// Replay rebuilds the world from the store by re-executing every block and
// comparing each block's world hash.
package engine
