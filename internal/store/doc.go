// Package store provides SQLite-backed durable storage for the agent registry.
//
// The store holds:
//   - Personas: the registry's account -> CID map (one row per account)
//   - Receipts: one record per ledger call, success or failure
//   - Receipt logs: the event lines emitted by successful calls
//   - Contract state: the singleton initialization record
//
// # Write Atomicity
//
// Every ledger call runs inside one Tx. The persona upsert, the receipt and its
// log lines are committed together or not at all. Tx implements the registry's
// KVStore so the registry never sees a half-applied call.
//
// # Deterministic Reads
//
//   - Receipts: ORDER BY seq ASC, id COLLATE BINARY ASC
//   - Logs: ORDER BY idx ASC
//   - Personas: ORDER BY account_id COLLATE BINARY ASC
//
// Ordering uses the logical seq, never timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
