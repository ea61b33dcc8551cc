// Package store provides SQLite-backed local persistence for the sync engine.
//
// The store keeps, per signed-in owner:
//   - Snapshot: the owner's profile, snapshot version and update time
//   - Contacts: one row per relationship record, with the record as JSON
//   - Intents: write-ahead markers for two-sided relationship creates
//
// # Atomic Replace
//
// Save rewrites the snapshot row and all contact rows in a single
// transaction. After a crash, Load returns either the previous snapshot
// or the new one, never a mix of both.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Schema changes are applied through PRAGMA user_version migrations.
package store
