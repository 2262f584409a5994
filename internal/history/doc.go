// Package history records conversion runs in SQLite.
//
// Each run gets a row in runs when it starts and is updated with its terminal
// outcome and counters when it finishes. Every launched file gets a row in
// run_files that is completed when the encoder exits. The ledger is
// append-mostly; nothing reads it back to resume work.
//
// Schema changes bump schemaVersion in schema.go; users delete history.db to
// adopt the new schema.
package history
