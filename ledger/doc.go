// Package ledger persists, per pipeline stage, the set of content hashes the
// stage has already successfully processed.
//
// A ledger is a named collection of hash sets ("slots"). Most stages use the
// single default slot; the loading stage tracks one slot per artifact type
// it writes. Ledgers live as plain JSON files next to the stage's artifact
// so an operator can inspect or remove them per stage. Flush writes to a
// temp file in the same directory and renames it into place, so a crash
// never corrupts the on-disk ledger; at worst it re-processes items whose
// completion had not yet been flushed, which is safe because processing is
// idempotent.
package ledger
