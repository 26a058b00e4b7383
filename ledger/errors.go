package ledger

import "errors"

var (
	// ErrCorruptLedger indicates the on-disk ledger could not be parsed.
	// Surfaced to the operator; the stage refuses to run until resolved.
	ErrCorruptLedger = errors.New("corrupt ledger file")
)
