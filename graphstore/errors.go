package graphstore

import "errors"

var (
	// ErrNotConfigured indicates the graph store environment is not set up.
	ErrNotConfigured = errors.New("graph store not configured")

	// ErrUnmatchedRows indicates relationship rows whose endpoints were not
	// found in the graph.
	ErrUnmatchedRows = errors.New("unmatched relationship rows")
)
