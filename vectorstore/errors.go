package vectorstore

import "errors"

// ErrNotConfigured indicates the vector store environment is not set up.
var ErrNotConfigured = errors.New("vector store not configured")
