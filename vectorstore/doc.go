// Package vectorstore is a minimal Qdrant REST client used by the loading
// stage: ensure the collection exists, upsert points whose payloads carry
// the full cross-reference id set of each embedding.
package vectorstore
