// Package storage provides the embedding vector storage abstraction.
//
// Raw vectors are deliberately kept out of the NDJSON artifacts: embedding
// records there carry only dims, model and cross-references, while the
// components live in a VectorRepository keyed by embedding hash. Downstream
// stages fetch vectors by hash for random access without scanning artifacts.
//
// Public constructors (badger.NewVectorRepository) return the
// storage.VectorRepository interface to keep stages decoupled from the
// backing store.
package storage
