// Package loader writes finalized pipeline artifacts to the two terminal
// stores: graph entities and relationships to Neo4j, embedding points to
// Qdrant. Per-artifact-type ledger slots keyed by record-hash-set digests
// make reruns skip unchanged artifact types wholesale.
package loader
