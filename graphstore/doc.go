// Package graphstore writes the pipeline's graph projection to Neo4j:
// Chat, Message, Chunk, Cluster, Tag and Summary nodes with their
// relationship edges, batched through UNWIND + MERGE statements so loads are
// idempotent. Node properties are scalars and ids only; raw vectors never
// enter the graph.
package graphstore
