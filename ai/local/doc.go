// Package local implements the ai service interfaces with in-process
// heuristics: hashed-feature embeddings, term-frequency tagging, extractive
// summarization, and leader clustering. Nothing here touches the network,
// which makes the full pipeline runnable offline for smoke tests and demos.
// Quality is deliberately traded for zero dependencies; the cloud provider
// produces the same schemas with real models.
package local
