// Package stages implements the ten pipeline stages, from archive ingestion
// through dual-store loading. Each stage declares its upstream inputs,
// derives content-addressed work items, and leans on the pipeline runner for
// concurrency, checkpointing and idempotence.
package stages
