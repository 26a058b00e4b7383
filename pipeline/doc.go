// Package pipeline contains the incremental orchestration machinery: the
// generic stage runner that processes only unseen items, the dependency
// resolver that refuses to run a stage whose upstream state is missing or
// inconsistent, and the orchestrator that sequences stages, computes
// dry-run plans and performs cascading force-invalidation.
//
// The pipeline's retry unit is the next orchestrator invocation: item-level
// failures leave the item un-ledgered and are picked up on the following
// run, which is always safe because every transform is idempotent under its
// content hash.
package pipeline
