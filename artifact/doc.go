// Package artifact manages the pipeline workspace on disk: one append-only
// newline-delimited JSON file per stage output, a ledger file per stage, and
// a metadata file per stage run.
//
// Every record appended to an artifact must carry its own content hash and
// resolvable cross-reference ids; the writer rejects records that violate
// that contract before they reach the file. Records are appended only after
// a successful transform, never before, so an interrupted run leaves no
// partial record behind.
package artifact
