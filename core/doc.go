// Package core defines the pipeline's domain entities and the content
// hashing that gives each of them a stable identity.
//
// Every entity is identified by a deterministic digest of its semantically
// relevant fields, so identical input always maps to the same identity no
// matter when or where it is processed. Entities carry the ids of all
// ancestors they can be joined on (the cross-reference contract); downstream
// stages never re-derive ancestry by content matching.
package core
