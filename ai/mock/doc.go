// Package mock provides test doubles for the ai service interfaces.
// Defaults are deterministic (same input, same output) so pipeline tests
// can assert on hashes; every mock supports behavior injection via function
// fields and call-count assertions.
package mock
