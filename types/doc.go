// Package types defines the shared error taxonomy used across the
// orchestration engine. Every error that crosses a package boundary is a
// *types.Error carrying a stable code, so callers can distinguish a
// provider rejection from a transport failure without string matching.
package types
