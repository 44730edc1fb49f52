// Package fallback implements first-success-wins candidate selection
// over a single provider: an ordered list of model identifiers is tried
// strictly sequentially, never concurrently, so fallback ordering stays
// deterministic and provider quota bounded.
package fallback
