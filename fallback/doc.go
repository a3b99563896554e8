// Package fallback implements the Fallback Executor from spec.md §4.9: it
// walks an agent's configured provider chain in strict order, acquiring the
// Rate Gate and running the Retry Engine at each hop, validating every
// successful response with the Quality Validator, and escalating or
// surfacing failures per the spec's outcome table rather than racing
// providers in parallel.
package fallback
