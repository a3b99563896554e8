// Package quality implements the Quality Validator from spec §4.10: a
// stateless, tier-aware scoring pass the Fallback Executor runs on every
// successful adapter response before accepting it — minimum length, absence
// of a refusal marker at the response head, and absence of control-character
// corruption.
package quality
