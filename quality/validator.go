// Package quality implements the stateless response scoring the Fallback
// Executor runs after every successful adapter call (spec.md §4.10): a
// response either passes or is rejected with a reason, and the bar it must
// clear depends on the calling provider's tier.
package quality

import (
	"strings"
	"unicode"

	"github.com/relaycore/orchestrator/types"
)

// Tier-dependent minimum response length, in characters.
const (
	minLengthWorker = 50
	minLengthBoss   = 200
)

// refusalMarkers are checked case-insensitively against the start of the
// response text.
var refusalMarkers = []string{
	"i cannot",
	"i can't",
	"i don't know",
	"unable to",
	"[error]",
}

// Result is the outcome of validating one response.
type Result struct {
	Accepted bool
	// Reason is set when Accepted is false, naming which check failed.
	Reason string
}

// Validator runs the minimum checks spec.md §4.10 requires: a tier-scaled
// length floor, a refusal-marker scan at the response head, and a
// control-character scan of the full body. It is stateless — safe for
// concurrent use, holds no per-provider state.
type Validator struct{}

// NewValidator constructs a Validator. It takes no configuration: every
// threshold is fixed by spec.md §4.10.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate scores content against the thresholds for tier ("worker",
// "boss", or any other value, which is treated as the worker floor).
func (v *Validator) Validate(content, tier string) Result {
	if reason, ok := v.checkLength(content, tier); !ok {
		return Result{Accepted: false, Reason: reason}
	}
	if reason, ok := v.checkRefusal(content); !ok {
		return Result{Accepted: false, Reason: reason}
	}
	if reason, ok := v.checkControlChars(content); !ok {
		return Result{Accepted: false, Reason: reason}
	}
	return Result{Accepted: true}
}

// ValidateOrError is Validate wrapped into the FailureKind taxonomy: a
// rejection becomes a *types.Error carrying KindQualityRejected, the shape
// the Fallback Executor's failure bookkeeping expects.
func (v *Validator) ValidateOrError(content, tier string) error {
	result := v.Validate(content, tier)
	if result.Accepted {
		return nil
	}
	return types.NewFailure(types.KindQualityRejected, result.Reason)
}

func (v *Validator) checkLength(content, tier string) (string, bool) {
	min := minLengthWorker
	if tier == "boss" {
		min = minLengthBoss
	}
	if len(content) < min {
		return "response shorter than minimum length for tier", false
	}
	return "", true
}

func (v *Validator) checkRefusal(content string) (string, bool) {
	head := strings.ToLower(strings.TrimSpace(content))
	for _, marker := range refusalMarkers {
		if strings.HasPrefix(head, marker) {
			return "response begins with a refusal marker", false
		}
	}
	return "", true
}

func (v *Validator) checkControlChars(content string) (string, bool) {
	for _, r := range content {
		// Tab, newline, and carriage return are ordinary formatting, not
		// corruption.
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return "response contains control-character corruption", false
		}
	}
	return "", true
}
