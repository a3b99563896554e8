package kv

import (
	"errors"

	"github.com/relaycore/orchestrator/types"
)

// ErrNotFound is returned by Get/HGet when the key or field does not exist.
var ErrNotFound = errors.New("kv: key not found")

// wrapNetworkErr classifies a networked-store transport failure as the
// Network FailureKind, per spec §4.1: "Failures from the networked store
// fall back to Network FailureKind."
func wrapNetworkErr(op, key string, cause error) error {
	return types.NewFailure(types.KindNetwork, "kv "+op+" failed for key "+key).WithCause(cause)
}
