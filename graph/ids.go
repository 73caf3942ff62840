package graph

import (
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// NodeID identifies a node within a single graph. Builder-assigned, opaque.
type NodeID = string

// EdgeID identifies an edge within a single graph, used in validator diagnostics.
type EdgeID = string

// ThreadID identifies a logical conversation/session whose state persists
// across many runs. Caller-supplied.
type ThreadID = string

// RunID identifies a single execution of a graph. Caller-supplied to Run;
// NewRunID generates one.
type RunID = string

// NewRunID generates a fresh run identifier. Grounded on 2389-research-mammoth's
// direct dependency on github.com/google/uuid for id generation.
func NewRunID() RunID {
	return uuid.NewString()
}

// hashState computes a BLAKE3 digest of a JSON-serialized state, used as the
// StateSnapshot integrity hash (C1, C9). BLAKE3 is the pack's fast-hash choice
// (vsavkov-kilroy's cxdb_sink.go), used here instead of the teacher's SHA-256
// because the hash only needs to be a tamper check, not an idempotency key
// (computeIdempotencyKey in checkpoint.go keeps SHA-256 for that role).
func hashState(serialized []byte) [16]byte {
	full := blake3.Sum256(serialized)
	var out [16]byte
	copy(out[:], full[:16])
	return out
}
