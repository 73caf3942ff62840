// Package store provides persistence implementations for graph state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tmcgrath/graphrun/graph/emit"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistence for workflow state and checkpoints: step-by-step
// state, latest-state retrieval for resumption, and named checkpoint
// save/load for branching workflows. Implementations range from in-memory
// (memory.go, for tests) to relational backends (sqlite.go, mysql.go).
//
// This is the engine's original persistence surface, driven by CheckpointV2
// and keyed by runID/stepID. Checkpointer (checkpointer.go) is the newer,
// narrower C9 surface keyed by thread_id with hash-verified StateSnapshot; an
// Engine can use both at once — Store for step history and event outbox,
// Checkpointer for resumable thread snapshots.
type Store[S any] interface {
	// SaveStep persists the state after a node execution step, identified by
	// runID + step (1-indexed) + the node that produced it.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest retrieves the most recently saved state and step for runID,
	// to resume execution from the last saved step. Returns ErrNotFound if
	// runID doesn't exist.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveCheckpoint creates a named, user-labeled snapshot for branching
	// workflows and manual resumption points.
	SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error

	// LoadCheckpoint restores state from a named checkpoint. Returns
	// ErrNotFound if cpID doesn't exist.
	LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error)

	// SaveCheckpointV2 persists a CheckpointV2 — state, frontier, RNG seed,
	// recorded I/O and idempotency key — the full context needed to resume
	// concurrent execution deterministically. Returns an error if the
	// idempotency key was already committed.
	SaveCheckpointV2(ctx context.Context, checkpoint CheckpointV2[S]) error

	// LoadCheckpointV2 retrieves a CheckpointV2 by its system-generated
	// (runID, stepID) rather than a user label, enabling resumption or replay
	// from any step in the execution history. Returns ErrNotFound if absent.
	LoadCheckpointV2(ctx context.Context, runID string, stepID int) (CheckpointV2[S], error)

	// CheckIdempotency reports whether key (a hash of runID+stepID+frontier+state)
	// has already been committed, to prevent duplicate step commits on retry
	// or crash recovery.
	CheckIdempotency(ctx context.Context, key string) (bool, error)

	// PendingEvents retrieves up to limit events from the transactional
	// outbox that have not yet been marked emitted, ordered by creation time.
	// Pairs with MarkEventsEmitted for exactly-once delivery without a
	// message broker.
	PendingEvents(ctx context.Context, limit int) ([]emit.Event, error)

	// MarkEventsEmitted records eventIDs as successfully delivered so
	// PendingEvents stops returning them and crash recovery doesn't re-emit.
	MarkEventsEmitted(ctx context.Context, eventIDs []string) error
}

// StepRecord represents a single execution step in the workflow history.
// Used internally by Store implementations to track step-by-step progression.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int

	// NodeID identifies which node produced this state.
	NodeID string

	// State is the workflow state after this step completed.
	State S
}

// Checkpoint represents a named snapshot of workflow state.
// Used by Store implementations to persist and restore checkpoints.
//
// Deprecated: Use CheckpointV2 for enhanced checkpointing features.
// This type is kept for backward compatibility with the original SaveCheckpoint/LoadCheckpoint methods.
type Checkpoint[S any] struct {
	// ID is the unique checkpoint identifier.
	ID string

	// State is the snapshotted workflow state.
	State S

	// Step is the step number when this checkpoint was created.
	Step int
}

// CheckpointV2 is an engine-managed checkpoint carrying everything needed to
// resume execution from a specific step: accumulated state, pending frontier
// work items, recorded I/O for replay, RNG seed, and an idempotency key.
// Supports both automatic resumption after failures and labeled snapshots for
// debugging or branching. S must be JSON-serializable.
type CheckpointV2[S any] struct {
	// RunID uniquely identifies the execution this checkpoint belongs to.
	RunID string `json:"run_id"`

	// StepID is the execution step number at checkpoint time.
	// Monotonically increasing within a run.
	StepID int `json:"step_id"`

	// State is the current accumulated state after applying all deltas up to StepID.
	// Must be JSON-serializable for persistence.
	State S `json:"state"`

	// Frontier contains the work items ready to execute at this checkpoint.
	// Must be JSON-serializable. Type is interface{} to avoid circular dependency.
	// Expected to be []WorkItem[S] from graph package.
	Frontier interface{} `json:"frontier"`

	// RNGSeed is the seed for deterministic random number generation.
	// Computed from RunID to ensure consistent random values across replays.
	RNGSeed int64 `json:"rng_seed"`

	// RecordedIOs contains all captured external interactions up to this checkpoint.
	// Must be JSON-serializable. Type is interface{} to avoid circular dependency.
	// Expected to be []RecordedIO from graph package.
	RecordedIOs interface{} `json:"recorded_ios"`

	// IdempotencyKey is a hash of (RunID, StepID, State, Frontier) that prevents.
	// duplicate checkpoint commits. Format: "sha256:hex_encoded_hash".
	IdempotencyKey string `json:"idempotency_key"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Label is an optional user-defined name for this checkpoint, useful for.
	// debugging or creating named save points (e.g., "before_summary", "after_validation").
	// Empty string for automatic checkpoints.
	Label string `json:"label,omitempty"`
}
