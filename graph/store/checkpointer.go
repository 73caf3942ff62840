package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNoCheckpoint is returned by Checkpointer.Load when a thread has no
// snapshot at or before the requested step.
var ErrNoCheckpoint = errors.New("store: no checkpoint found")

// NewSnapshotID generates a time-sortable snapshot identifier. ULID (not the
// engine's own RunID uuid) because snapshots benefit from lexicographic =
// chronological ordering when listed off a filesystem or object store.
// Grounded on 2389-research-mammoth's core.NewULID (crypto/rand entropy,
// ulid.Now() timestamp).
func NewSnapshotID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// StateSnapshot is a self-contained, hash-verified capture of a run's state at
// a given step, generalizing CheckpointV2 into the named fields used by
// resume: ThreadID groups snapshots across the runs of one logical
// conversation, StateHash lets Resume detect corruption before trusting
// SerializedState, and ContextView carries the run's ExecutionContextView
// (kept as interface{} here, same as CheckpointV2.Frontier/RecordedIOs, to
// avoid store importing graph).
type StateSnapshot[S any] struct {
	SnapshotID      string          `json:"snapshot_id"`
	ThreadID        string          `json:"thread_id"`
	RunID           string          `json:"run_id"`
	Step            int             `json:"step"`
	CreatedAt       time.Time       `json:"created_at"`
	StateHash       [16]byte        `json:"state_hash"`
	SerializedState json.RawMessage `json:"serialized_state"`
	ContextView     interface{}     `json:"context_view"`
}

// Checkpointer is the capability interface nodes and the engine use for
// thread-scoped resume, distinct from Store's run-scoped SaveStep/LoadLatest.
// A Store implementation may optionally also implement Checkpointer; the
// engine type-asserts for it rather than requiring every Store to support
// resume (grounded on the teacher's own optional-capability pattern, e.g.
// SideEffectPolicy.Recordable gating replay behavior per node).
type Checkpointer[S any] interface {
	// Save persists snap, keyed by (ThreadID, Step).
	Save(ctx context.Context, snap StateSnapshot[S]) error

	// Load returns the snapshot for threadID at the given step, or the latest
	// snapshot if step is nil. Returns ErrNoCheckpoint if none exists.
	Load(ctx context.Context, threadID string, step *int) (StateSnapshot[S], error)

	// List returns every snapshot step recorded for threadID, ascending.
	List(ctx context.Context, threadID string) ([]int, error)

	// Delete removes a single snapshot. Deleting a step that doesn't exist is
	// not an error.
	Delete(ctx context.Context, threadID string, step int) error
}

// MemoryCheckpointer is an in-process Checkpointer, grounded on memory.go's
// mutex-guarded map store. Useful for tests and single-process deployments.
type MemoryCheckpointer[S any] struct {
	mu    sync.RWMutex
	byKey map[string]map[int]StateSnapshot[S]
}

// NewMemoryCheckpointer constructs an empty MemoryCheckpointer.
func NewMemoryCheckpointer[S any]() *MemoryCheckpointer[S] {
	return &MemoryCheckpointer[S]{byKey: make(map[string]map[int]StateSnapshot[S])}
}

func (m *MemoryCheckpointer[S]) Save(ctx context.Context, snap StateSnapshot[S]) error {
	if snap.SnapshotID == "" {
		snap.SnapshotID = NewSnapshotID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byKey[snap.ThreadID] == nil {
		m.byKey[snap.ThreadID] = make(map[int]StateSnapshot[S])
	}
	m.byKey[snap.ThreadID][snap.Step] = snap
	return nil
}

func (m *MemoryCheckpointer[S]) Load(ctx context.Context, threadID string, step *int) (StateSnapshot[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero StateSnapshot[S]

	snaps, ok := m.byKey[threadID]
	if !ok || len(snaps) == 0 {
		return zero, ErrNoCheckpoint
	}

	if step != nil {
		snap, ok := snaps[*step]
		if !ok {
			return zero, ErrNoCheckpoint
		}
		return snap, nil
	}

	latest := -1
	for s := range snaps {
		if s > latest {
			latest = s
		}
	}
	return snaps[latest], nil
}

func (m *MemoryCheckpointer[S]) List(ctx context.Context, threadID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps, ok := m.byKey[threadID]
	if !ok {
		return nil, nil
	}
	steps := make([]int, 0, len(snaps))
	for s := range snaps {
		steps = append(steps, s)
	}
	sort.Ints(steps)
	return steps, nil
}

func (m *MemoryCheckpointer[S]) Delete(ctx context.Context, threadID string, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snaps, ok := m.byKey[threadID]; ok {
		delete(snaps, step)
	}
	return nil
}
