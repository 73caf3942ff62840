package store

import (
	"context"
	"testing"
)

func TestFileCheckpointer_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewFileCheckpointer[TestState](dir)
	if err != nil {
		t.Fatalf("new file checkpointer: %v", err)
	}
	ctx := context.Background()

	snap := StateSnapshot[TestState]{
		ThreadID:        "thread-1",
		RunID:           "run-1",
		Step:            5,
		StateHash:       [16]byte{1, 2, 3},
		SerializedState: mustMarshalState(t, TestState{Value: "persisted", Counter: 7}),
		ContextView:     map[string]interface{}{"current_step": float64(5)},
	}
	if err := cp.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := cp.Load(ctx, "thread-1", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Step != 5 {
		t.Errorf("expected step 5, got %d", loaded.Step)
	}
	if loaded.StateHash != snap.StateHash {
		t.Errorf("expected state hash to round-trip, got %v want %v", loaded.StateHash, snap.StateHash)
	}
	if string(loaded.SerializedState) != string(snap.SerializedState) {
		t.Errorf("expected serialized state to round-trip, got %s", loaded.SerializedState)
	}
}

func TestFileCheckpointer_LoadMissingReturnsErrNoCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewFileCheckpointer[TestState](dir)
	if err != nil {
		t.Fatalf("new file checkpointer: %v", err)
	}
	_, err = cp.Load(context.Background(), "nonexistent", nil)
	if err != ErrNoCheckpoint {
		t.Errorf("expected ErrNoCheckpoint, got %v", err)
	}
}

func TestFileCheckpointer_ListReturnsAscendingSteps(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewFileCheckpointer[TestState](dir)
	if err != nil {
		t.Fatalf("new file checkpointer: %v", err)
	}
	ctx := context.Background()
	for _, step := range []int{3, 1, 2} {
		if err := cp.Save(ctx, StateSnapshot[TestState]{ThreadID: "t", Step: step, SerializedState: mustMarshalState(t, TestState{})}); err != nil {
			t.Fatalf("save step %d: %v", step, err)
		}
	}

	steps, err := cp.List(ctx, "t")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int{1, 2, 3}
	for i, s := range want {
		if steps[i] != s {
			t.Fatalf("expected ascending steps %v, got %v", want, steps)
		}
	}
}

func TestFileCheckpointer_LoadSpecificStep(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewFileCheckpointer[TestState](dir)
	if err != nil {
		t.Fatalf("new file checkpointer: %v", err)
	}
	ctx := context.Background()
	_ = cp.Save(ctx, StateSnapshot[TestState]{ThreadID: "t", Step: 1, SerializedState: mustMarshalState(t, TestState{Value: "one"})})
	_ = cp.Save(ctx, StateSnapshot[TestState]{ThreadID: "t", Step: 2, SerializedState: mustMarshalState(t, TestState{Value: "two"})})

	step := 1
	snap, err := cp.Load(ctx, "t", &step)
	if err != nil {
		t.Fatalf("load step 1: %v", err)
	}
	if string(snap.SerializedState) != string(mustMarshalState(t, TestState{Value: "one"})) {
		t.Errorf("expected step 1's own state, got %s", snap.SerializedState)
	}
}

func TestFileCheckpointer_Delete(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewFileCheckpointer[TestState](dir)
	if err != nil {
		t.Fatalf("new file checkpointer: %v", err)
	}
	ctx := context.Background()
	_ = cp.Save(ctx, StateSnapshot[TestState]{ThreadID: "t", Step: 1, SerializedState: mustMarshalState(t, TestState{})})

	if err := cp.Delete(ctx, "t", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	steps, _ := cp.List(ctx, "t")
	if len(steps) != 0 {
		t.Errorf("expected no steps after delete, got %v", steps)
	}
	if err := cp.Delete(ctx, "t", 99); err != nil {
		t.Errorf("expected deleting a missing step to be a no-op, got %v", err)
	}
}

func TestFileCheckpointer_ListOnMissingDirIsEmpty(t *testing.T) {
	cp := &FileCheckpointer[TestState]{}
	steps, err := cp.List(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error listing an unset dir: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %v", steps)
	}
}
