package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tmcgrath/graphrun/graph/emit"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It stores workflow state and checkpoints in a relational database.
// Designed for:
//   - Production workflows requiring persistence
//   - Distributed systems with multiple workers
//   - Long-running workflows that survive process restarts
//   - Audit trails and compliance requirements
//
// MySQLStore uses connection pooling and transactions for reliability.
//
// Schema:
//   - workflow_steps: Step-by-step execution history
//   - workflow_checkpoints: Named checkpoints for resumption
//   - state_snapshots: C9 thread-scoped resume points (store.Checkpointer[S])
//
// MySQLStore also implements store.Checkpointer[S] (Save/Load/List/Delete)
// against state_snapshots, independent of the run-scoped tables above.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example DSNs:
//
//	user:password@tcp(localhost:3306)/workflows
//	user:password@tcp(127.0.0.1:3306)/workflows?parseTime=true
//	user:password@/workflows (uses localhost:3306)
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    dsn := os.Getenv("MYSQL_DSN")
//	    if dsn == "" {
//	        log.Fatal("MYSQL_DSN environment variable not set")
//	    }
//	    store, err := NewMySQLStore[State](dsn)
//
// The store automatically:
//   - Creates required tables if they don't exist
//   - Configures connection pooling
//   - Sets appropriate timeouts
//
// Example:
//
//	store, err := NewMySQLStore[MyState]("user:pass@tcp(localhost:3306)/workflows")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	// Open database connection
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)                  // Maximum open connections
	db.SetMaxIdleConns(5)                   // Keep idle connections for reuse
	db.SetConnMaxLifetime(5 * time.Minute)  // Max connection lifetime (prevent stale connections)
	db.SetConnMaxIdleTime(10 * time.Minute) // Max idle time before closing

	// Verify connection
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning ping error
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore[S]{
		db:     db,
		closed: false,
	}

	// Create tables if they don't exist
	if err := store.createTables(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the required database schema if it doesn't exist.
func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	// workflow_steps table: stores step-by-step execution history
	stepsTable := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			INDEX idx_run_step (run_id, step),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create workflow_steps table: %w", err)
	}

	// workflow_checkpoints table: stores named checkpoints
	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			checkpoint_id VARCHAR(255) NOT NULL UNIQUE,
			state JSON NOT NULL,
			step INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create workflow_checkpoints table: %w", err)
	}

	// workflow_checkpoints_v2 table: stores enhanced checkpoints with full execution context
	checkpointsV2Table := `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints_v2 (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step_id INT NOT NULL,
			state JSON NOT NULL,
			frontier JSON NOT NULL,
			rng_seed BIGINT NOT NULL,
			recorded_ios JSON NOT NULL,
			idempotency_key VARCHAR(255) NOT NULL UNIQUE,
			timestamp TIMESTAMP NOT NULL,
			label VARCHAR(255) DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			INDEX idx_run_step (run_id, step_id),
			INDEX idx_label (run_id, label),
			UNIQUE KEY unique_run_step (run_id, step_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, checkpointsV2Table); err != nil {
		return fmt.Errorf("failed to create workflow_checkpoints_v2 table: %w", err)
	}

	// idempotency_keys table: tracks used idempotency keys to prevent duplicate commits
	idempotencyTable := `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key_value VARCHAR(255) NOT NULL PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_created (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, idempotencyTable); err != nil {
		return fmt.Errorf("failed to create idempotency_keys table: %w", err)
	}

	// events_outbox table: stores events for transactional outbox pattern
	eventsOutboxTable := `
		CREATE TABLE IF NOT EXISTS events_outbox (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			event_data JSON NOT NULL,
			emitted_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_pending (emitted_at, created_at),
			INDEX idx_run_id (run_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, eventsOutboxTable); err != nil {
		return fmt.Errorf("failed to create events_outbox table: %w", err)
	}

	// state_snapshots table: C9 thread-scoped, hash-verified resume points
	// (store.Checkpointer), independent of the run-scoped tables above.
	snapshotsTable := `
		CREATE TABLE IF NOT EXISTS state_snapshots (
			thread_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			snapshot_id VARCHAR(255) NOT NULL,
			run_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			state_hash VARBINARY(16) NOT NULL,
			serialized_state JSON NOT NULL,
			context_view JSON NOT NULL,
			PRIMARY KEY (thread_id, step),
			INDEX idx_snapshots_thread (thread_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, snapshotsTable); err != nil {
		return fmt.Errorf("failed to create state_snapshots table: %w", err)
	}

	return nil
}

// Save implements store.Checkpointer[S], persisting snap into state_snapshots
// keyed by (ThreadID, Step). An existing snapshot at the same step is
// replaced via ON DUPLICATE KEY UPDATE.
func (m *MySQLStore[S]) Save(ctx context.Context, snap StateSnapshot[S]) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	if snap.SnapshotID == "" {
		snap.SnapshotID = NewSnapshotID()
	}

	contextJSON, err := json.Marshal(snap.ContextView)
	if err != nil {
		return fmt.Errorf("failed to marshal context view: %w", err)
	}

	query := `
		INSERT INTO state_snapshots (thread_id, step, snapshot_id, run_id, created_at, state_hash, serialized_state, context_view)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			snapshot_id = VALUES(snapshot_id),
			run_id = VALUES(run_id),
			created_at = VALUES(created_at),
			state_hash = VALUES(state_hash),
			serialized_state = VALUES(serialized_state),
			context_view = VALUES(context_view)
	`
	_, err = m.db.ExecContext(ctx, query,
		snap.ThreadID, snap.Step, snap.SnapshotID, snap.RunID,
		snap.CreatedAt, snap.StateHash[:], string(snap.SerializedState), string(contextJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load implements store.Checkpointer[S]. step == nil loads the
// highest-stepped snapshot recorded for threadID.
func (m *MySQLStore[S]) Load(ctx context.Context, threadID string, step *int) (StateSnapshot[S], error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return StateSnapshot[S]{}, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	var row *sql.Row
	if step != nil {
		row = m.db.QueryRowContext(ctx, `
			SELECT thread_id, step, snapshot_id, run_id, created_at, state_hash, serialized_state, context_view
			FROM state_snapshots WHERE thread_id = ? AND step = ?
		`, threadID, *step)
	} else {
		row = m.db.QueryRowContext(ctx, `
			SELECT thread_id, step, snapshot_id, run_id, created_at, state_hash, serialized_state, context_view
			FROM state_snapshots WHERE thread_id = ? ORDER BY step DESC LIMIT 1
		`, threadID)
	}

	var (
		snap            StateSnapshot[S]
		stateHash       []byte
		serializedState []byte
		contextJSON     []byte
	)
	err := row.Scan(&snap.ThreadID, &snap.Step, &snap.SnapshotID, &snap.RunID, &snap.CreatedAt, &stateHash, &serializedState, &contextJSON)
	if err == sql.ErrNoRows {
		return StateSnapshot[S]{}, ErrNoCheckpoint
	}
	if err != nil {
		return StateSnapshot[S]{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	copy(snap.StateHash[:], stateHash)
	snap.SerializedState = json.RawMessage(serializedState)
	if err := json.Unmarshal(contextJSON, &snap.ContextView); err != nil {
		return StateSnapshot[S]{}, fmt.Errorf("failed to unmarshal context view: %w", err)
	}
	return snap, nil
}

// List implements store.Checkpointer[S], returning every recorded step for
// threadID in ascending order.
func (m *MySQLStore[S]) List(ctx context.Context, threadID string) ([]int, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, "SELECT step FROM state_snapshots WHERE thread_id = ? ORDER BY step ASC", threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []int
	for rows.Next() {
		var step int
		if err := rows.Scan(&step); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// Delete implements store.Checkpointer[S]. Deleting a step that doesn't
// exist is not an error, matching the interface contract.
func (m *MySQLStore[S]) Delete(ctx context.Context, threadID string, step int) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	_, err := m.db.ExecContext(ctx, "DELETE FROM state_snapshots WHERE thread_id = ? AND step = ?", threadID, step)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// SaveStep persists a workflow execution step (implements Store interface).
//
// Steps are stored in the workflow_steps table with the current state.
// If a step with the same runID and step number already exists, it is replaced.
//
// Thread-safe for concurrent writes.
func (m *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	// Serialize state to JSON
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Insert or replace step
	query := `
		INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state = VALUES(state)
	`

	_, err = m.db.ExecContext(ctx, query, runID, step, nodeID, stateJSON)
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}

	return nil
}

// LoadLatest retrieves the most recent step for a run (implements Store interface).
//
// Returns the step with the highest step number for the given runID.
// Returns ErrNotFound if no steps exist for the runID.
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		var zero S
		return zero, 0, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT step, state
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON []byte
	err = m.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if err == sql.ErrNoRows {
		var zero S
		return zero, 0, ErrNotFound
	}
	if err != nil {
		var zero S
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	// Deserialize state
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return state, step, nil
}

// SaveCheckpoint creates a named checkpoint (implements Store interface).
//
// Checkpoints are stored in the workflow_checkpoints table.
// If a checkpoint with the same ID exists, it is updated.
//
// Thread-safe for concurrent writes.
func (m *MySQLStore[S]) SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	// Serialize state to JSON
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Insert or update checkpoint
	query := `
		INSERT INTO workflow_checkpoints (checkpoint_id, state, step)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			step = VALUES(step),
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = m.db.ExecContext(ctx, query, cpID, stateJSON, step)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// LoadCheckpoint retrieves a named checkpoint (implements Store interface).
//
// Returns ErrNotFound if the checkpoint ID doesn't exist.
func (m *MySQLStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (state S, step int, err error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		var zero S
		return zero, 0, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT state, step
		FROM workflow_checkpoints
		WHERE checkpoint_id = ?
	`

	var stateJSON []byte
	err = m.db.QueryRowContext(ctx, query, cpID).Scan(&stateJSON, &step)
	if err == sql.ErrNoRows {
		var zero S
		return zero, 0, ErrNotFound
	}
	if err != nil {
		var zero S
		return zero, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	// Deserialize state
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return state, step, nil
}

// Close closes the database connection pool.
//
// After Close, all operations will return an error.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil // Double-close is a no-op (matches sql.DB behavior)
	}

	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
//
// Useful for monitoring connection usage and pool health.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.db.Stats()
}

// SaveStepBatch atomically saves multiple workflow steps in a transaction.
//
// All steps are saved atomically - either all succeed or all are rolled back.
// This is useful for saving multiple parallel branch results or recovery scenarios.
//
// If any step fails to save, the entire batch is rolled back and an error is returned.
//
// Note: This is a low-level API. For most use cases, use SaveStep directly.
// The Engine handles batch operations via individual SaveStep calls within
// its own transaction management.
//
// Example:
//
//	type StepData struct {
//	    Step   int
//	    NodeID string
//	    State  MyState
//	}
//	steps := []StepData{
//	    {1, "node-a", stateA},
//	    {2, "node-b", stateB},
//	}
//	err := store.SaveStepBatch(ctx, "run-001", steps)
func (m *MySQLStore[S]) SaveStepBatch(ctx context.Context, runID string, steps interface{}) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	// Begin transaction
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure rollback on error
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// For now, we'll use SaveStep in a transaction
	// The actual batch insert would be more efficient

	query := `
		INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state = VALUES(state),
			created_at = CURRENT_TIMESTAMP
	`

	// Prepare statement for reuse
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	// Note: This function currently returns without executing the batch.
	// It's designed as infrastructure for future batch operations.
	// For production use, call SaveStep directly - the Engine handles parallelism.
	//
	// TODO: Implement reflection-based batch execution if needed:
	// - Type assert steps parameter to slice
	// - Iterate and execute stmt.ExecContext for each step
	// - Handle JSON marshaling errors properly

	// For now, commit empty transaction (no-op but tests transaction infrastructure)
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithTransaction executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
//
// This is useful for atomic multi-operation workflows.
//
// Example:
//
//	err := store.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
//	    // Perform multiple operations
//	    if err := saveStepInTx(tx, ...); err != nil {
//	        return err
//	    }
//	    if err := saveCheckpointInTx(tx, ...); err != nil {
//	        return err
//	    }
//	    return nil
//	})
func (m *MySQLStore[S]) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	// Begin transaction
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Execute function
	err = fn(ctx, tx)

	if err != nil {
		// Rollback on error
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %w", err, rbErr)
		}
		return err
	}

	// Commit on success
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SaveCheckpointV2 persists an enhanced checkpoint with full execution context.
//
// This method saves a complete checkpoint including:
//   - Current state after all deltas applied
//   - Frontier of pending work items
//   - Recorded I/O for deterministic replay
//   - RNG seed for random value consistency
//   - Idempotency key to prevent duplicate commits
//
// The operation is performed in a transaction to ensure atomicity.
// If the idempotency key already exists, returns an error (prevents duplicate saves).
//
// Thread-safe for concurrent writes.
func (m *MySQLStore[S]) SaveCheckpointV2(ctx context.Context, checkpoint CheckpointV2[S]) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	// Serialize JSON fields
	stateJSON, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	frontierJSON, err := json.Marshal(checkpoint.Frontier)
	if err != nil {
		return fmt.Errorf("failed to marshal frontier: %w", err)
	}

	recordedIOsJSON, err := json.Marshal(checkpoint.RecordedIOs)
	if err != nil {
		return fmt.Errorf("failed to marshal recorded IOs: %w", err)
	}

	// Begin transaction for atomic insert
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure rollback on error
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Insert idempotency key first (will fail if duplicate)
	idempotencyQuery := `
		INSERT INTO idempotency_keys (key_value)
		VALUES (?)
	`

	_, err = tx.ExecContext(ctx, idempotencyQuery, checkpoint.IdempotencyKey)
	if err != nil {
		// Check if it's a duplicate key error
		return fmt.Errorf("idempotency key already exists or insert failed: %w", err)
	}

	// Insert checkpoint
	checkpointQuery := `
		INSERT INTO workflow_checkpoints_v2
		(run_id, step_id, state, frontier, rng_seed, recorded_ios, idempotency_key, timestamp, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			frontier = VALUES(frontier),
			rng_seed = VALUES(rng_seed),
			recorded_ios = VALUES(recorded_ios),
			idempotency_key = VALUES(idempotency_key),
			timestamp = VALUES(timestamp),
			label = VALUES(label)
	`

	_, err = tx.ExecContext(ctx, checkpointQuery,
		checkpoint.RunID,
		checkpoint.StepID,
		stateJSON,
		frontierJSON,
		checkpoint.RNGSeed,
		recordedIOsJSON,
		checkpoint.IdempotencyKey,
		checkpoint.Timestamp,
		checkpoint.Label,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadCheckpointV2 retrieves an enhanced checkpoint by run ID and step ID.
//
// This method can also load checkpoints by label if stepID is 0 and a label is stored.
// Returns ErrNotFound if no checkpoint exists for the given identifiers.
func (m *MySQLStore[S]) LoadCheckpointV2(ctx context.Context, runID string, stepID int) (CheckpointV2[S], error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		var zero CheckpointV2[S]
		return zero, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT run_id, step_id, state, frontier, rng_seed, recorded_ios, idempotency_key, timestamp, label
		FROM workflow_checkpoints_v2
		WHERE run_id = ? AND step_id = ?
		LIMIT 1
	`

	var (
		stateJSON       []byte
		frontierJSON    []byte
		recordedIOsJSON []byte
		checkpoint      CheckpointV2[S]
	)

	err := m.db.QueryRowContext(ctx, query, runID, stepID).Scan(
		&checkpoint.RunID,
		&checkpoint.StepID,
		&stateJSON,
		&frontierJSON,
		&checkpoint.RNGSeed,
		&recordedIOsJSON,
		&checkpoint.IdempotencyKey,
		&checkpoint.Timestamp,
		&checkpoint.Label,
	)

	if err == sql.ErrNoRows {
		var zero CheckpointV2[S]
		return zero, ErrNotFound
	}
	if err != nil {
		var zero CheckpointV2[S]
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	// Deserialize JSON fields
	if err := json.Unmarshal(stateJSON, &checkpoint.State); err != nil {
		var zero CheckpointV2[S]
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if err := json.Unmarshal(frontierJSON, &checkpoint.Frontier); err != nil {
		var zero CheckpointV2[S]
		return zero, fmt.Errorf("failed to unmarshal frontier: %w", err)
	}

	if err := json.Unmarshal(recordedIOsJSON, &checkpoint.RecordedIOs); err != nil {
		var zero CheckpointV2[S]
		return zero, fmt.Errorf("failed to unmarshal recorded IOs: %w", err)
	}

	return checkpoint, nil
}

// CheckIdempotency verifies if an idempotency key has been used.
//
// Returns true if the key exists in the idempotency_keys table.
// Returns false if the key doesn't exist (safe to use).
// Returns error only on database access failures.
//
// This uses a unique constraint on the key for race-safe duplicate detection.
func (m *MySQLStore[S]) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return false, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM idempotency_keys WHERE key_value = ?
	`

	var count int
	err := m.db.QueryRowContext(ctx, query, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency: %w", err)
	}

	return count > 0, nil
}

// PendingEvents retrieves events from the outbox that haven't been emitted yet.
//
// Returns events where emitted_at IS NULL, ordered by created_at.
// Limited to the specified number of events for batching.
func (m *MySQLStore[S]) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT id, run_id, event_data
		FROM events_outbox
		WHERE emitted_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []emit.Event
	for rows.Next() {
		var (
			id        string
			runID     string
			eventJSON []byte
		)

		if err := rows.Scan(&id, &runID, &eventJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		var event emit.Event
		if err := json.Unmarshal(eventJSON, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

// MarkEventsEmitted marks events as successfully emitted to prevent re-delivery.
//
// Updates the emitted_at timestamp for the specified event IDs.
// This ensures the events won't be returned by PendingEvents again.
func (m *MySQLStore[S]) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	if len(eventIDs) == 0 {
		return nil // No-op for empty list
	}

	// Build IN clause with placeholders
	placeholders := ""
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}

	// #nosec G201 -- placeholders are not user input, just "?" marks for parameterized query
	query := fmt.Sprintf(`
		UPDATE events_outbox
		SET emitted_at = NOW()
		WHERE id IN (%s)
	`, placeholders)

	_, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark events as emitted: %w", err)
	}

	return nil
}
