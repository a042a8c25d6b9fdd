// Package history records training runs and their per-epoch results in a
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned when a run or epoch does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	id TEXT PRIMARY KEY,
	started REAL NOT NULL,
	optimizer TEXT NOT NULL,
	config TEXT
);
CREATE TABLE IF NOT EXISTS epochs(
	run_id TEXT NOT NULL REFERENCES runs(id),
	epoch INTEGER NOT NULL,
	ts REAL NOT NULL,
	train_loss REAL NOT NULL,
	score REAL NOT NULL,
	lr REAL NOT NULL,
	best INTEGER NOT NULL,
	decayed INTEGER NOT NULL,
	PRIMARY KEY(run_id, epoch)
);`

// Run is one training run.
type Run struct {
	ID        string
	Started   time.Time
	Optimizer string
	Config    json.RawMessage
}

// Epoch is the result of one epoch of a run.
type Epoch struct {
	Epoch     int
	TrainLoss float64
	Score     float64
	LR        float64
	Best      bool
	Decayed   bool
}

// Store is a run history backed by SQLite. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun registers a run. cfg is stored as JSON. Starting an existing run
// again is a no-op.
func (s *Store) StartRun(ctx context.Context, runID, optimizer string, cfg any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO runs(id, started, optimizer, config) VALUES(?,?,?,?)",
		runID, unixSeconds(time.Now()), optimizer, string(raw))
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}
	return nil
}

// Record stores the result of one epoch, replacing an earlier record of the
// same epoch.
func (s *Store) Record(ctx context.Context, runID string, e Epoch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO epochs(run_id, epoch, ts, train_loss, score, lr, best, decayed)
		VALUES(?,?,?,?,?,?,?,?)`,
		runID, e.Epoch, unixSeconds(time.Now()), e.TrainLoss, e.Score, e.LR, e.Best, e.Decayed)
	if err != nil {
		return fmt.Errorf("failed to record epoch %d of run %s: %w", e.Epoch, runID, err)
	}
	return nil
}

// Runs returns every run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, started, optimizer, config FROM runs ORDER BY started, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started float64
			cfg     sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &r.Optimizer, &cfg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Started = fromUnixSeconds(started)
		if cfg.Valid {
			r.Config = json.RawMessage(cfg.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Epochs returns the epochs of a run in order.
func (s *Store) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT epoch, train_loss, score, lr, best, decayed FROM epochs WHERE run_id = ? ORDER BY epoch", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list epochs of run %s: %w", runID, err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Epoch, &e.TrainLoss, &e.Score, &e.LR, &e.Best, &e.Decayed); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// Best returns the highest-scoring epoch of a run; ties go to the earliest.
func (s *Store) Best(ctx context.Context, runID string) (Epoch, error) {
	var e Epoch
	err := s.db.QueryRowContext(ctx,
		`SELECT epoch, train_loss, score, lr, best, decayed FROM epochs
		WHERE run_id = ? ORDER BY score DESC, epoch ASC LIMIT 1`, runID).
		Scan(&e.Epoch, &e.TrainLoss, &e.Score, &e.LR, &e.Best, &e.Decayed)
	if errors.Is(err, sql.ErrNoRows) {
		return Epoch{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Epoch{}, fmt.Errorf("failed to query best epoch of run %s: %w", runID, err)
	}
	return e, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}

func fromUnixSeconds(s float64) time.Time {
	return time.UnixMilli(int64(s * 1000))
}
