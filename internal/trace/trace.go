// Package trace records simulation runs to a SQLite database. The trace is
// an observation log: runs and ticks are appended as they happen and read
// back only for reporting, never to restore a world.
package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/simulation"
)

// ErrUnknownRun is returned when a run id has no row.
var ErrUnknownRun = errors.New("unknown run")

// Recorder appends runs and ticks to a trace database. It is safe for
// concurrent use.
type Recorder struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	Program string
	Seed    int64
	Config  simulation.Config
	Nodes   int
	Flows   int
}

// Run is a stored run summary.
type Run struct {
	ID         string
	Program    string
	Seed       int64
	Mode       string
	Nodes      int
	Flows      int
	Ticks      int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Open opens or creates the trace database at path. Use ":memory:" for a
// throwaway trace.
func Open(path string) (*Recorder, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if path == ":memory:" {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Recorder{db: db, path: path}, nil
}

// Path returns the database location.
func (r *Recorder) Path() string { return r.path }

// StartRun records a new run and returns its id.
func (r *Recorder) StartRun(ctx context.Context, info RunInfo) (string, error) {
	cfg, err := json.Marshal(info.Config)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, program, seed, mode, config, nodes, flows, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, info.Program, info.Seed, info.Config.Mode, string(cfg), info.Nodes, info.Flows,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordTicks appends tick reports to a run in one transaction. Reports for
// ticks already recorded replace the stored row and do not change the run's
// tick count.
func (r *Recorder) RecordTicks(ctx context.Context, runID string, reports ...simulation.TickReport) error {
	if len(reports) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO ticks
		    (run_id, tick, phase, sample, error, score, io_sent, moved, flipped, mean_weight, outputs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	exists, err := tx.PrepareContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ticks WHERE run_id = ? AND tick = ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tick lookup: %w", err)
	}
	defer exists.Close()

	added := 0
	seen := make(map[int]bool, len(reports))
	for _, rep := range reports {
		if !seen[rep.Tick] {
			seen[rep.Tick] = true
			var found bool
			if err := exists.QueryRowContext(ctx, runID, rep.Tick).Scan(&found); err != nil {
				return fmt.Errorf("failed to look up tick %d: %w", rep.Tick, err)
			}
			if !found {
				added++
			}
		}

		var outputs any
		if rep.Outputs != nil {
			b, err := json.Marshal(rep.Outputs)
			if err != nil {
				return fmt.Errorf("failed to encode outputs: %w", err)
			}
			outputs = string(b)
		}
		if _, err := stmt.ExecContext(ctx, runID, rep.Tick, rep.Phase.String(), rep.Sample,
			rep.Error, rep.Score, rep.IOSent, rep.Moved, rep.Flipped, rep.MeanWeight, outputs); err != nil {
			return fmt.Errorf("failed to insert tick %d: %w", rep.Tick, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET ticks = ticks + ? WHERE id = ?`, added, runID); err != nil {
		return fmt.Errorf("failed to update tick count: %w", err)
	}
	return tx.Commit()
}

// RecordSnapshot stores every flow's weight, value and slope at the
// snapshot's tick.
func (r *Recorder) RecordSnapshot(ctx context.Context, runID string, snap *graph.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO flow_states (run_id, tick, flow, a, b, weight, value, slope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare flow insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range snap.Flows {
		if _, err := stmt.ExecContext(ctx, runID, snap.Tick, f.ID, f.A, f.B, f.Weight, f.Value, f.Slope); err != nil {
			return fmt.Errorf("failed to insert flow %d: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// FinishRun stamps the run's finish time.
func (r *Recorder) FinishRun(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// Runs lists stored runs, newest first.
func (r *Recorder) Runs(ctx context.Context) ([]Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, program, seed, mode, nodes, flows, ticks, started_at, finished_at
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&run.ID, &run.Program, &run.Seed, &run.Mode, &run.Nodes, &run.Flows,
			&run.Ticks, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finished.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PhaseError returns the mean output error per phase for a run.
func (r *Recorder) PhaseError(ctx context.Context, runID string) (map[string]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT phase, AVG(error) FROM ticks WHERE run_id = ? GROUP BY phase`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase error: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var phase string
		var avg float64
		if err := rows.Scan(&phase, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan phase error: %w", err)
		}
		out[phase] = avg
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
