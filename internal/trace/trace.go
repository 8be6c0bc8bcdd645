// Package trace records simulation runs to SQLite: one row per run, one
// per processed event and one per decision, so runs can be inspected and
// compared after the fact.
package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/cogloop/internal/system"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Store is a trace database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the trace database at path, creating its
// directory if needed. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Run describes one recorded simulation run.
type Run struct {
	ID        string     `json:"id"`
	Scenario  string     `json:"scenario"`
	Seed      uint64     `json:"seed"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
}

// EventRow is one processed event.
type EventRow struct {
	Seq      uint64        `json:"seq"`
	SimTime  time.Duration `json:"sim_time"`
	Priority int           `json:"priority"`
	Source   string        `json:"source"`
	Updates  int           `json:"updates"`
	Detail   string        `json:"detail,omitempty"`
}

// Decision is one resolved choice within a run.
type Decision struct {
	Trial    int           `json:"trial"`
	SimTime  time.Duration `json:"sim_time"`
	Group    string        `json:"group"`
	Choice   string        `json:"choice"`
	Evidence float64       `json:"evidence"`
}

// Recorder appends to a single run. It implements system.Observer.
type Recorder struct {
	store *Store
	runID string
}

// BeginRun inserts a new run and returns a recorder for it.
func (s *Store) BeginRun(ctx context.Context, scenario string, seed uint64) (*Recorder, error) {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, seed, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, scenario, int64(seed), time.Now().UTC().Format(timeFormat), StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return &Recorder{store: s, runID: id}, nil
}

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// OnEvent records ev.
func (r *Recorder) OnEvent(ctx context.Context, ev system.Event) error {
	parts := make([]string, len(ev.Updates))
	for i, u := range ev.Updates {
		parts[i] = u.String()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, sim_time_ns, priority, source, update_count, updates)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.runID, int64(ev.Seq), int64(ev.Time), int(ev.Priority), ev.Source.String(),
		len(ev.Updates), strings.Join(parts, "\n"))
	if err != nil {
		return fmt.Errorf("failed to record event %d: %w", ev.Seq, err)
	}
	return nil
}

// RecordDecision records d.
func (r *Recorder) RecordDecision(ctx context.Context, d Decision) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO decisions (run_id, trial, sim_time_ns, grp, choice, evidence) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, d.Trial, int64(d.SimTime), d.Group, d.Choice, d.Evidence)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Finish marks the run complete, or failed when runErr is non-nil.
func (r *Recorder) Finish(ctx context.Context, runErr error) error {
	status := StatusComplete
	if runErr != nil {
		status = StatusFailed
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), status, r.runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario, seed, started_at, ended_at, status FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, seed, started_at, ended_at, status FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run     Run
		seed    int64
		started string
		ended   sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Scenario, &seed, &started, &ended, &run.Status); err != nil {
		return Run{}, err
	}
	run.Seed = uint64(seed)
	t, err := time.Parse(timeFormat, started)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad start time: %w", run.ID, err)
	}
	run.StartedAt = t
	if ended.Valid {
		e, err := time.Parse(timeFormat, ended.String)
		if err != nil {
			return Run{}, fmt.Errorf("run %s: bad end time: %w", run.ID, err)
		}
		run.EndedAt = &e
	}
	return run, nil
}

// Events returns the events of a run in processing order.
func (s *Store) Events(ctx context.Context, runID string) ([]EventRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, sim_time_ns, priority, source, update_count, updates
		 FROM events WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			e       EventRow
			seq, ns int64
		)
		if err := rows.Scan(&seq, &ns, &e.Priority, &e.Source, &e.Updates, &e.Detail); err != nil {
			return nil, err
		}
		e.Seq, e.SimTime = uint64(seq), time.Duration(ns)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Decisions returns the decisions of a run in trial order.
func (s *Store) Decisions(ctx context.Context, runID string) ([]Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT trial, sim_time_ns, grp, choice, evidence
		 FROM decisions WHERE run_id = ? ORDER BY trial, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d  Decision
			ns int64
		)
		if err := rows.Scan(&d.Trial, &ns, &d.Group, &d.Choice, &d.Evidence); err != nil {
			return nil, err
		}
		d.SimTime = time.Duration(ns)
		out = append(out, d)
	}
	return out, rows.Err()
}
