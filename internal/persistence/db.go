// Package persistence provides SQLite-based snapshot storage.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mlim70/MPONC-Streamlined/internal/city"
	"github.com/mlim70/MPONC-Streamlined/internal/engine"
	"github.com/mlim70/MPONC-Streamlined/internal/transport"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Run status values.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// DB wraps a SQLite connection for run and snapshot persistence. It
// satisfies engine.SnapshotSink.
type DB struct {
	conn *sqlx.DB
}

var _ engine.SnapshotSink = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Concurrent runs share the handle; sqlite takes one writer at a time.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		rho INTEGER NOT NULL,
		alpha REAL NOT NULL,
		agents INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		started TEXT NOT NULL,
		finished TEXT,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		rho INTEGER NOT NULL,
		alpha REAL NOT NULL,
		agents INTEGER NOT NULL,
		step INTEGER NOT NULL,
		created TEXT NOT NULL,
		UNIQUE (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS location_stats (
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		location_id TEXT NOT NULL,
		name TEXT NOT NULL,
		population INTEGER NOT NULL,
		avg_income REAL NOT NULL,
		avg_endowment REAL NOT NULL,
		beltline REAL,
		amenity REAL NOT NULL,
		expected_income REAL,
		threshold REAL NOT NULL,
		community REAL NOT NULL,
		car_sum REAL NOT NULL,
		car_count INTEGER NOT NULL,
		transit_sum REAL NOT NULL,
		transit_count INTEGER NOT NULL,
		PRIMARY KEY (snapshot_id, idx)
	);

	CREATE TABLE IF NOT EXISTS agent_preferences (
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		agent_id INTEGER NOT NULL,
		mode TEXT NOT NULL,
		endowment REAL NOT NULL,
		location INTEGER NOT NULL,
		average_json TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_key ON snapshots(rho, alpha, agents, step);
	CREATE INDEX IF NOT EXISTS idx_runs_params ON runs(rho, alpha);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunRecord is a stored run.
type RunRecord struct {
	ID       string  `db:"id" json:"id"`
	Rho      int     `db:"rho" json:"rho"`
	Alpha    float64 `db:"alpha" json:"alpha"`
	Agents   int     `db:"agents" json:"agents"`
	Steps    int     `db:"steps" json:"steps"`
	Seed     int64   `db:"seed" json:"seed"`
	Started  string  `db:"started" json:"started"`
	Finished *string `db:"finished" json:"finished,omitempty"`
	Status   string  `db:"status" json:"status"`
	Error    string  `db:"error" json:"error,omitempty"`
}

// SnapshotRecord is a stored snapshot header.
type SnapshotRecord struct {
	ID      int64   `db:"id" json:"id"`
	RunID   string  `db:"run_id" json:"run_id"`
	Rho     int     `db:"rho" json:"rho"`
	Alpha   float64 `db:"alpha" json:"alpha"`
	Agents  int     `db:"agents" json:"agents"`
	Step    int     `db:"step" json:"step"`
	Created string  `db:"created" json:"created"`
}

// Key returns the snapshot key.
func (r SnapshotRecord) Key() engine.Key {
	return engine.Key{Rho: r.Rho, Alpha: r.Alpha, Agents: r.Agents, Step: r.Step}
}

type locationRow struct {
	Index          int      `db:"idx"`
	LocationID     string   `db:"location_id"`
	Name           string   `db:"name"`
	Population     int      `db:"population"`
	AvgIncome      float64  `db:"avg_income"`
	AvgEndowment   float64  `db:"avg_endowment"`
	Beltline       *float64 `db:"beltline"`
	Amenity        float64  `db:"amenity"`
	ExpectedIncome *float64 `db:"expected_income"`
	Threshold      float64  `db:"threshold"`
	Community      float64  `db:"community"`
	CarSum         float64  `db:"car_sum"`
	CarCount       int      `db:"car_count"`
	TransitSum     float64  `db:"transit_sum"`
	TransitCount   int      `db:"transit_count"`
}

type preferenceRow struct {
	AgentID     uint64  `db:"agent_id"`
	Mode        string  `db:"mode"`
	Endowment   float64 `db:"endowment"`
	Location    int     `db:"location"`
	AverageJSON string  `db:"average_json"`
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// BeginRun records a run as running.
func (db *DB) BeginRun(ctx context.Context, run engine.RunInfo) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO runs
		(id, rho, alpha, agents, steps, seed, started, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Params.Rho, run.Params.Alpha, run.Agents, run.Steps, run.Seed,
		run.Started.UTC().Format(time.RFC3339Nano), StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun marks a run done, or failed with runErr.
func (db *DB) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusDone, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	_, err := db.conn.ExecContext(ctx,
		"UPDATE runs SET finished = ?, status = ?, error = ? WHERE id = ?",
		now(), status, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// SaveSnapshot writes a snapshot with its location and agent rows in one
// transaction.
func (db *DB) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO snapshots
		(run_id, rho, alpha, agents, step, created) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Rho, snap.Alpha, snap.Agents, snap.Step, now(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s step %d: %w", snap.RunID, snap.Step, err)
	}
	sid, err := res.LastInsertId()
	if err != nil {
		return err
	}

	locStmt, err := tx.PreparexContext(ctx, `INSERT INTO location_stats
		(snapshot_id, idx, location_id, name, population, avg_income, avg_endowment,
		 beltline, amenity, expected_income, threshold, community,
		 car_sum, car_count, transit_sum, transit_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer locStmt.Close()

	for i, row := range snap.Locations {
		var bm city.ModeEndowments
		if i < len(snap.ByMode) {
			bm = snap.ByMode[i]
		}
		_, err := locStmt.ExecContext(ctx,
			sid, row.Index, row.ID, row.Name, row.Population, row.AvgIncome, row.AvgEndowment,
			row.Beltline, row.Amenity, row.ExpectedIncome, row.Threshold, row.Community,
			bm.Sum[transport.ModeCar], bm.Count[transport.ModeCar],
			bm.Sum[transport.ModeTransit], bm.Count[transport.ModeTransit],
		)
		if err != nil {
			return fmt.Errorf("insert location %s: %w", row.ID, err)
		}
	}

	prefStmt, err := tx.PreparexContext(ctx, `INSERT INTO agent_preferences
		(snapshot_id, agent_id, mode, endowment, location, average_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer prefStmt.Close()

	for _, p := range snap.Preferences {
		avgJSON, err := json.Marshal(p.Average)
		if err != nil {
			return fmt.Errorf("encode agent %d preferences: %w", p.ID, err)
		}
		if _, err := prefStmt.ExecContext(ctx,
			sid, uint64(p.ID), p.Mode.String(), p.Endowment, p.Location, string(avgJSON),
		); err != nil {
			return fmt.Errorf("insert agent %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("snapshot saved", "run", snap.RunID, "step", snap.Step,
		"locations", len(snap.Locations), "agents", len(snap.Preferences))
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	return value, err
}

// ListRuns returns every run, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started DESC, id")
	return runs, err
}

// GetRun returns one run.
func (db *DB) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var r RunRecord
	err := db.conn.GetContext(ctx, &r, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListSnapshots returns the snapshot headers of a run in step order.
func (db *DB) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	var snaps []SnapshotRecord
	err := db.conn.SelectContext(ctx, &snaps,
		"SELECT * FROM snapshots WHERE run_id = ? ORDER BY step", runID)
	return snaps, err
}

// AllSnapshots returns every snapshot header ordered by key.
func (db *DB) AllSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	var snaps []SnapshotRecord
	err := db.conn.SelectContext(ctx, &snaps,
		"SELECT * FROM snapshots ORDER BY rho, alpha, agents, step, id")
	return snaps, err
}

// GetSnapshot returns one snapshot header.
func (db *DB) GetSnapshot(ctx context.Context, id int64) (SnapshotRecord, error) {
	var s SnapshotRecord
	err := db.conn.GetContext(ctx, &s, "SELECT * FROM snapshots WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	return s, err
}

// LoadSummary returns the location rows of a snapshot in index order.
func (db *DB) LoadSummary(ctx context.Context, snapshotID int64) ([]city.SummaryRow, error) {
	var rows []locationRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT idx, location_id, name, population,
		avg_income, avg_endowment, beltline, amenity, expected_income, threshold, community,
		car_sum, car_count, transit_sum, transit_count
		FROM location_stats WHERE snapshot_id = ? ORDER BY idx`, snapshotID)
	if err != nil {
		return nil, err
	}
	out := make([]city.SummaryRow, len(rows))
	for i, r := range rows {
		out[i] = city.SummaryRow{
			Index:          r.Index,
			ID:             r.LocationID,
			Name:           r.Name,
			Population:     r.Population,
			AvgIncome:      r.AvgIncome,
			AvgEndowment:   r.AvgEndowment,
			Beltline:       r.Beltline,
			Amenity:        r.Amenity,
			ExpectedIncome: r.ExpectedIncome,
			Threshold:      r.Threshold,
			Community:      r.Community,
		}
	}
	return out, nil
}

// LoadPreferences returns the agent rows of a snapshot in id order.
func (db *DB) LoadPreferences(ctx context.Context, snapshotID int64) ([]engine.AgentPreference, error) {
	var rows []preferenceRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT agent_id, mode, endowment, location, average_json
		FROM agent_preferences WHERE snapshot_id = ? ORDER BY agent_id`, snapshotID)
	if err != nil {
		return nil, err
	}
	out := make([]engine.AgentPreference, len(rows))
	for i, r := range rows {
		mode, err := transport.ParseMode(r.Mode)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", r.AgentID, err)
		}
		var avg []float64
		if err := json.Unmarshal([]byte(r.AverageJSON), &avg); err != nil {
			return nil, fmt.Errorf("agent %d preferences: %w", r.AgentID, err)
		}
		out[i] = engine.AgentPreference{
			ID:        city.AgentID(r.AgentID),
			Mode:      mode,
			Endowment: r.Endowment,
			Location:  r.Location,
			Average:   avg,
		}
	}
	return out, nil
}

// LatestSnapshots returns, for every finished run, its highest-step
// snapshot header.
func (db *DB) LatestSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	var snaps []SnapshotRecord
	err := db.conn.SelectContext(ctx, &snaps, `SELECT s.* FROM snapshots s
		JOIN runs r ON r.id = s.run_id
		WHERE r.status = ? AND s.step = (SELECT MAX(step) FROM snapshots WHERE run_id = s.run_id)
		ORDER BY s.rho, s.alpha`, StatusDone)
	return snaps, err
}
