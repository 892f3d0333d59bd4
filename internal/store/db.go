package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-sim-loop/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Store persists runs, their verdicts and output series in SQLite.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dbPath and creates missing tables.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialise through one connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root_id TEXT NOT NULL,
		parent_id TEXT,
		origin TEXT NOT NULL,
		model_reference TEXT,
		parameters TEXT,
		criterion TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		passed INTEGER,
		calculated_value REAL,
		reason TEXT,
		submitted_at DATETIME,
		completed_at DATETIME,
		validated_at DATETIME
	);
	`
	rootIndex := `CREATE INDEX IF NOT EXISTS idx_runs_root ON runs (root_id);`
	seriesTable := `
	CREATE TABLE IF NOT EXISTS timeseries (
		run_id TEXT PRIMARY KEY,
		records TEXT NOT NULL,
		created_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		stage TEXT,
		error_message TEXT,
		created_at DATETIME
	);
	`

	for _, stmt := range []string{runTable, rootIndex, seriesTable, errorTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRequest records a submitted request. Re-saving an id is a no-op.
func (s *Store) SaveRequest(ctx context.Context, req model.Request) error {
	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return err
	}
	criterion, err := json.Marshal(req.Criterion)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO runs
		(id, root_id, parent_id, origin, model_reference, parameters, criterion, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.RequestID, req.FamilyRoot(), nullString(req.ParentID), string(req.Origin),
		req.ModelReference, string(params), string(criterion), "submitted", req.SubmittedAt.UTC())
	return err
}

// SaveVerdict upserts the run row with its execution outcome and verdict and
// stores the output series. Applying the same verdict twice leaves one row.
func (s *Store) SaveVerdict(ctx context.Context, v model.Verdict) error {
	if err := s.SaveRequest(ctx, v.Request); err != nil {
		return err
	}

	var calculated interface{}
	if val, ok := v.ObservedValue(); ok {
		calculated = val
	}
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET
		status = ?, error_message = ?, passed = ?, calculated_value = ?, reason = ?,
		completed_at = ?, validated_at = ?
		WHERE id = ?`,
		v.Status, nullString(v.ErrorMessage), v.Validation.Passed, calculated, v.Validation.Reason,
		nullTime(v.CompletedAt), nullTime(v.Validation.ValidatedAt), v.RequestID)
	if err != nil {
		return err
	}

	records, err := json.Marshal(v.OutputSeries)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO timeseries (run_id, records, created_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET records = excluded.records`,
		v.RequestID, string(records), time.Now().UTC())
	return err
}

// SaveRunError records a stage error for a run.
func (s *Store) SaveRunError(ctx context.Context, runID, stage string, err error) error {
	if err == nil {
		return nil
	}
	_, e := s.db.ExecContext(ctx, `INSERT INTO run_errors (run_id, stage, error_message, created_at) VALUES (?, ?, ?, ?)`,
		runID, stage, err.Error(), time.Now().UTC())
	return e
}

// RunErrors returns the error messages recorded for a run, oldest first.
func (s *Store) RunErrors(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, error_message FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var stage, msg string
		if err := rows.Scan(&stage, &msg); err != nil {
			return nil, err
		}
		out = append(out, stage+": "+msg)
	}
	return out, rows.Err()
}

const runColumns = `id, root_id, parent_id, origin, model_reference, parameters, criterion, status,
	error_message, passed, calculated_value, reason, submitted_at, completed_at, validated_at`

// GetRun fetches one run.
func (s *Store) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// ListRuns returns the most recently submitted runs. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY submitted_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRuns(ctx, query, args...)
}

// ListFamily returns every run of the family rooted at rootID, ordered by id.
func (s *Store) ListFamily(ctx context.Context, rootID string) ([]model.RunRecord, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE root_id = ? ORDER BY id`, rootID)
}

// ListAll returns every stored run in submission order. Used to rebuild
// in-memory state on start-up.
func (s *Store) ListAll(ctx context.Context) ([]model.RunRecord, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY submitted_at, id`)
}

// GetTimeseries returns the stored output series of a run.
func (s *Store) GetTimeseries(ctx context.Context, id string) ([]model.SeriesRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT records FROM timeseries WHERE run_id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no time series for %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var records []model.SeriesRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...interface{}) ([]model.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (model.RunRecord, error) {
	var (
		rec                           model.RunRecord
		origin, params, criterion     string
		parentID, errMsg, reason, ref sql.NullString
		passed                        sql.NullBool
		calculated                    sql.NullFloat64
		submittedAt                   sql.NullTime
		completedAt, validatedAt      sql.NullTime
	)
	err := row.Scan(&rec.RequestID, &rec.RootID, &parentID, &origin, &ref, &params, &criterion,
		&rec.Status, &errMsg, &passed, &calculated, &reason, &submittedAt, &completedAt, &validatedAt)
	if err != nil {
		return model.RunRecord{}, err
	}

	rec.Origin = model.Origin(origin)
	rec.ParentID = parentID.String
	rec.ModelReference = ref.String
	rec.ErrorMessage = errMsg.String
	rec.Reason = reason.String
	if err := json.Unmarshal([]byte(params), &rec.Parameters); err != nil {
		return model.RunRecord{}, fmt.Errorf("decode parameters of %s: %w", rec.RequestID, err)
	}
	if err := json.Unmarshal([]byte(criterion), &rec.Criterion); err != nil {
		return model.RunRecord{}, fmt.Errorf("decode criterion of %s: %w", rec.RequestID, err)
	}
	if passed.Valid {
		p := passed.Bool
		rec.Passed = &p
	}
	if calculated.Valid {
		c := calculated.Float64
		rec.CalculatedValue = &c
	}
	if submittedAt.Valid {
		rec.SubmittedAt = submittedAt.Time
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if validatedAt.Valid {
		t := validatedAt.Time
		rec.ValidatedAt = &t
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
