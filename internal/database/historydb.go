package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/gridextract/internal/model"
)

// FileName is the database file name inside the data directory.
const FileName = "gridextract.db"

// HistoryDB stores extraction runs and captcha attempts.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so history can be read while
	// an extraction batch writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- One row per extraction run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		grid_id INTEGER NOT NULL,
		label TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		attempts INTEGER DEFAULT 0,
		row_count INTEGER DEFAULT 0,
		has_summary INTEGER DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		content_hash TEXT,
		result_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	CREATE INDEX IF NOT EXISTS idx_runs_grid ON runs(strategy, grid_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per captcha recognition attempt
	CREATE TABLE IF NOT EXISTS captcha_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		max_attempts INTEGER NOT NULL,
		engine TEXT,
		code TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_captcha_session ON captcha_attempts(session_id);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// HashContent returns the hex SHA3-256 digest of raw extraction output.
// Equal hashes across runs mean the grid did not change.
func HashContent(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	sum := sha3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// RunRecord represents a stored extraction run.
type RunRecord struct {
	ID          string
	SessionID   string
	Strategy    string
	GridID      int
	Label       string
	Outcome     string
	Error       string
	Attempts    int
	Rows        int
	HasSummary  bool
	StartedAt   time.Time
	FinishedAt  time.Time
	ContentHash string

	// Result is the parsed result, nil for failed runs.
	Result *model.Result
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// SaveRun inserts a run, replacing a stored run with the same id.
func (hdb *HistoryDB) SaveRun(ctx context.Context, record *RunRecord) error {
	if record.ID == "" {
		return errors.New("run record needs an id")
	}

	var resultJSON sql.NullString
	if record.Result != nil {
		data, err := json.Marshal(record.Result)
		if err != nil {
			return fmt.Errorf("failed to serialize result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
	INSERT INTO runs (id, session_id, strategy, grid_id, label, outcome, error, attempts, row_count,
		has_summary, started_at, finished_at, content_hash, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		outcome = excluded.outcome,
		error = excluded.error,
		attempts = excluded.attempts,
		row_count = excluded.row_count,
		has_summary = excluded.has_summary,
		finished_at = excluded.finished_at,
		content_hash = excluded.content_hash,
		result_json = excluded.result_json
	`

	_, err := hdb.db.ExecContext(ctx, query,
		record.ID,
		record.SessionID,
		record.Strategy,
		record.GridID,
		record.Label,
		record.Outcome,
		record.Error,
		record.Attempts,
		record.Rows,
		record.HasSummary,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		record.FinishedAt.UTC().Format(time.RFC3339Nano),
		record.ContentHash,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `id, session_id, strategy, grid_id, label, outcome, error, attempts, row_count,
	has_summary, started_at, finished_at, content_hash, result_json`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner, withResult bool) (*RunRecord, error) {
	var (
		record     RunRecord
		label      sql.NullString
		errText    sql.NullString
		hash       sql.NullString
		resultJSON sql.NullString
		started    string
		finished   string
	)
	err := s.Scan(
		&record.ID,
		&record.SessionID,
		&record.Strategy,
		&record.GridID,
		&label,
		&record.Outcome,
		&errText,
		&record.Attempts,
		&record.Rows,
		&record.HasSummary,
		&started,
		&finished,
		&hash,
		&resultJSON,
	)
	if err != nil {
		return nil, err
	}

	record.Label = label.String
	record.Error = errText.String
	record.ContentHash = hash.String
	record.StartedAt = parseTimestamp(started)
	record.FinishedAt = parseTimestamp(finished)

	if withResult && resultJSON.Valid {
		var res model.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err != nil {
			return nil, fmt.Errorf("failed to deserialize result of run %s: %w", record.ID, err)
		}
		record.Result = &res
	}
	return &record, nil
}

// GetRun retrieves a run with its result by id. It returns nil if there
// is no such run.
func (hdb *HistoryDB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	record, err := scanRun(hdb.db.QueryRowContext(ctx, query, id), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return record, nil
}

// RunFilter narrows ListRuns. Zero fields are ignored.
type RunFilter struct {
	SessionID string
	Strategy  string
	GridID    int
	Outcome   string
	Limit     int
}

// ListRuns returns runs newest first, without their results.
func (hdb *HistoryDB) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Strategy != "" {
		conds = append(conds, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	if filter.GridID != 0 {
		conds = append(conds, "grid_id = ?")
		args = append(args, filter.GridID)
	}
	if filter.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// LatestSuccess returns the newest successful run of a grid with its
// result, or nil if the grid was never extracted.
func (hdb *HistoryDB) LatestSuccess(ctx context.Context, strategy string, gridID int) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs
	WHERE strategy = ? AND grid_id = ? AND outcome = 'ok'
	ORDER BY started_at DESC LIMIT 1`

	record, err := scanRun(hdb.db.QueryRowContext(ctx, query, strategy, gridID), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return record, nil
}

// CaptchaAttemptRecord represents one stored recognition attempt.
type CaptchaAttemptRecord struct {
	ID          int64
	SessionID   string
	Attempt     int
	MaxAttempts int
	Engine      string
	Code        string
	Outcome     string
	Error       string
	Timestamp   time.Time
}

// InsertCaptchaAttempt stores a recognition attempt.
func (hdb *HistoryDB) InsertCaptchaAttempt(ctx context.Context, record *CaptchaAttemptRecord) error {
	query := `
	INSERT INTO captcha_attempts (session_id, attempt, max_attempts, engine, code, outcome, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := hdb.db.ExecContext(ctx, query,
		record.SessionID,
		record.Attempt,
		record.MaxAttempts,
		record.Engine,
		record.Code,
		record.Outcome,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert captcha attempt: %w", err)
	}
	record.ID, err = result.LastInsertId()
	return err
}

// ListCaptchaAttempts returns the attempts of a session in insertion order.
// An empty sessionID lists every attempt.
func (hdb *HistoryDB) ListCaptchaAttempts(ctx context.Context, sessionID string) ([]CaptchaAttemptRecord, error) {
	query := `
	SELECT id, session_id, attempt, max_attempts, engine, code, outcome, error, timestamp
	FROM captcha_attempts`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id"

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list captcha attempts: %w", err)
	}
	defer rows.Close()

	var records []CaptchaAttemptRecord
	for rows.Next() {
		var (
			record    CaptchaAttemptRecord
			engine    sql.NullString
			code      sql.NullString
			errText   sql.NullString
			timestamp string
		)
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Attempt,
			&record.MaxAttempts,
			&engine,
			&code,
			&record.Outcome,
			&errText,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan captcha attempt: %w", err)
		}
		record.Engine = engine.String
		record.Code = code.String
		record.Error = errText.String
		record.Timestamp = parseTimestamp(timestamp)
		records = append(records, record)
	}
	return records, rows.Err()
}

// CaptchaStats summarizes recognition attempts per engine.
type CaptchaStats struct {
	Engine    string
	Attempts  int
	Dismissed int
}

// SolveRate returns the share of attempts that dismissed the dialog.
func (s CaptchaStats) SolveRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Dismissed) / float64(s.Attempts)
}

// GetCaptchaStats aggregates attempts by engine. dismissed is the outcome
// label of a successful attempt.
func (hdb *HistoryDB) GetCaptchaStats(ctx context.Context, dismissed string) ([]CaptchaStats, error) {
	query := `
	SELECT COALESCE(engine, ''), COUNT(*), SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END)
	FROM captcha_attempts
	GROUP BY engine
	ORDER BY engine
	`
	rows, err := hdb.db.QueryContext(ctx, query, dismissed)
	if err != nil {
		return nil, fmt.Errorf("failed to get captcha stats: %w", err)
	}
	defer rows.Close()

	var stats []CaptchaStats
	for rows.Next() {
		var s CaptchaStats
		if err := rows.Scan(&s.Engine, &s.Attempts, &s.Dismissed); err != nil {
			return nil, fmt.Errorf("failed to scan captcha stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // stored run times
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
