package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"articulator/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  sourceInstitution TEXT NOT NULL,
  destInstitution TEXT NOT NULL,
  inputRef TEXT NOT NULL,
  orientation TEXT,
  strategy TEXT,
  status TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_pair ON runs(sourceInstitution, destInstitution);

CREATE TABLE IF NOT EXISTS entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  position INTEGER NOT NULL,
  sourceCode TEXT NOT NULL,
  sourceName TEXT NOT NULL,
  sourceUnits TEXT NOT NULL,
  destCode TEXT NOT NULL,
  destName TEXT NOT NULL,
  destUnits TEXT NOT NULL,
  relationship TEXT NOT NULL,
  groupIndex INTEGER,
  groupSize INTEGER,
  rowNo INTEGER NOT NULL,
  suspicious INTEGER NOT NULL DEFAULT 0,
  notesJson TEXT NOT NULL,
  UNIQUE(runId, position),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS rejections (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  entryJson TEXT NOT NULL,
  reasonsJson TEXT NOT NULL,
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS judgments (
  entryKey TEXT PRIMARY KEY,
  judgmentJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveRun stores a finished run with its accepted entries and rejections
// and returns the run id.
func (d *DB) SaveRun(run internal.RunRow, entries []internal.ArticulationEntry, rejected []internal.Rejection) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
INSERT INTO runs (traceId, sourceInstitution, destInstitution, inputRef, orientation, strategy, status, timingsJson, countsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.SourceInstitution, run.DestInstitution, run.InputRef, run.Orientation, run.Strategy, run.Status, run.TimingsJSON, run.CountsJSON)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO entries (
  runId, position, sourceCode, sourceName, sourceUnits, destCode, destName, destUnits,
  relationship, groupIndex, groupSize, rowNo, suspicious, notesJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, e := range entries {
		notesJSON, _ := json.Marshal(e.Notes)
		if _, err := stmt.Exec(
			runID, i, e.SourceCode, e.SourceName, e.SourceUnits, e.DestCode, e.DestName, e.DestUnits,
			string(e.Relationship), nullableInt(e.GroupIndex), nullableInt(e.GroupSize), e.Row, e.Suspicious, string(notesJSON),
		); err != nil {
			return 0, err
		}
	}

	for _, r := range rejected {
		entryJSON, _ := json.Marshal(r.Entry)
		reasonsJSON, _ := json.Marshal(r.Reasons)
		if _, err := tx.Exec(`INSERT INTO rejections (runId, entryJson, reasonsJson) VALUES (?, ?, ?)`, runID, string(entryJSON), string(reasonsJSON)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(runID), nil
}

// InsertFailedRun records a run that produced no output.
func (d *DB) InsertFailedRun(run internal.RunRow) (int, error) {
	return d.SaveRun(run, nil, nil)
}

func (d *DB) UpdateRunStatus(runID int, status string) error {
	_, err := d.conn.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	return err
}

func (d *DB) GetRun(runID int) (*internal.RunRow, error) {
	var row internal.RunRow
	err := d.conn.QueryRow(`
SELECT id, traceId, sourceInstitution, destInstitution, inputRef, COALESCE(orientation, ''), COALESCE(strategy, ''), status, timingsJson, countsJson, createdAt
FROM runs WHERE id = ?
`, runID).Scan(
		&row.ID, &row.TraceID, &row.SourceInstitution, &row.DestInstitution, &row.InputRef,
		&row.Orientation, &row.Strategy, &row.Status, &row.TimingsJSON, &row.CountsJSON, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustRun(runID int) (internal.RunRow, error) {
	row, err := d.GetRun(runID)
	if err != nil {
		return internal.RunRow{}, err
	}
	if row == nil {
		return internal.RunRow{}, fmt.Errorf("run not found: %d", runID)
	}
	return *row, nil
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, traceId, sourceInstitution, destInstitution, inputRef, COALESCE(orientation, ''), COALESCE(strategy, ''), status, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var row internal.RunRow
		if err := rows.Scan(
			&row.ID, &row.TraceID, &row.SourceInstitution, &row.DestInstitution, &row.InputRef,
			&row.Orientation, &row.Strategy, &row.Status, &row.TimingsJSON, &row.CountsJSON, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) ListEntries(runID int) ([]internal.ArticulationEntry, error) {
	rows, err := d.conn.Query(`
SELECT sourceCode, sourceName, sourceUnits, destCode, destName, destUnits,
       relationship, groupIndex, groupSize, rowNo, suspicious, notesJson
FROM entries WHERE runId = ? ORDER BY position ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ArticulationEntry
	for rows.Next() {
		var e internal.ArticulationEntry
		var rel, notesJSON string
		var groupIndex, groupSize sql.NullInt64
		if err := rows.Scan(
			&e.SourceCode, &e.SourceName, &e.SourceUnits, &e.DestCode, &e.DestName, &e.DestUnits,
			&rel, &groupIndex, &groupSize, &e.Row, &e.Suspicious, &notesJSON,
		); err != nil {
			return nil, err
		}
		e.Relationship = internal.Relationship(rel)
		e.GroupIndex = intFromNull(groupIndex)
		e.GroupSize = intFromNull(groupSize)
		_ = json.Unmarshal([]byte(notesJSON), &e.Notes)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) ListRejections(runID int) ([]internal.Rejection, error) {
	rows, err := d.conn.Query(`SELECT entryJson, reasonsJson FROM rejections WHERE runId = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Rejection
	for rows.Next() {
		var entryJSON, reasonsJSON string
		if err := rows.Scan(&entryJSON, &reasonsJSON); err != nil {
			return nil, err
		}
		var r internal.Rejection
		if err := json.Unmarshal([]byte(entryJSON), &r.Entry); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(reasonsJSON), &r.Reasons)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) GetJudgment(key string) (internal.Judgment, bool, error) {
	var blob string
	err := d.conn.QueryRow(`SELECT judgmentJson FROM judgments WHERE entryKey = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Judgment{}, false, nil
	}
	if err != nil {
		return internal.Judgment{}, false, err
	}
	var j internal.Judgment
	if err := json.Unmarshal([]byte(blob), &j); err != nil {
		return internal.Judgment{}, false, err
	}
	return j, true, nil
}

func (d *DB) PutJudgment(key string, j internal.Judgment) error {
	blob, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO judgments (entryKey, judgmentJson) VALUES (?, ?)
ON CONFLICT(entryKey) DO UPDATE SET judgmentJson = excluded.judgmentJson, createdAt = CURRENT_TIMESTAMP
`, key, string(blob))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
