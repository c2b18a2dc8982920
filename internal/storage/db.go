package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dataclean/internal"
)

var ErrNotFound = errors.New("not found")

// DB is the repository for canvas files and provenance flows. Flows are
// kept consistent with files here rather than by foreign keys: removing a
// file removes every flow that touches it.
type DB struct {
	conn  *sql.DB
	newID func() string
	now   func() time.Time
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, newID: uuid.NewString, now: time.Now}
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
CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  path TEXT,
  activeSheet TEXT,
  sheetsJson TEXT NOT NULL,
  posX REAL NOT NULL DEFAULT 0,
  posY REAL NOT NULL DEFAULT 0,
  width REAL NOT NULL DEFAULT 0,
  height REAL NOT NULL DEFAULT 0,
  quality INTEGER NOT NULL DEFAULT 0,
  rowCount INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS flows (
  id TEXT PRIMARY KEY,
  fromId TEXT NOT NULL,
  toId TEXT NOT NULL,
  label TEXT NOT NULL,
  kind TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_flows_from ON flows(fromId);
CREATE INDEX IF NOT EXISTS idx_flows_to ON flows(toId);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS attachments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  emailId INTEGER NOT NULL,
  fileName TEXT NOT NULL,
  path TEXT NOT NULL,
  fileId TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(emailId, fileName)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  command TEXT NOT NULL,
  intentType TEXT NOT NULL,
  confidence REAL NOT NULL,
  success INTEGER NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
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

// AddFile stores a new file and returns it with its generated id.
func (d *DB) AddFile(f internal.File) (internal.File, error) {
	f.ID = d.newID()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = d.now().UTC()
	}
	if f.ActiveSheet == "" && len(f.Sheets) > 0 {
		f.ActiveSheet = f.Sheets[0].Name
	}
	sheetsJSON, err := json.Marshal(f.Sheets)
	if err != nil {
		return internal.File{}, err
	}

	_, err = d.conn.Exec(`
INSERT INTO files (id, name, type, path, activeSheet, sheetsJson, posX, posY, width, height, quality, rowCount, createdAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, f.ID, f.Name, string(f.Type), f.Path, f.ActiveSheet, string(sheetsJSON),
		f.Position.X, f.Position.Y, f.Size.Width, f.Size.Height, f.Quality, f.RowCount,
		f.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return internal.File{}, err
	}
	return f, nil
}

func (d *DB) UpdateFile(f internal.File) error {
	sheetsJSON, err := json.Marshal(f.Sheets)
	if err != nil {
		return err
	}
	res, err := d.conn.Exec(`
UPDATE files SET name = ?, type = ?, path = ?, activeSheet = ?, sheetsJson = ?,
  posX = ?, posY = ?, width = ?, height = ?, quality = ?, rowCount = ?
WHERE id = ?
`, f.Name, string(f.Type), f.Path, f.ActiveSheet, string(sheetsJSON),
		f.Position.X, f.Position.Y, f.Size.Width, f.Size.Height, f.Quality, f.RowCount, f.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %s: %w", f.ID, ErrNotFound)
	}
	return nil
}

func (d *DB) GetFile(id string) (*internal.File, error) {
	row := d.conn.QueryRow(`
SELECT id, name, type, path, activeSheet, sheetsJson, posX, posY, width, height, quality, rowCount, createdAt
FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles returns files in insertion order, which is the file order used
// to break ranking ties during extraction.
func (d *DB) ListFiles() ([]internal.File, error) {
	rows, err := d.conn.Query(`
SELECT id, name, type, path, activeSheet, sheetsJson, posX, posY, width, height, quality, rowCount, createdAt
FROM files ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (internal.File, error) {
	var f internal.File
	var fileType, sheetsJSON, createdAt string
	var path, active sql.NullString
	if err := row.Scan(&f.ID, &f.Name, &fileType, &path, &active, &sheetsJSON,
		&f.Position.X, &f.Position.Y, &f.Size.Width, &f.Size.Height, &f.Quality, &f.RowCount, &createdAt); err != nil {
		return internal.File{}, err
	}
	f.Type = internal.FileType(fileType)
	f.Path = path.String
	f.ActiveSheet = active.String
	if err := json.Unmarshal([]byte(sheetsJSON), &f.Sheets); err != nil {
		return internal.File{}, fmt.Errorf("decode sheets of %s: %w", f.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		f.CreatedAt = t
	}
	return f, nil
}

// RemoveFile deletes the file and every flow referencing it as either end.
// It returns the number of flows removed.
func (d *DB) RemoveFile(id string) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("file %s: %w", id, ErrNotFound)
	}

	res, err = tx.Exec(`DELETE FROM flows WHERE fromId = ? OR toId = ?`, id, id)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()

	if _, err := tx.Exec(`UPDATE attachments SET fileId = NULL WHERE fileId = ?`, id); err != nil {
		return 0, err
	}

	return int(removed), tx.Commit()
}

// AddFlow records a provenance edge. Both endpoints must exist.
func (d *DB) AddFlow(from, to, label string, kind internal.FlowKind) (internal.Flow, error) {
	var count int
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM files WHERE id IN (?, ?)`, from, to).Scan(&count); err != nil {
		return internal.Flow{}, err
	}
	want := 2
	if from == to {
		want = 1
	}
	if count != want {
		return internal.Flow{}, fmt.Errorf("flow %s -> %s: endpoint %w", from, to, ErrNotFound)
	}

	flow := internal.Flow{ID: d.newID(), From: from, To: to, Label: label, Kind: kind}
	_, err := d.conn.Exec(`INSERT INTO flows (id, fromId, toId, label, kind) VALUES (?, ?, ?, ?, ?)`,
		flow.ID, flow.From, flow.To, flow.Label, string(flow.Kind))
	if err != nil {
		return internal.Flow{}, err
	}
	return flow, nil
}

func (d *DB) ListFlows() ([]internal.Flow, error) {
	rows, err := d.conn.Query(`SELECT id, fromId, toId, label, kind FROM flows ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Flow
	for rows.Next() {
		var f internal.Flow
		var kind string
		if err := rows.Scan(&f.ID, &f.From, &f.To, &f.Label, &kind); err != nil {
			return nil, err
		}
		f.Kind = internal.FlowKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (d *DB) RemoveFlow(id string) error {
	res, err := d.conn.Exec(`DELETE FROM flows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	return nil
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email provider=%s messageId=%s: %w", provider, messageID, ErrNotFound)
	}
	return *row, nil
}

// RecordAttachment links a saved mail attachment to the file imported from
// it. It reports false when the attachment was already recorded.
func (d *DB) RecordAttachment(emailID int, fileName, path, fileID string) (bool, error) {
	res, err := d.conn.Exec(`
INSERT INTO attachments (emailId, fileName, path, fileId) VALUES (?, ?, ?, ?)
ON CONFLICT(emailId, fileName) DO NOTHING
`, emailID, fileName, path, fileID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *DB) HasAttachment(emailID int, fileName string) (bool, error) {
	var count int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM attachments WHERE emailId = ? AND fileName = ?`, emailID, fileName).Scan(&count)
	return count > 0, err
}

type RunRecord struct {
	TraceID    string
	Command    string
	Intent     internal.Intent
	Success    bool
	Timings    map[string]float64
	Counts     map[string]int
	RecordedAt string
}

func (d *DB) InsertRun(run RunRecord) error {
	timingsJSON, _ := json.Marshal(run.Timings)
	countsJSON, _ := json.Marshal(run.Counts)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, command, intentType, confidence, success, timingsJson, countsJson)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.TraceID, run.Command, string(run.Intent.Type), run.Intent.Confidence, run.Success, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := d.conn.Query(`
SELECT traceId, command, intentType, confidence, success, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var intentType, timingsJSON, countsJSON string
		if err := rows.Scan(&r.TraceID, &r.Command, &intentType, &r.Intent.Confidence, &r.Success, &timingsJSON, &countsJSON, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Intent.Type = internal.IntentType(intentType)
		_ = json.Unmarshal([]byte(timingsJSON), &r.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &r.Counts)
		out = append(out, r)
	}
	return out, rows.Err()
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
