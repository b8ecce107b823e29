package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder appends action events to a SQLite table.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The ledger may hold the same file open; wait for its writes instead of failing.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS action_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			run_id    TEXT,
			account   TEXT NOT NULL,
			action    TEXT NOT NULL,
			note      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_account_ts ON action_log(account, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordAction(evt *ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO action_log
		(timestamp, run_id, account, action, note)
		VALUES (?,?,?,?,?)`,
		at.Unix(), evt.RunID, evt.Account, evt.Action, evt.Note,
	)
	return err
}

// Actions returns the most recent events for account, newest first.
func (r *SQLiteRecorder) Actions(account string, limit int) ([]ActionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, run_id, account, action, note
		FROM action_log WHERE account = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []ActionEvent
	for rows.Next() {
		var evt ActionEvent
		var ts int64
		if err := rows.Scan(&ts, &evt.RunID, &evt.Account, &evt.Action, &evt.Note); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		evt.At = time.Unix(ts, 0)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
