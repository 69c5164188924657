// Package journal keeps a local SQLite log of confirmed schedule batches and
// slot deletions.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"examdesk/internal/deletion"
	"examdesk/internal/submission"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry kinds.
const (
	KindBatch    = "batch"
	KindDeletion = "deletion"
)

// Entry is one journal line as listed by Recent.
type Entry struct {
	Kind      string    `json:"kind"`
	Ref       string    `json:"ref"` // batch ID or slot ID
	ClassID   string    `json:"class_id,omitempty"`
	ClassName string    `json:"class_name,omitempty"`
	ExamName  string    `json:"exam_name,omitempty"`
	Items     int       `json:"items,omitempty"`
	Created   int       `json:"created,omitempty"`
	At        time.Time `json:"at"`
}

// Journal is the SQLite-backed history.
type Journal struct {
	db     *sql.DB
	logger *zerolog.Logger
}

var (
	_ submission.HistorySink = (*Journal)(nil)
	_ deletion.Sink          = (*Journal)(nil)
)

// Open opens or creates the journal database at path.
func Open(path string, logger *zerolog.Logger) (*Journal, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Journal initialized")
	return j, nil
}

func (j *Journal) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			class_id TEXT NOT NULL,
			class_name TEXT NOT NULL DEFAULT '',
			exam_name TEXT NOT NULL DEFAULT '',
			items INTEGER NOT NULL,
			created INTEGER NOT NULL,
			payload TEXT NOT NULL,
			confirmed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deletions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot_id TEXT NOT NULL,
			deleted_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_confirmed ON batches(confirmed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_deletions_deleted ON deletions(deleted_at)`,
	}
	for _, q := range queries {
		if _, err := j.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// RecordBatch stores a confirmed batch. Recording the same batch twice is a no-op.
func (j *Journal) RecordBatch(ctx context.Context, b submission.Batch) error {
	payload, err := json.Marshal(b.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO batches (id, class_id, class_name, exam_name, items, created, payload, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Payload.ClassID, b.Payload.ClassName, b.Payload.ExamName,
		len(b.Payload.Schedules), len(b.Created), string(payload), b.ConfirmedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}
	j.logger.Debug().Str("batch", b.ID).Msg("batch journaled")
	return nil
}

// RecordDeletion stores a completed deletion.
func (j *Journal) RecordDeletion(ctx context.Context, r deletion.Record) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO deletions (slot_id, deleted_at) VALUES (?, ?)`,
		r.SlotID, r.DeletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert deletion %s: %w", r.SlotID, err)
	}
	return nil
}

// Recent lists the newest entries first. limit <= 0 means 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT kind, ref, class_id, class_name, exam_name, items, created, at FROM (
			SELECT 'batch' AS kind, id AS ref, class_id, class_name, exam_name, items, created, confirmed_at AS at, rowid AS seq FROM batches
			UNION ALL
			SELECT 'deletion', slot_id, '', '', '', 0, 0, deleted_at, id FROM deletions
		)
		ORDER BY at DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.Kind, &e.Ref, &e.ClassID, &e.ClassName, &e.ExamName, &e.Items, &e.Created, &at); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if e.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse journal time %q: %w", at, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
