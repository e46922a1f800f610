// Package journal keeps a local history of watch activity so clients
// can ask "what happened while I was away" without the daemon holding
// events in memory forever.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Entry kinds recorded by the watch engine.
const (
	KindNewMessage = "new_message"
	KindExpunge    = "expunge"
)

// Entry is one recorded notification.
type Entry struct {
	ID        string    `json:"id"`
	Server    string    `json:"server"`
	Mailbox   string    `json:"mailbox"`
	UID       uint32    `json:"uid,omitempty"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal stores entries in a local SQLite database.
type Journal struct {
	db *sqlx.DB
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func Open(dbPath string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (j *Journal) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := j.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = j.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := j.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Record inserts one entry. A missing ID or CreatedAt is filled in.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO entries (id, server, mailbox, uid, kind, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Server, e.Mailbox, e.UID, e.Kind, e.Summary, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording journal entry: %w", err)
	}

	return nil
}

// Recent retrieves the newest entries, most recent first. A limit of
// zero or less falls back to 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryxContext(ctx,
		"SELECT id, server, mailbox, uid, kind, summary, created_at FROM entries ORDER BY created_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Prune deletes all but the newest keep entries and reports how many
// were removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := j.db.ExecContext(ctx, `
		DELETE FROM entries WHERE id NOT IN (
			SELECT id FROM entries ORDER BY created_at DESC, id DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning journal entries: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned entries: %w", err)
	}

	return removed, nil
}

// scanEntry scans an entry row from a sqlx.Rows result set.
func scanEntry(rows *sqlx.Rows) (Entry, error) {
	var (
		e         Entry
		createdAt time.Time
	)

	err := rows.Scan(&e.ID, &e.Server, &e.Mailbox, &e.UID, &e.Kind, &e.Summary, &createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("scanning journal row: %w", err)
	}

	e.CreatedAt = createdAt

	return e, nil
}
