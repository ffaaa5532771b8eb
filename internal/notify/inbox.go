package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/usersim/internal/panel"
	_ "modernc.org/sqlite"
)

// InboxFile is the database file name inside the usersim directory.
const InboxFile = "usersim.db"

// inboxSchemaVersion is the current inbox schema version.
const inboxSchemaVersion = 1

const inboxSchemaV1 = `
CREATE TABLE IF NOT EXISTS notifications (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,         -- 'success' or 'error'
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_kind ON notifications(kind);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// Record is a stored notification.
type Record struct {
	ID string `json:"id"`
	panel.Notification
}

// Inbox persists notifications in SQLite so past outcomes survive restarts.
type Inbox struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenInbox opens (or creates) dir/usersim.db.
func OpenInbox(dir string, logger *slog.Logger) (*Inbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	dbPath := filepath.Join(dir, InboxFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := initInboxSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Inbox{db: db, logger: logger}, nil
}

func initInboxSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, inboxSchemaV1); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		inboxSchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// Add stores n and returns its generated ID.
func (b *Inbox) Add(ctx context.Context, n panel.Notification) (string, error) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	id := uuid.NewString()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO notifications (id, kind, title, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(n.Kind), n.Title, n.Description, n.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert notification: %w", err)
	}
	return id, nil
}

// Notify implements panel.Notifier. Storage failures are logged.
func (b *Inbox) Notify(ctx context.Context, n panel.Notification) {
	if _, err := b.Add(ctx, n); err != nil {
		b.logger.Warn("inbox write failed", "error", err)
	}
}

// Recent returns up to limit notifications, newest first. A limit <= 0
// returns all of them.
func (b *Inbox) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, kind, title, description, created_at FROM notifications ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var kind, createdAt string
		if err := rows.Scan(&r.ID, &kind, &r.Title, &r.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		r.Kind = panel.NotificationKind(kind)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.Time = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Clear deletes every stored notification and returns how many were removed.
func (b *Inbox) Clear(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM notifications`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (b *Inbox) Close() error {
	return b.db.Close()
}

var _ panel.Notifier = (*Inbox)(nil)
