package notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/expiry/content"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrLogNotFound is returned by ByID for unknown entries.
var ErrLogNotFound = errors.New("notification log entry not found")

// LogEntry records one attempt to email an author.
type LogEntry struct {
	ID           int64          `json:"id"`
	EmailAddress string         `json:"emailAddress"`
	DateAdded    time.Time      `json:"dateAdded"`
	Success      bool           `json:"success"`
	Pages        []content.Page `json:"pages"`
	PageCount    int            `json:"pageCount"`
}

// LogRepository stores the notification log. Listings are newest first.
type LogRepository interface {
	Record(ctx context.Context, entry *LogEntry) error
	All(ctx context.Context) ([]*LogEntry, error)
	Successes(ctx context.Context) ([]*LogEntry, error)
	Failures(ctx context.Context) ([]*LogEntry, error)
	ByID(ctx context.Context, id int64) (*LogEntry, error)
	Close() error
}

// sqlLogRepository holds the queries shared by both databases. Queries are
// written with ? placeholders and rebound for PostgreSQL.
type sqlLogRepository struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// PostgresLogRepository keeps the log in the expiry_emails table.
type PostgresLogRepository struct {
	sqlLogRepository
}

func NewPostgresLogRepository(db *sql.DB) *PostgresLogRepository {
	return &PostgresLogRepository{sqlLogRepository{db: db, postgres: true, now: time.Now}}
}

// Close is a no-op; the connection belongs to the caller.
func (r *PostgresLogRepository) Close() error { return nil }

// SQLiteLogRepository keeps the log in a local SQLite file, for notifiers
// that run without access to the site database.
type SQLiteLogRepository struct {
	sqlLogRepository
}

// NewSQLiteLogRepository opens (or creates) the database at path. Use
// ":memory:" for a throwaway log.
func NewSQLiteLogRepository(path string) (*SQLiteLogRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS expiry_emails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email_address TEXT NOT NULL,
		date_added INTEGER NOT NULL,
		success INTEGER NOT NULL,
		pages TEXT NOT NULL,
		page_count INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expiry_emails_date ON expiry_emails(date_added);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteLogRepository{sqlLogRepository{db: db, now: time.Now}}, nil
}

func (r *SQLiteLogRepository) Close() error { return r.db.Close() }

func (r *sqlLogRepository) rebind(q string) string {
	if !r.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// SQLite stores dates as unix milliseconds.
func (r *sqlLogRepository) dateArg(t time.Time) any {
	if r.postgres {
		return t
	}
	return t.UnixMilli()
}

func (r *sqlLogRepository) Record(ctx context.Context, entry *LogEntry) error {
	pages := entry.Pages
	if pages == nil {
		pages = []content.Page{}
	}
	data, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("failed to marshal pages: %w", err)
	}
	if entry.DateAdded.IsZero() {
		entry.DateAdded = r.now().UTC()
	}
	entry.PageCount = len(entry.Pages)

	err = r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO expiry_emails (email_address, date_added, success, pages, page_count)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), entry.EmailAddress, r.dateArg(entry.DateAdded), entry.Success, string(data), entry.PageCount).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

const logColumns = `id, email_address, date_added, success, pages, page_count`

func (r *sqlLogRepository) All(ctx context.Context) ([]*LogEntry, error) {
	return r.list(ctx, "")
}

func (r *sqlLogRepository) Successes(ctx context.Context) ([]*LogEntry, error) {
	return r.list(ctx, "WHERE success = ?", true)
}

func (r *sqlLogRepository) Failures(ctx context.Context) ([]*LogEntry, error) {
	return r.list(ctx, "WHERE success = ?", false)
}

func (r *sqlLogRepository) ByID(ctx context.Context, id int64) (*LogEntry, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT `+logColumns+`
		FROM expiry_emails
		WHERE id = ?
	`), id)
	entry, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrLogNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return entry, nil
}

func (r *sqlLogRepository) list(ctx context.Context, where string, args ...any) ([]*LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+logColumns+`
		FROM expiry_emails
		`+where+`
		ORDER BY date_added DESC, id DESC
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	entries := []*LogEntry{}
	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *sqlLogRepository) scan(row rowScanner) (*LogEntry, error) {
	var (
		entry LogEntry
		pages string
		err   error
	)
	if r.postgres {
		err = row.Scan(&entry.ID, &entry.EmailAddress, &entry.DateAdded, &entry.Success, &pages, &entry.PageCount)
	} else {
		var millis int64
		err = row.Scan(&entry.ID, &entry.EmailAddress, &millis, &entry.Success, &pages, &entry.PageCount)
		entry.DateAdded = time.UnixMilli(millis).UTC()
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pages), &entry.Pages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pages for entry %d: %w", entry.ID, err)
	}
	return &entry, nil
}
