package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/conorfennell/repeat/internal/domain"
)

// Source kinds stored in the sources table.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates the database file (and its directory) if needed, connects,
// and ensures the schema is up to date.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer, one connection. This also keeps every statement on the
	// connection the pragmas below were applied to.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const recordColumns = `identity, state, stability, difficulty, due_date, last_reviewed_at, reps, lapses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.CardRecord, error) {
	var (
		rec        domain.CardRecord
		identity   string
		state      int
		due        sql.NullString
		reviewedAt sql.NullString
	)
	if err := row.Scan(&identity, &state, &rec.Stability, &rec.Difficulty, &due, &reviewedAt, &rec.Reps, &rec.Lapses); err != nil {
		return rec, err
	}

	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return rec, err
	}
	rec.Identity = id
	rec.State = domain.State(state)

	if due.Valid && due.String != "" {
		d, err := domain.ParseDate(due.String)
		if err != nil {
			return rec, fmt.Errorf("card %s: %w", id.Short(), err)
		}
		rec.Due = d
	}
	if reviewedAt.Valid && reviewedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, reviewedAt.String)
		if err != nil {
			return rec, fmt.Errorf("card %s: parse last review: %w", id.Short(), err)
		}
		rec.LastReviewedAt = &t
	}
	return rec, nil
}

func nullDate(d domain.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// LoadRecords retrieves every stored card record keyed by identity. Rows
// that cannot be decoded are skipped and returned as errors alongside the
// records that could.
func (db *DB) LoadRecords(ctx context.Context) (map[domain.Identity]domain.CardRecord, []error, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+recordColumns+` FROM cards`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load card records: %w", err)
	}
	defer rows.Close()

	records := make(map[domain.Identity]domain.CardRecord)
	var bad []error
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			bad = append(bad, fmt.Errorf("failed to decode card row: %w", err))
			continue
		}
		records[rec.Identity] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate card records: %w", err)
	}
	return records, bad, nil
}

// FindRecord retrieves one card record by identity. It returns nil, nil
// when the identity has never been stored.
func (db *DB) FindRecord(ctx context.Context, id domain.Identity) (*domain.CardRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM cards WHERE identity = ?`, id.String())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card record %s: %w", id.Short(), err)
	}
	return &rec, nil
}

// Exists reports whether a record is stored for the identity.
func (db *DB) Exists(ctx context.Context, id domain.Identity) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE identity = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check card %s: %w", id.Short(), err)
	}
	return n > 0, nil
}

// CountRecords returns the number of stored card records, including those
// whose cards no longer appear in any deck.
func (db *DB) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count card records: %w", err)
	}
	return n, nil
}

const upsertRecord = `
	INSERT INTO cards (identity, state, stability, difficulty, due_date, last_reviewed_at, reps, lapses, added_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(identity) DO UPDATE SET
		state = excluded.state,
		stability = excluded.stability,
		difficulty = excluded.difficulty,
		due_date = excluded.due_date,
		last_reviewed_at = excluded.last_reviewed_at,
		reps = excluded.reps,
		lapses = excluded.lapses
`

const insertRecord = `
	INSERT INTO cards (identity, state, stability, difficulty, due_date, last_reviewed_at, reps, lapses, added_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) writeRecord(ctx context.Context, e execer, query string, rec domain.CardRecord) error {
	_, err := e.ExecContext(ctx, query,
		rec.Identity.String(),
		int(rec.State),
		rec.Stability,
		rec.Difficulty,
		nullDate(rec.Due),
		nullTime(rec.LastReviewedAt),
		rec.Reps,
		rec.Lapses,
		db.now().UTC().Format(time.RFC3339),
	)
	return err
}

// UpsertRecord durably stores one record, replacing any previous state for
// the identity. The original added_at is kept.
func (db *DB) UpsertRecord(ctx context.Context, rec domain.CardRecord) error {
	if err := db.writeRecord(ctx, db.conn, upsertRecord, rec); err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", rec.Identity.Short(), err)
	}
	return nil
}

// UpsertRecords stores all records in one transaction. Either every record
// is written or none is.
func (db *DB) UpsertRecords(ctx context.Context, recs []domain.CardRecord) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := db.writeRecord(ctx, tx, upsertRecord, rec); err != nil {
				return fmt.Errorf("failed to upsert card %s: %w", rec.Identity.Short(), err)
			}
		}
		return nil
	})
}

// InsertRecords stores new records in one transaction. If any identity is
// already stored nothing is written and the error wraps
// domain.ErrDuplicateIdentity.
func (db *DB) InsertRecords(ctx context.Context, recs []domain.CardRecord) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := db.writeRecord(ctx, tx, insertRecord, rec); err != nil {
				if isConstraint(err) {
					return fmt.Errorf("card %s: %w", rec.Identity.Short(), domain.ErrDuplicateIdentity)
				}
				return fmt.Errorf("failed to insert card %s: %w", rec.Identity.Short(), err)
			}
		}
		return nil
	})
}

func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// Extended result codes keep the primary code in the low byte.
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// Source represents a scanned deck root, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Kind        string
	LastScanned time.Time
}

// TouchSource records that a deck root was scanned now, inserting it on
// first sight.
func (db *DB) TouchSource(ctx context.Context, path, kind string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, kind, last_scanned)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, last_scanned = excluded.last_scanned
	`, path, kind, db.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record source %s: %w", path, err)
	}
	return nil
}

// Sources retrieves all scanned deck roots ordered by path.
func (db *DB) Sources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, kind, last_scanned
		FROM sources ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var (
			s       Source
			scanned string
		)
		if err := rows.Scan(&s.ID, &s.Path, &s.Kind, &scanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		if s.LastScanned, err = time.Parse(time.RFC3339, scanned); err != nil {
			return nil, fmt.Errorf("source %s: bad last_scanned %q: %w", s.Path, scanned, err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}
