package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/itembank/internal/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database that keeps loan history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "itembank.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: an in-memory database is per connection, and the bot and
	// the mcp command may share the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded migrations that are not yet recorded in schema_version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}
		if err := s.applyMigration(version, "migrations/"+entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, path string) error {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
		return fmt.Errorf("checking migration %d: %w", version, err)
	}
	if exists > 0 {
		return nil
	}

	content, err := migrationsFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", path, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Loan events ---

// AppendEvent stores e. A missing ID is generated.
func (s *Store) AppendEvent(e Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO loan_events (id, kind, item, user_id, stage, occurred_at, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Item, e.UserID, e.Stage, e.OccurredAt.UTC().Format(time.RFC3339), e.Detail,
	)
	return err
}

// RecordLoanEvent implements ledger.Recorder.
func (s *Store) RecordLoanEvent(kind ledger.EventKind, rec ledger.LoanRecord, at time.Time) error {
	e := Event{
		Kind:       string(kind),
		Item:       rec.Item,
		UserID:     rec.UserID,
		Stage:      rec.Stage,
		OccurredAt: at,
	}
	if kind == ledger.EventReturn && !rec.BorrowedAt.IsZero() {
		e.Detail = "held " + at.Sub(rec.BorrowedAt).Truncate(time.Minute).String()
	}
	return s.AppendEvent(e)
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(id string) (Event, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, item, user_id, stage, occurred_at, detail
		FROM loan_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, ErrNotFound
	}
	return e, err
}

// RecentEvents returns events newest first.
func (s *Store) RecentEvents(limit, offset int) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, item, user_id, stage, occurred_at, detail
		FROM loan_events ORDER BY occurred_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ItemEvents returns the newest events for one item.
func (s *Store) ItemEvents(item string, limit int) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, item, user_id, stage, occurred_at, detail
		FROM loan_events WHERE item = ? ORDER BY occurred_at DESC, rowid DESC LIMIT ?`, item, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (Event, error) {
	var e Event
	var occurredAt string
	if err := r.Scan(&e.ID, &e.Kind, &e.Item, &e.UserID, &e.Stage, &occurredAt, &e.Detail); err != nil {
		return Event{}, err
	}
	t, err := time.Parse(time.RFC3339, occurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing occurred_at: %w", err)
	}
	e.OccurredAt = t
	return e, nil
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
