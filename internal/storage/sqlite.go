package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/anchor/internal/question"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the question bank, chat transcripts,
// priority snapshots and intake answers.
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
		dsn = filepath.Join(dataDir, "anchor.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
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

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
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

	// Sort by filename to guarantee ascending order.
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

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
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

// --- Question bank ---

// ReplaceQuestions swaps the whole bank for records, keeping their order.
func (s *Store) ReplaceQuestions(records []question.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM questions`); err != nil {
		return fmt.Errorf("clearing questions: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO questions (position, id, question_text, category, question_type, extra_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing question insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		extra := "{}"
		if len(r.Extra) > 0 {
			b, err := json.Marshal(r.Extra)
			if err != nil {
				return fmt.Errorf("encoding extra fields for question %q: %w", r.ID, err)
			}
			extra = string(b)
		}
		if _, err := stmt.Exec(i, r.ID, r.Text, r.Category, r.Type, extra); err != nil {
			return fmt.Errorf("inserting question %q: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListQuestions returns the bank in its stored order.
func (s *Store) ListQuestions() ([]question.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, question_text, category, question_type, extra_json
		FROM questions ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []question.Record
	for rows.Next() {
		var r question.Record
		var extra string
		if err := rows.Scan(&r.ID, &r.Text, &r.Category, &r.Type, &extra); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(extra), &r.Extra); err != nil {
			return nil, fmt.Errorf("decoding extra fields for question %q: %w", r.ID, err)
		}
		if len(r.Extra) == 0 {
			r.Extra = nil
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Chat messages ---

// AppendMessage stores one transcript entry. Messages are never updated.
func (s *Store) AppendMessage(m Message) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, user_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Role, m.Content, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListMessages returns a user's transcript, oldest first. Messages created in
// the same second keep their insertion order.
func (s *Store) ListMessages(userID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role, content, created_at
		FROM chat_messages WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Priority snapshots ---

// SaveSnapshot appends a snapshot for the user.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	areas, err := json.Marshal(snap.Areas)
	if err != nil {
		return fmt.Errorf("encoding priority areas: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO priority_snapshots (id, user_id, areas_json, created_at)
		VALUES (?, ?, ?, ?)`,
		snap.ID, snap.UserID, string(areas), snap.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// LatestSnapshot returns the most recently created snapshot for the user, or
// ErrNotFound.
func (s *Store) LatestSnapshot(userID string) (Snapshot, error) {
	var snap Snapshot
	var areas, createdAt string
	err := s.db.QueryRow(`
		SELECT id, user_id, areas_json, created_at
		FROM priority_snapshots WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID,
	).Scan(&snap.ID, &snap.UserID, &areas, &createdAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(areas), &snap.Areas); err != nil {
		return Snapshot{}, fmt.Errorf("decoding priority areas: %w", err)
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parsing created_at: %w", err)
	}
	snap.CreatedAt = t
	return snap, nil
}

// --- Intake responses ---

// UpsertIntakeResponse stores the answer, replacing any earlier answer the
// user gave to the same question.
func (s *Store) UpsertIntakeResponse(r IntakeResponse) error {
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO intake_responses (user_id, question_id, response_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, question_id) DO UPDATE SET
			response_value = excluded.response_value,
			updated_at = excluded.updated_at`,
		r.UserID, r.QuestionID, r.Value, updatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListIntakeResponses returns every stored answer for the user keyed by
// question ID.
func (s *Store) ListIntakeResponses(userID string) (map[string]IntakeResponse, error) {
	rows, err := s.db.Query(`
		SELECT user_id, question_id, response_value, updated_at
		FROM intake_responses WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]IntakeResponse)
	for rows.Next() {
		var r IntakeResponse
		var updatedAt string
		if err := rows.Scan(&r.UserID, &r.QuestionID, &r.Value, &updatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		r.UpdatedAt = t
		result[r.QuestionID] = r
	}
	return result, rows.Err()
}

// DeleteIntakeResponse removes one stored answer.
func (s *Store) DeleteIntakeResponse(userID, questionID string) error {
	res, err := s.db.Exec(`DELETE FROM intake_responses WHERE user_id = ? AND question_id = ?`, userID, questionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
