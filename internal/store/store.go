package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/quizcraft/internal/model"

	_ "modernc.org/sqlite"
)

// Sentinel errors for history operations. Callers are expected to treat
// both as non-fatal: the quiz session keeps working in memory even when
// persistence fails.
var (
	// ErrNotFound is returned when an entry with the given id does not exist.
	ErrNotFound = errors.New("history entry not found")
	// ErrUnavailable is returned when the underlying database cannot be
	// opened or reached.
	ErrUnavailable = errors.New("history storage unavailable")
)

// UpdateFields holds the partial fields merged into an existing entry by
// Update. Nil fields are left untouched.
type UpdateFields struct {
	Timestamp *int64
	Score     *int
	LastScore *int
	Attempt   *int
	Answers   []model.HistoryAnswer
}

// HistoryStore persists completed quiz attempts. GetAll returns entries in
// unspecified order; callers sort for display.
type HistoryStore interface {
	Add(entry model.HistoryEntry) (int64, error)
	GetAll() ([]model.HistoryEntry, error)
	Update(id int64, fields UpdateFields) error
	DeleteOne(id int64) error
	DeleteAll() error
	FindByTopicAndDifficulty(topic, difficulty string) (*model.HistoryEntry, error)
}

// Store is the SQLite-backed history and preferences store. One database
// file per user, each operation its own transaction.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping database: %v", ErrUnavailable, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quiz_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		score INTEGER NOT NULL,
		last_score INTEGER,
		total_questions INTEGER NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 1,
		answers TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_history_timestamp ON quiz_history(timestamp);
	CREATE INDEX IF NOT EXISTS idx_quiz_history_topic ON quiz_history(topic);

	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add inserts a new entry and returns its assigned id. The entry's own ID
// field is ignored.
func (s *Store) Add(entry model.HistoryEntry) (int64, error) {
	answers, err := json.Marshal(entry.Answers)
	if err != nil {
		return 0, fmt.Errorf("marshal answers: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO quiz_history (timestamp, topic, difficulty, score, last_score, total_questions, attempt, answers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Topic, entry.Difficulty, entry.Score, entry.LastScore,
		entry.TotalQuestions, entry.Attempt, string(answers),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAll returns every stored entry.
func (s *Store) GetAll() ([]model.HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, topic, difficulty, score, last_score, total_questions, attempt, answers
		 FROM quiz_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (model.HistoryEntry, error) {
	var e model.HistoryEntry
	var lastScore sql.NullInt64
	var answers string
	err := row.Scan(&e.ID, &e.Timestamp, &e.Topic, &e.Difficulty, &e.Score,
		&lastScore, &e.TotalQuestions, &e.Attempt, &answers)
	if err != nil {
		return e, err
	}
	if lastScore.Valid {
		v := int(lastScore.Int64)
		e.LastScore = &v
	}
	if err := json.Unmarshal([]byte(answers), &e.Answers); err != nil {
		return e, fmt.Errorf("unmarshal answers for entry %d: %w", e.ID, err)
	}
	return e, nil
}

// Update merges the non-nil fields into the entry with the given id,
// preserving the id. Returns ErrNotFound when no such entry exists.
func (s *Store) Update(id int64, fields UpdateFields) error {
	var sets []string
	var args []any
	if fields.Timestamp != nil {
		sets = append(sets, "timestamp = ?")
		args = append(args, *fields.Timestamp)
	}
	if fields.Score != nil {
		sets = append(sets, "score = ?")
		args = append(args, *fields.Score)
	}
	if fields.LastScore != nil {
		sets = append(sets, "last_score = ?")
		args = append(args, *fields.LastScore)
	}
	if fields.Attempt != nil {
		sets = append(sets, "attempt = ?")
		args = append(args, *fields.Attempt)
	}
	if fields.Answers != nil {
		answers, err := json.Marshal(fields.Answers)
		if err != nil {
			return fmt.Errorf("marshal answers: %w", err)
		}
		sets = append(sets, "answers = ?")
		args = append(args, string(answers))
	}
	if len(sets) == 0 {
		// Nothing to merge; still report a missing entry.
		var one int
		err := s.db.QueryRow(`SELECT 1 FROM quiz_history WHERE id = ?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}

	args = append(args, id)
	res, err := s.db.Exec(`UPDATE quiz_history SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
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

// DeleteOne removes a single entry. Deleting a missing id returns
// ErrNotFound so callers can detect double deletes.
func (s *Store) DeleteOne(id int64) error {
	res, err := s.db.Exec(`DELETE FROM quiz_history WHERE id = ?`, id)
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

// DeleteAll clears every entry. Irreversible.
func (s *Store) DeleteAll() error {
	_, err := s.db.Exec(`DELETE FROM quiz_history`)
	return err
}

// FindByTopicAndDifficulty returns the first entry matching both fields, or
// nil when there is none. Used to carry a lastScore into new entries.
func (s *Store) FindByTopicAndDifficulty(topic, difficulty string) (*model.HistoryEntry, error) {
	row := s.db.QueryRow(
		`SELECT id, timestamp, topic, difficulty, score, last_score, total_questions, attempt, answers
		 FROM quiz_history WHERE topic = ? AND difficulty = ? ORDER BY id LIMIT 1`,
		topic, difficulty)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
