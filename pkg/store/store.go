// Package store provides SQLite-backed persistence for users and quizzes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jcber/spothoot/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for all SpotHoot entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT    NOT NULL UNIQUE CHECK(length(name) > 0 AND length(name) <= 64),
		access_token  TEXT    NOT NULL DEFAULT '',
		refresh_token TEXT    NOT NULL DEFAULT '',
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS quizzes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		creator_id INTEGER NOT NULL,
		player_ids TEXT    NOT NULL DEFAULT '[]',
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS questions (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id  INTEGER NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		track_id TEXT    NOT NULL,
		options  TEXT    NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions(quiz_id, position);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: migrate: %w", err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Users ----

// CreateUser persists a new identity and returns it with the assigned ID.
// It validates the display name before inserting.
func (s *Store) CreateUser(user model.UserIdentity) (*model.UserIdentity, error) {
	if err := model.ValidateUserName(user.Name); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO users (name, access_token, refresh_token) VALUES (?, ?, ?)",
		user.Name, user.AccessToken, user.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	id, _ := res.LastInsertId()
	user.ID = id
	return &user, nil
}

// GetUserByName retrieves an identity by display name.
func (s *Store) GetUserByName(name string) (*model.UserIdentity, error) {
	u := &model.UserIdentity{}
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, name, access_token, refresh_token FROM users WHERE name = ?", name).
		Scan(&u.ID, &u.Name, &u.AccessToken, &u.RefreshToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user by name: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves an identity by ID.
func (s *Store) GetUserByID(id int64) (*model.UserIdentity, error) {
	u := &model.UserIdentity{}
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, name, access_token, refresh_token FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.AccessToken, &u.RefreshToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// UpdateUserTokens replaces the stored content-provider credentials.
func (s *Store) UpdateUserTokens(userID int64, accessToken, refreshToken string) error {
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE users SET access_token = ?, refresh_token = ? WHERE id = ?",
		accessToken, refreshToken, userID)
	if err != nil {
		return fmt.Errorf("store: update user tokens: %w", err)
	}
	return nil
}

// ListUsers returns all persisted identities.
func (s *Store) ListUsers() ([]model.UserIdentity, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, name, access_token, refresh_token FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.UserIdentity
	for rows.Next() {
		var u model.UserIdentity
		if err := rows.Scan(&u.ID, &u.Name, &u.AccessToken, &u.RefreshToken); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ---- Quizzes ----

// CreateQuiz persists a quiz with its questions and assigns its ID.
// Questions are stored in invitation order; player ids keep duplicates.
func (s *Store) CreateQuiz(quiz *model.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return fmt.Errorf("store: create quiz: %w", err)
	}

	playerIDs, err := json.Marshal(quiz.PlayerIDs)
	if err != nil {
		return fmt.Errorf("store: create quiz: %w", err)
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO quizzes (creator_id, player_ids) VALUES (?, ?)",
		quiz.CreatorID, string(playerIDs))
	if err != nil {
		return fmt.Errorf("store: create quiz: %w", err)
	}
	quizID, _ := res.LastInsertId()

	for i, q := range quiz.Questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("store: create quiz: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO questions (quiz_id, position, track_id, options) VALUES (?, ?, ?, ?)",
			quizID, i, q.TrackID, string(options)); err != nil {
			return fmt.Errorf("store: create question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	quiz.ID = quizID
	quiz.CreatedAt = time.Now().UTC()
	return nil
}

// GetQuiz retrieves a quiz by ID.
func (s *Store) GetQuiz(id int64) (*model.Quiz, error) {
	quiz := &model.Quiz{}
	var playerIDs, createdAt string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, creator_id, player_ids, created_at FROM quizzes WHERE id = ?", id).
		Scan(&quiz.ID, &quiz.CreatorID, &playerIDs, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get quiz: %w", err)
	}
	if err := json.Unmarshal([]byte(playerIDs), &quiz.PlayerIDs); err != nil {
		return nil, fmt.Errorf("store: get quiz: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: get quiz: %w", err)
	}
	quiz.CreatedAt = parsed

	quiz.Questions, err = s.quizQuestions(quiz.ID)
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// ListQuizzesByPlayer returns all quizzes a player id is invited to.
func (s *Store) ListQuizzesByPlayer(playerID int64) ([]model.Quiz, error) {
	// player_ids is a JSON array column; membership is checked per row.
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, creator_id, player_ids, created_at FROM quizzes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list quizzes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var quizzes []model.Quiz
	for rows.Next() {
		var quiz model.Quiz
		var playerIDs, createdAt string
		if err := rows.Scan(&quiz.ID, &quiz.CreatorID, &playerIDs, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan quiz: %w", err)
		}
		if err := json.Unmarshal([]byte(playerIDs), &quiz.PlayerIDs); err != nil {
			return nil, fmt.Errorf("store: scan quiz: %w", err)
		}
		invited := false
		for _, pid := range quiz.PlayerIDs {
			if pid == playerID {
				invited = true
				break
			}
		}
		if !invited {
			continue
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan quiz: %w", err)
		}
		quiz.CreatedAt = parsed
		quiz.Questions, err = s.quizQuestions(quiz.ID)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (s *Store) quizQuestions(quizID int64) ([]model.Question, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT track_id, options FROM questions WHERE quiz_id = ? ORDER BY position", quizID)
	if err != nil {
		return nil, fmt.Errorf("store: list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options string
		if err := rows.Scan(&q.TrackID, &options); err != nil {
			return nil, fmt.Errorf("store: scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("store: scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
