package store

import "github.com/jcber/spothoot/pkg/model"

// Catalogue defines the persistence interface for users and quizzes.
// Implementations include the default SQLite store and an in-memory store
// for testing. Lookups return (nil, nil) when the record does not exist.
type Catalogue interface {
	// Close closes the underlying storage connection.
	Close() error

	// ---- Users ----

	// CreateUser persists a new identity and returns it with the assigned ID.
	CreateUser(user model.UserIdentity) (*model.UserIdentity, error)

	// GetUserByName retrieves an identity by display name. Returns (nil, nil) if not found.
	GetUserByName(name string) (*model.UserIdentity, error)

	// GetUserByID retrieves an identity by ID. Returns (nil, nil) if not found.
	GetUserByID(id int64) (*model.UserIdentity, error)

	// UpdateUserTokens replaces the stored content-provider credentials.
	UpdateUserTokens(userID int64, accessToken, refreshToken string) error

	// ListUsers returns all persisted identities.
	ListUsers() ([]model.UserIdentity, error)

	// ---- Quizzes ----

	// CreateQuiz persists a quiz with its questions and assigns its ID.
	CreateQuiz(quiz *model.Quiz) error

	// GetQuiz retrieves a quiz by ID. Returns (nil, nil) if not found.
	GetQuiz(id int64) (*model.Quiz, error)

	// ListQuizzesByPlayer returns all quizzes a player id is invited to.
	ListQuizzesByPlayer(playerID int64) ([]model.Quiz, error)
}

// Compile-time check: *Store implements Catalogue.
var _ Catalogue = (*Store)(nil)
