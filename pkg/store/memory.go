package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jcber/spothoot/pkg/model"
)

// MemoryStore provides an in-memory Catalogue implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID int64
	nextQuizID int64

	usersByID   map[int64]*model.UserIdentity
	usersByName map[string]*model.UserIdentity
	quizzesByID map[int64]*model.Quiz
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:         now,
		nextUserID:  1,
		nextQuizID:  1,
		usersByID:   make(map[int64]*model.UserIdentity),
		usersByName: make(map[string]*model.UserIdentity),
		quizzesByID: make(map[int64]*model.Quiz),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser persists a new identity and returns it with the assigned ID.
func (s *MemoryStore) CreateUser(user model.UserIdentity) (*model.UserIdentity, error) {
	if err := model.ValidateUserName(user.Name); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[user.Name]; exists {
		return nil, fmt.Errorf("store: create user: constraint failed: UNIQUE constraint failed: users.name")
	}
	user.ID = s.nextUserID
	s.nextUserID++
	stored := user
	s.usersByID[stored.ID] = &stored
	s.usersByName[stored.Name] = &stored
	copyUser := stored
	return &copyUser, nil
}

// GetUserByName retrieves an identity by display name.
func (s *MemoryStore) GetUserByName(name string) (*model.UserIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByName[name]
	if !ok {
		return nil, nil
	}
	copyUser := *user
	return &copyUser, nil
}

// GetUserByID retrieves an identity by ID.
func (s *MemoryStore) GetUserByID(id int64) (*model.UserIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByID[id]
	if !ok {
		return nil, nil
	}
	copyUser := *user
	return &copyUser, nil
}

// UpdateUserTokens replaces the stored content-provider credentials.
func (s *MemoryStore) UpdateUserTokens(userID int64, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByID[userID]
	if !ok {
		return nil
	}
	user.AccessToken = accessToken
	user.RefreshToken = refreshToken
	return nil
}

// ListUsers returns all persisted identities.
func (s *MemoryStore) ListUsers() ([]model.UserIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.UserIdentity, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// CreateQuiz persists a quiz with its questions and assigns its ID.
func (s *MemoryStore) CreateQuiz(quiz *model.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return fmt.Errorf("store: create quiz: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	quiz.ID = s.nextQuizID
	quiz.CreatedAt = s.now().UTC()
	s.nextQuizID++
	stored := *quiz
	stored.PlayerIDs = append([]int64(nil), quiz.PlayerIDs...)
	stored.Questions = append([]model.Question(nil), quiz.Questions...)
	s.quizzesByID[quiz.ID] = &stored
	return nil
}

// GetQuiz retrieves a quiz by ID.
func (s *MemoryStore) GetQuiz(id int64) (*model.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzesByID[id]
	if !ok {
		return nil, nil
	}
	copyQuiz := *quiz
	return &copyQuiz, nil
}

// ListQuizzesByPlayer returns all quizzes a player id is invited to.
func (s *MemoryStore) ListQuizzesByPlayer(playerID int64) ([]model.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var quizzes []model.Quiz
	for _, quiz := range s.quizzesByID {
		for _, pid := range quiz.PlayerIDs {
			if pid == playerID {
				quizzes = append(quizzes, *quiz)
				break
			}
		}
	}
	sort.Slice(quizzes, func(i, j int) bool {
		return quizzes[i].ID < quizzes[j].ID
	})
	return quizzes, nil
}

// Compile-time check: *MemoryStore implements Catalogue.
var _ Catalogue = (*MemoryStore)(nil)
