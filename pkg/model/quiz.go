package model

import (
	"errors"
	"time"
)

var ErrQuizNoCreator = errors.New("quiz must have a creator")
var ErrQuizNoQuestions = errors.New("quiz must contain at least one question")
var ErrQuestionNoTrack = errors.New("question must reference a track")

// Question is one quiz round: guess the artist of a reference track from
// a fixed set of candidate answers. Options are expected to contain the
// correct artist exactly once; that invariant is the option generator's
// responsibility, not enforced here.
type Question struct {
	TrackID string   `json:"track_id"`
	Options []string `json:"options"`
}

// Quiz is a persisted set of questions plus the creator and the invited
// player identity ids. PlayerIDs keeps the order the creator chose and is
// not deduplicated.
type Quiz struct {
	ID        int64      `json:"id"`
	CreatorID int64      `json:"creator_id"`
	PlayerIDs []int64    `json:"player_ids"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks the structural invariants of a quiz before persisting.
func (q *Quiz) Validate() error {
	if q.CreatorID == 0 {
		return ErrQuizNoCreator
	}
	if len(q.Questions) == 0 {
		return ErrQuizNoQuestions
	}
	for _, question := range q.Questions {
		if question.TrackID == "" {
			return ErrQuestionNoTrack
		}
	}
	return nil
}
