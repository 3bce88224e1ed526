package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// QuestionType selects how a submitted answer is compared with the expected one.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionText           QuestionType = "text"
)

const (
	// DefaultTimeLimitSeconds applies to quizzes stored without a time limit.
	DefaultTimeLimitSeconds = 300
	// DefaultPoints applies to questions stored without a point value.
	DefaultPoints = 1
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question is a single scored item of a quiz.
type Question struct {
	ID            string       `json:"id" yaml:"id" validate:"required"`
	Prompt        string       `json:"prompt" yaml:"prompt"`
	Type          QuestionType `json:"type" yaml:"type" validate:"omitempty,oneof=multiple_choice true_false text"`
	Options       []Option     `json:"options,omitempty" yaml:"options" validate:"dive"`
	CorrectAnswer string       `json:"correctAnswer,omitempty" yaml:"correctAnswer"`
	Points        int          `json:"points" yaml:"points" validate:"gt=0"`
}

// Expected returns the answer that earns the question's points.
func (q Question) Expected() string {
	if q.CorrectAnswer != "" {
		return q.CorrectAnswer
	}
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// FreeText reports whether answers are compared after normalization.
func (q Question) FreeText() bool {
	return q.Type == QuestionText
}

// Quiz is an immutable quiz definition served by the content source.
type Quiz struct {
	ID               string     `json:"id" yaml:"id" validate:"required"`
	Title            string     `json:"title" yaml:"title"`
	Description      string     `json:"description,omitempty" yaml:"description"`
	Category         string     `json:"category" yaml:"category"`
	Difficulty       string     `json:"difficulty" yaml:"difficulty"`
	TimeLimitSeconds int        `json:"timeLimit" yaml:"timeLimit" validate:"gt=0"`
	Questions        []Question `json:"questions" yaml:"questions" validate:"required,min=1,unique=ID,dive"`
}

// TimeLimit is the duration an attempt stays open.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Question looks up a question by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// ApplyDefaults fills values that older content rows leave empty.
func (q *Quiz) ApplyDefaults() {
	if q.TimeLimitSeconds == 0 {
		q.TimeLimitSeconds = DefaultTimeLimitSeconds
	}
	for i := range q.Questions {
		if q.Questions[i].Points == 0 {
			q.Questions[i].Points = DefaultPoints
		}
		if q.Questions[i].Type == "" {
			q.Questions[i].Type = QuestionMultipleChoice
		}
	}
}

var validate = validator.New()

// Validate checks the definition invariants: unique question ids and positive points.
func (q Quiz) Validate() error {
	if err := validate.Struct(q); err != nil {
		return InvalidArgument("quiz %q: %v", q.ID, err)
	}
	return nil
}

// AttemptState is the lifecycle state of an attempt.
type AttemptState string

const (
	AttemptPending   AttemptState = "pending"
	AttemptFinalized AttemptState = "finalized"
	AttemptExpired   AttemptState = "expired"
)

// Terminal reports whether the state accepts no further changes.
func (s AttemptState) Terminal() bool {
	return s == AttemptFinalized || s == AttemptExpired
}

// QuestionResult is one row of a scoring breakdown.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
}

// Score is the output of the scoring engine.
type Score struct {
	Total     int              `json:"total"`
	Max       int              `json:"max"`
	Breakdown []QuestionResult `json:"breakdown"`
}

// AttemptResult is the locked-in outcome of a terminal attempt.
type AttemptResult struct {
	Score       int              `json:"score"`
	MaxScore    int              `json:"maxScore"`
	Breakdown   []QuestionResult `json:"breakdown"`
	State       AttemptState     `json:"state"`
	CompletedAt time.Time        `json:"completedAt"`
}

// Attempt is one user's timed run through a quiz.
type Attempt struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	QuizID    string            `json:"quizId"`
	State     AttemptState      `json:"state"`
	StartedAt time.Time         `json:"startedAt"`
	Deadline  time.Time         `json:"deadline"`
	Answers   map[string]string `json:"answers"`
	Result    *AttemptResult    `json:"result,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
	// RecordFailed marks a terminal attempt whose leaderboard notification
	// failed; FinalizeAttempt replays it.
	RecordFailed bool `json:"recordFailed,omitempty"`
}

// Expired reports whether the deadline has passed at now.
func (a Attempt) Expired(now time.Time) bool {
	return !now.Before(a.Deadline)
}

// Clone returns a deep copy so callers never share the answers map.
func (a Attempt) Clone() Attempt {
	out := a
	out.Answers = make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	if a.Result != nil {
		res := *a.Result
		res.Breakdown = append([]QuestionResult(nil), a.Result.Breakdown...)
		out.Result = &res
	}
	return out
}

// ScoreRecord is what the attempt manager reports to the leaderboard once per attempt.
type ScoreRecord struct {
	AttemptID   string
	UserID      string
	QuizID      string
	Score       int
	CompletedAt time.Time
}

// LeaderboardEntry is a user's best result for a quiz, or their aggregate when QuizID is empty.
type LeaderboardEntry struct {
	Rank          int       `json:"rank,omitempty"`
	UserID        string    `json:"userId"`
	QuizID        string    `json:"quizId,omitempty"`
	Score         int       `json:"score"`
	CompletedAt   time.Time `json:"completedAt"`
	Attempts      int       `json:"attempts"`
	QuizzesPlayed int       `json:"quizzesPlayed,omitempty"`
}

// Leaderboard captures an ordered page of a quiz board (or the global one).
type Leaderboard struct {
	QuizID    string             `json:"quizId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// UserStats summarises a user's finalized play across all quizzes.
type UserStats struct {
	UserID          string    `json:"userId"`
	TotalScore      int       `json:"totalScore"`
	QuizzesPlayed   int       `json:"quizzesPlayed"`
	Attempts        int       `json:"attempts"`
	AverageScore    float64   `json:"averageScore"`
	LastCompletedAt time.Time `json:"lastCompletedAt,omitempty"`
}
