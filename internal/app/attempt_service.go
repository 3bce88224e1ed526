package app

import (
	"context"
	"errors"
	"log"
	"sort"

	"quiz-attempt-service/internal/domain"

	"github.com/google/uuid"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptRepository stores attempts. Implementations own the unique
// (user, quiz) index over pending attempts: Create fails with
// domain.ErrAttemptInProgress when one exists, and Update releases the index
// entry when an attempt leaves the pending state.
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.Attempt) error
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	FindPending(ctx context.Context, userID, quizID string) (domain.Attempt, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Attempt, error)
	// Update runs fn on the current attempt and persists the result atomically
	// with respect to other updates of the same attempt. If fn returns an error
	// nothing is written and the error is returned as is. fn may run more
	// than once.
	Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error)
}

// ScoreRecorder receives one notification per terminal attempt.
type ScoreRecorder interface {
	Record(ctx context.Context, rec domain.ScoreRecord) error
}

// AttemptService runs the attempt state machine: pending -> finalized | expired.
// Expiry is lazy: every entry point checks the deadline before acting.
type AttemptService struct {
	quizzes  QuizRepository
	attempts AttemptRepository
	recorder ScoreRecorder
	clock    Clock
	newID    func() string
}

// Option customises an AttemptService.
type Option func(*AttemptService)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(s *AttemptService) { s.clock = clock }
}

// WithIDGenerator replaces uuid-based attempt ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *AttemptService) { s.newID = gen }
}

func NewAttemptService(quizzes QuizRepository, attempts AttemptRepository, recorder ScoreRecorder, opts ...Option) *AttemptService {
	s := &AttemptService{
		quizzes:  quizzes,
		attempts: attempts,
		recorder: recorder,
		clock:    SystemClock,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAttempt opens a pending attempt with deadline = now + quiz time limit.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	if userID == "" || quizID == "" {
		return domain.Attempt{}, domain.InvalidArgument("user id and quiz id are required")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, internal(err)
	}

	// A second pass happens only when the blocking attempt turned out to be
	// past its deadline and was closed.
	for pass := 0; pass < 2; pass++ {
		now := s.clock()
		attempt := domain.Attempt{
			ID:        s.newID(),
			UserID:    userID,
			QuizID:    quizID,
			State:     domain.AttemptPending,
			StartedAt: now,
			Deadline:  now.Add(quiz.TimeLimit()),
			Answers:   make(map[string]string),
			UpdatedAt: now,
		}
		err := s.attempts.Create(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, domain.ErrAttemptInProgress) {
			return domain.Attempt{}, internal(err)
		}

		existing, err := s.attempts.FindPending(ctx, userID, quizID)
		if errors.Is(err, domain.ErrAttemptNotFound) {
			continue
		}
		if err != nil {
			return domain.Attempt{}, internal(err)
		}
		if !existing.Expired(s.clock()) {
			return domain.Attempt{}, domain.ErrAttemptInProgress
		}
		if _, err := s.finalize(ctx, existing); err != nil {
			return domain.Attempt{}, err
		}
	}
	return domain.Attempt{}, domain.ErrAttemptInProgress
}

// SubmitAnswer upserts the answer for questionID. A submission at or after the
// deadline closes the attempt as expired and fails with ErrAttemptExpired.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID, questionID, value string) error {
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := checkOpen(attempt); err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return internal(err)
	}
	if _, ok := quiz.Question(questionID); !ok {
		return domain.ErrQuestionNotFound
	}

	var expired bool
	_, err = s.attempts.Update(ctx, attemptID, func(a *domain.Attempt) error {
		expired = false
		if err := checkOpen(*a); err != nil {
			return err
		}
		now := s.clock()
		if a.Expired(now) {
			expired = true
			return nil
		}
		if a.Answers == nil {
			a.Answers = make(map[string]string)
		}
		a.Answers[questionID] = value
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return internal(err)
	}
	if expired {
		if _, err := s.finalize(ctx, attempt); err != nil {
			return err
		}
		return domain.ErrAttemptExpired
	}
	return nil
}

// FinalizeAttempt scores the attempt once. Calls on a terminal attempt return
// the stored result without scoring again, replaying a leaderboard
// notification that failed earlier.
func (s *AttemptService) FinalizeAttempt(ctx context.Context, attemptID string) (domain.AttemptResult, error) {
	attempt, err := s.get(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	switch {
	case !attempt.State.Terminal():
		attempt, err = s.finalize(ctx, attempt)
	case attempt.RecordFailed:
		attempt, err = s.notify(ctx, attempt)
	}
	if attempt.Result == nil {
		return domain.AttemptResult{}, err
	}
	return *attempt.Result, err
}

// GetAttempt reads an attempt, closing it first if its deadline has passed.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := s.get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.expireIfDue(ctx, attempt)
}

// ActiveAttempt returns the user's pending attempt for the quiz, if any.
func (s *AttemptService) ActiveAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	attempt, err := s.attempts.FindPending(ctx, userID, quizID)
	if err != nil {
		return domain.Attempt{}, internal(err)
	}
	attempt, err = s.expireIfDue(ctx, attempt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.State != domain.AttemptPending {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// UserAttempts lists a user's attempts, newest first.
func (s *AttemptService) UserAttempts(ctx context.Context, userID string) ([]domain.Attempt, error) {
	if userID == "" {
		return nil, domain.InvalidArgument("user id is required")
	}
	attempts, err := s.attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}
	for i := range attempts {
		attempts[i], err = s.expireIfDue(ctx, attempts[i])
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
	return attempts, nil
}

func (s *AttemptService) get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	if attemptID == "" {
		return domain.Attempt{}, domain.InvalidArgument("attempt id is required")
	}
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, internal(err)
	}
	return attempt, nil
}

func (s *AttemptService) expireIfDue(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	if attempt.State != domain.AttemptPending || !attempt.Expired(s.clock()) {
		return attempt, nil
	}
	return s.finalize(ctx, attempt)
}

// finalize scores a pending attempt and moves it to finalized, or to expired
// when the deadline has passed. Only the caller whose update performed the
// transition notifies the recorder. The returned attempt is valid even when
// the notification fails.
func (s *AttemptService) finalize(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, internal(err)
	}

	var transitioned bool
	updated, err := s.attempts.Update(ctx, attempt.ID, func(a *domain.Attempt) error {
		transitioned = false
		if a.State.Terminal() {
			return nil
		}
		now := s.clock()
		state, completedAt := domain.AttemptFinalized, now
		if a.Expired(now) {
			state, completedAt = domain.AttemptExpired, a.Deadline
		}
		score := Score(quiz, a.Answers)
		a.State = state
		a.Result = &domain.AttemptResult{
			Score:       score.Total,
			MaxScore:    score.Max,
			Breakdown:   score.Breakdown,
			State:       state,
			CompletedAt: completedAt,
		}
		a.UpdatedAt = now
		transitioned = true
		return nil
	})
	if err != nil {
		return domain.Attempt{}, internal(err)
	}
	if !transitioned {
		return updated, nil
	}

	return s.notify(ctx, updated)
}

// notify reports a terminal attempt to the recorder. A failure is persisted
// on the attempt so a later FinalizeAttempt can replay it; the recorder
// ignores attempts it has already applied.
func (s *AttemptService) notify(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	rec := domain.ScoreRecord{
		AttemptID:   attempt.ID,
		UserID:      attempt.UserID,
		QuizID:      attempt.QuizID,
		Score:       attempt.Result.Score,
		CompletedAt: attempt.Result.CompletedAt,
	}
	recordErr := s.recorder.Record(ctx, rec)
	if recordErr != nil {
		log.Printf("record attempt %s on leaderboard: %v", attempt.ID, recordErr)
	}
	if recordErr == nil && !attempt.RecordFailed {
		return attempt, nil
	}

	failed := recordErr != nil
	marked, err := s.attempts.Update(ctx, attempt.ID, func(a *domain.Attempt) error {
		a.RecordFailed = failed
		return nil
	})
	if err != nil {
		log.Printf("mark attempt %s record state: %v", attempt.ID, err)
		marked = attempt
	}
	return marked, internal(recordErr)
}

func checkOpen(a domain.Attempt) error {
	switch a.State {
	case domain.AttemptPending:
		return nil
	case domain.AttemptExpired:
		return domain.ErrAttemptExpired
	default:
		return domain.ErrAttemptClosed
	}
}
