package app_test

import (
	"context"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

var epoch = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to epoch + offset.
func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(offset)
}

// countingRecorder wraps a recorder and counts notifications.
type countingRecorder struct {
	next app.ScoreRecorder
	err  error

	mu      sync.Mutex
	records []domain.ScoreRecord
}

func (r *countingRecorder) Record(ctx context.Context, rec domain.ScoreRecord) error {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.next == nil {
		return nil
	}
	return r.next.Record(ctx, rec)
}

func (r *countingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// q1Quiz is a quiz with two questions worth 5 and 10 points, answers "A" and "B", 60s limit.
func q1Quiz() domain.Quiz {
	return domain.Quiz{
		ID:               "Q1",
		Title:            "Scenario quiz",
		Category:         "General Knowledge",
		Difficulty:       "Easy",
		TimeLimitSeconds: 60,
		Questions: []domain.Question{
			{
				ID:   "1",
				Type: domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: "A", Text: "right", Correct: true},
					{ID: "B", Text: "wrong"},
				},
				Points: 5,
			},
			{
				ID:   "2",
				Type: domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: "A", Text: "wrong"},
					{ID: "B", Text: "right", Correct: true},
				},
				Points: 10,
			},
		},
	}
}

func textQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "T1",
		TimeLimitSeconds: 120,
		Questions: []domain.Question{
			{ID: "capital", Type: domain.QuestionText, CorrectAnswer: "Buenos Aires", Points: 3},
		},
	}
}

type fixture struct {
	clock       *fakeClock
	recorder    *countingRecorder
	attempts    *app.AttemptService
	leaderboard *app.LeaderboardService
	store       *memory.AttemptStore
}

func newFixture() *fixture {
	clock := newFakeClock()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"Q1": q1Quiz(),
		"T1": textQuiz(),
	}), 5*time.Minute)
	leaderboard := app.NewLeaderboardService(memory.NewLeaderboard(), app.NewHub(), app.WithLeaderboardClock(clock.Now))
	recorder := &countingRecorder{next: leaderboard}
	store := memory.NewAttemptStore()
	return &fixture{
		clock:       clock,
		recorder:    recorder,
		store:       store,
		leaderboard: leaderboard,
		attempts:    app.NewAttemptService(quizzes, store, recorder, app.WithClock(clock.Now)),
	}
}
