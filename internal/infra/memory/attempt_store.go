package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// Each attempt has its own lock so updates to different attempts never wait
// on each other.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*attemptSlot
	pending  map[pendingKey]string
	byUser   map[string][]string
}

type attemptSlot struct {
	mu      sync.Mutex
	attempt domain.Attempt
}

type pendingKey struct {
	userID string
	quizID string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*attemptSlot),
		pending:  make(map[pendingKey]string),
		byUser:   make(map[string][]string),
	}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pendingKey{userID: attempt.UserID, quizID: attempt.QuizID}
	if attempt.State == domain.AttemptPending {
		if _, ok := s.pending[key]; ok {
			return domain.ErrAttemptInProgress
		}
		s.pending[key] = attempt.ID
	}
	s.attempts[attempt.ID] = &attemptSlot{attempt: attempt.Clone()}
	s.byUser[attempt.UserID] = append(s.byUser[attempt.UserID], attempt.ID)
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.Attempt, error) {
	slot, ok := s.slot(attemptID)
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.attempt.Clone(), nil
}

func (s *AttemptStore) FindPending(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	s.mu.RLock()
	id, ok := s.pending[pendingKey{userID: userID, quizID: quizID}]
	s.mu.RUnlock()
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.Get(ctx, id)
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.byUser[userID]...)
	s.mu.RUnlock()

	out := make([]domain.Attempt, 0, len(ids))
	for _, id := range ids {
		attempt, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, nil
}

func (s *AttemptStore) Update(_ context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error) {
	slot, ok := s.slot(attemptID)
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	next := slot.attempt.Clone()
	if err := fn(&next); err != nil {
		return domain.Attempt{}, err
	}
	if slot.attempt.State == domain.AttemptPending && next.State != domain.AttemptPending {
		s.mu.Lock()
		key := pendingKey{userID: next.UserID, quizID: next.QuizID}
		if s.pending[key] == attemptID {
			delete(s.pending, key)
		}
		s.mu.Unlock()
	}
	slot.attempt = next
	return next.Clone(), nil
}

func (s *AttemptStore) slot(attemptID string) (*attemptSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.attempts[attemptID]
	return slot, ok
}
