package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// AttemptStore keeps attempts in Redis. Keys (every id segment escaped with keyPart):
//
//	attempt:{id}                     JSON attempt, no TTL (attempts are history)
//	attempt:pending:{user}:{quiz}    id of the pending attempt for (user, quiz)
//	attempt:user:{user}              sorted set of attempt ids by start time
//
// Writes use WATCH/MULTI so concurrent updates of one attempt never lose data.
type AttemptStore struct {
	client     *redis.Client
	maxRetries int
}

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client, maxRetries: defaultMaxRetries}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	pending := s.pendingKey(attempt.UserID, attempt.QuizID)
	txf := func(tx *redis.Tx) error {
		if attempt.State == domain.AttemptPending {
			n, err := tx.Exists(ctx, pending).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return domain.ErrAttemptInProgress
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if attempt.State == domain.AttemptPending {
				pipe.Set(ctx, pending, attempt.ID, 0)
			}
			pipe.Set(ctx, s.attemptKey(attempt.ID), data, 0)
			pipe.ZAdd(ctx, s.userKey(attempt.UserID), redis.Z{
				Score:  float64(attempt.StartedAt.UnixMilli()),
				Member: attempt.ID,
			})
			return nil
		})
		return err
	}
	return watchWithRetry(ctx, s.client, s.maxRetries, txf, pending)
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var attempt domain.Attempt
	found, err := readJSON(ctx, s.client, s.attemptKey(attemptID), &attempt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !found {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) FindPending(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	id, err := s.client.Get(ctx, s.pendingKey(userID, quizID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.Get(ctx, id)
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID string) ([]domain.Attempt, error) {
	ids, err := s.client.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Attempt{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.attemptKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Attempt](values)
}

func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error) {
	key := s.attemptKey(attemptID)
	var out domain.Attempt
	txf := func(tx *redis.Tx) error {
		var current domain.Attempt
		found, err := readJSON(ctx, tx, key, &current)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrAttemptNotFound
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal attempt: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.State == domain.AttemptPending && next.State != domain.AttemptPending {
				pipe.Del(ctx, s.pendingKey(next.UserID, next.QuizID))
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}
	if err := watchWithRetry(ctx, s.client, s.maxRetries, txf, key); err != nil {
		return domain.Attempt{}, err
	}
	return out, nil
}

func (s *AttemptStore) attemptKey(id string) string {
	return "attempt:" + keyPart(id)
}

func (s *AttemptStore) pendingKey(userID, quizID string) string {
	return "attempt:pending:" + keyPart(userID) + ":" + keyPart(quizID)
}

func (s *AttemptStore) userKey(userID string) string {
	return "attempt:user:" + keyPart(userID)
}
