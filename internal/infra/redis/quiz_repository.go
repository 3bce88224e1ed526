package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (e.g., postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches validated quiz definitions in Redis and falls back to a
// loader on cache miss. Definitions are stored as JSON:
//
//	SET quiz:{quizID}:definition <json> EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.ApplyDefaults()
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, err
		}

		data, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("marshal quiz: %w", err)
		}
		// a failed cache write only costs a reload later
		if err := r.client.Set(ctx, r.key(quizID), data, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache quiz %s: %v", quizID, err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate removes the cached definition.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, r.key(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	data, err := r.client.Get(ctx, r.key(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read cached quiz %s: %v", quizID, err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(quizID string) string {
	return "quiz:" + keyPart(quizID) + ":definition"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
