package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (postgres, YAML catalog).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz definitions with a jittered TTL in front of a loader.
// Definitions are validated once, when they enter the cache.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
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

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a loader backed by an in-memory map (catalog files, tests, demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		quiz.Questions = append([]domain.Question(nil), quiz.Questions...)
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
