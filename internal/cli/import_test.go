package cli

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
	redisstore "quiz-attempt-service/internal/infra/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingSaver struct {
	saved []string
	fail  string
}

func (s *recordingSaver) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	if quiz.ID == s.fail {
		return errors.New("insert failed")
	}
	s.saved = append(s.saved, quiz.ID)
	return nil
}

// memoryContent keeps the last saved version of each quiz.
type memoryContent struct {
	quizzes map[string]domain.Quiz
}

func (m *memoryContent) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := m.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (m *memoryContent) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	m.quizzes[quiz.ID] = quiz
	return nil
}

func catalogQuiz(id, title string) domain.Quiz {
	return domain.Quiz{
		ID:               id,
		Title:            title,
		TimeLimitSeconds: 60,
		Questions:        []domain.Question{{ID: "q1", CorrectAnswer: "A", Points: 1}},
	}
}

func TestImportQuizzesSavesInIDOrder(t *testing.T) {
	saver := &recordingSaver{}
	n, err := importQuizzes(context.Background(), saver, nil, map[string]domain.Quiz{
		"b": catalogQuiz("b", "B"),
		"a": catalogQuiz("a", "A"),
		"c": catalogQuiz("c", "C"),
	})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 imported, got %d (%v)", n, err)
	}
	if !reflect.DeepEqual(saver.saved, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected order %v", saver.saved)
	}

	saver = &recordingSaver{fail: "b"}
	n, err = importQuizzes(context.Background(), saver, nil, map[string]domain.Quiz{
		"a": catalogQuiz("a", "A"),
		"b": catalogQuiz("b", "B"),
	})
	if err == nil || n != 1 {
		t.Fatalf("expected failure after 1 quiz, got %d (%v)", n, err)
	}
}

func TestImportQuizzesEvictsCachedDefinitions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	content := &memoryContent{quizzes: map[string]domain.Quiz{"geo-1": catalogQuiz("geo-1", "old title")}}
	repo := redisstore.NewQuizRepository(client, content, time.Minute)

	if cached, err := repo.GetQuiz(ctx, "geo-1"); err != nil || cached.Title != "old title" {
		t.Fatalf("warm cache: %+v (%v)", cached, err)
	}

	if _, err := importQuizzes(ctx, content, repo, map[string]domain.Quiz{"geo-1": catalogQuiz("geo-1", "new title")}); err != nil {
		t.Fatalf("import: %v", err)
	}

	fresh, err := repo.GetQuiz(ctx, "geo-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if fresh.Title != "new title" {
		t.Fatalf("expected the imported definition, got %q", fresh.Title)
	}
}
