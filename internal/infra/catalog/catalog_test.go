package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quiz-attempt-service/internal/domain"
)

const sample = `
quizzes:
  - id: geo-1
    title: Capitals
    category: Geography
    difficulty: Easy
    timeLimit: 60
    questions:
      - id: q1
        prompt: Capital of France?
        options:
          - {id: A, text: Paris, correct: true}
          - {id: B, text: Lyon}
        points: 5
      - id: q2
        type: text
        prompt: Capital of Italy?
        correctAnswer: Rome
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	quizzes, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	quiz, ok := quizzes["geo-1"]
	if !ok {
		t.Fatalf("expected geo-1 in catalog, got %v", quizzes)
	}
	if quiz.TimeLimitSeconds != 60 {
		t.Fatalf("expected 60s limit, got %d", quiz.TimeLimitSeconds)
	}
	if quiz.Questions[0].Type != domain.QuestionMultipleChoice {
		t.Fatalf("expected default type, got %q", quiz.Questions[0].Type)
	}
	if quiz.Questions[1].Points != domain.DefaultPoints {
		t.Fatalf("expected default points, got %d", quiz.Questions[1].Points)
	}
	if quiz.Questions[0].Expected() != "A" || quiz.Questions[1].Expected() != "Rome" {
		t.Fatalf("unexpected answers %q %q", quiz.Questions[0].Expected(), quiz.Questions[1].Expected())
	}
}

func TestParseRejectsDuplicateQuestionIDs(t *testing.T) {
	_, err := Parse([]byte(`
quizzes:
  - id: bad
    questions:
      - {id: q1, correctAnswer: A}
      - {id: q1, correctAnswer: B}
`))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestParseRejectsDuplicateQuizIDs(t *testing.T) {
	_, err := Parse([]byte(`
quizzes:
  - id: same
    questions: [{id: q1, correctAnswer: A}]
  - id: same
    questions: [{id: q1, correctAnswer: A}]
`))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
