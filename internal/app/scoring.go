package app

import (
	"strings"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Score grades answers against the quiz. It is pure: no I/O, no clock, and the
// result does not depend on map iteration order. Answers for ids the quiz does
// not contain are ignored; questions without an answer score zero.
func Score(quiz domain.Quiz, answers map[string]string) domain.Score {
	out := domain.Score{Breakdown: make([]domain.QuestionResult, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		out.Max += q.Points
		value, ok := answers[q.ID]
		correct := ok && matches(q, value)
		row := domain.QuestionResult{QuestionID: q.ID, Correct: correct}
		if correct {
			row.Awarded = q.Points
			out.Total += q.Points
		}
		out.Breakdown = append(out.Breakdown, row)
	}
	return out
}

func matches(q domain.Question, value string) bool {
	expected := q.Expected()
	if expected == "" {
		return false
	}
	if q.FreeText() {
		return normalizeText(value) == normalizeText(expected)
	}
	return value == expected
}

// normalizeText makes free-text comparison insensitive to case, Unicode
// composition and runs of whitespace.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
