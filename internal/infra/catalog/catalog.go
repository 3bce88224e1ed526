// Package catalog reads quiz definitions from a YAML file. It is the content
// source used when no database is configured.
package catalog

import (
	"fmt"
	"os"

	"quiz-attempt-service/internal/domain"

	"gopkg.in/yaml.v3"
)

type document struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// Load reads and validates the catalog at path.
func Load(path string) (map[string]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a catalog, applies content defaults and validates every quiz.
func Parse(data []byte) (map[string]domain.Quiz, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	out := make(map[string]domain.Quiz, len(doc.Quizzes))
	for _, quiz := range doc.Quizzes {
		quiz.ApplyDefaults()
		if err := quiz.Validate(); err != nil {
			return nil, err
		}
		if _, dup := out[quiz.ID]; dup {
			return nil, domain.InvalidArgument("duplicate quiz id %q", quiz.ID)
		}
		out[quiz.ID] = quiz
	}
	return out, nil
}
