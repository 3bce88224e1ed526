package app

import (
	"errors"
	"log"

	"quiz-attempt-service/internal/domain"
)

// internal passes taxonomy errors through and masks everything else.
func internal(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindInternal || errors.Is(err, domain.ErrInternal) {
		return err
	}
	log.Printf("internal error: %v", err)
	return domain.Internal(err)
}
