package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// pendingIndex is the partial unique index that allows one pending attempt per (user, quiz).
const pendingIndex = "attempts_one_pending"

const attemptColumns = `id, user_id, quiz_id, state, started_at, deadline, answers, result, updated_at, record_failed`

// AttemptStore persists attempts in the attempts table. Updates lock the row
// with SELECT ... FOR UPDATE inside a transaction.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	answers, result, err := encodeAttempt(attempt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)`,
		attempt.ID, attempt.UserID, attempt.QuizID, string(attempt.State),
		attempt.StartedAt, attempt.Deadline, answers, result, attempt.UpdatedAt, attempt.RecordFailed)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == pendingIndex {
		return domain.ErrAttemptInProgress
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, attemptID))
}

func (s *AttemptStore) FindPending(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE user_id=$1 AND quiz_id=$2 AND state=$3`, userID, quizID, string(domain.AttemptPending)))
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE user_id=$1 ORDER BY started_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := []domain.Attempt{}
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error) {
	var out domain.Attempt
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		current, err := scanAttempt(tx.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts
			WHERE id=$1 FOR UPDATE`, attemptID))
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		answers, result, err := encodeAttempt(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE attempts
			SET state=$2, answers=$3::jsonb, result=$4::jsonb, updated_at=$5, record_failed=$6
			WHERE id=$1`, attemptID, string(next.State), answers, result, next.UpdatedAt, next.RecordFailed)
		if err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a               domain.Attempt
		state           string
		answers, result []byte
	)
	err := row.Scan(&a.ID, &a.UserID, &a.QuizID, &state, &a.StartedAt, &a.Deadline, &answers, &result, &a.UpdatedAt, &a.RecordFailed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	a.State = domain.AttemptState(state)
	a.Answers = make(map[string]string)
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return domain.Attempt{}, fmt.Errorf("decode answers: %w", err)
		}
	}
	if len(result) > 0 {
		a.Result = &domain.AttemptResult{}
		if err := json.Unmarshal(result, a.Result); err != nil {
			return domain.Attempt{}, fmt.Errorf("decode result: %w", err)
		}
	}
	return a, nil
}

// encodeAttempt renders the JSONB columns; result is nil (SQL NULL) until the attempt is terminal.
func encodeAttempt(a domain.Attempt) (string, *string, error) {
	answers := a.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", nil, fmt.Errorf("marshal answers: %w", err)
	}
	if a.Result == nil {
		return string(data), nil, nil
	}
	res, err := json.Marshal(a.Result)
	if err != nil {
		return "", nil, fmt.Errorf("marshal result: %w", err)
	}
	result := string(res)
	return string(data), &result, nil
}
