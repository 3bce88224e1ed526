package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Leaderboard is a Redis-backed app.LeaderboardStore. Keys (id segments escaped with keyPart):
//
//	leaderboard:quiz:{quiz}:entry:{user}   JSON best entry
//	leaderboard:quiz:{quiz}:ranking        ZSET user -> best score
//	leaderboard:global:entry:{user}        JSON aggregate
//	leaderboard:global:ranking             ZSET user -> summed score
//	leaderboard:recorded:{attempt}         marker, makes Record idempotent
//
// A record watches only the user's two entries and the attempt marker, so
// different users never contend.
type Leaderboard struct {
	client     *redis.Client
	maxRetries int
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client, maxRetries: defaultMaxRetries}
}

func (l *Leaderboard) Record(ctx context.Context, rec domain.ScoreRecord) (bool, error) {
	entryKey := l.entryKey(rec.QuizID, rec.UserID)
	globalKey := l.globalEntryKey(rec.UserID)
	marker := l.recordedKey(rec.AttemptID)

	var improved bool
	txf := func(tx *redis.Tx) error {
		improved = false
		seen, err := tx.Exists(ctx, marker).Result()
		if err != nil {
			return err
		}
		if seen > 0 {
			return nil
		}

		var prev, global domain.LeaderboardEntry
		found, err := readJSON(ctx, tx, entryKey, &prev)
		if err != nil {
			return err
		}
		if _, err := readJSON(ctx, tx, globalKey, &global); err != nil {
			return err
		}
		next, better := app.MergeScore(prev, found, rec)
		global = app.MergeGlobal(global, prev, found, next, better)

		nextData, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		globalData, err := json.Marshal(global)
		if err != nil {
			return fmt.Errorf("marshal global entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, marker, "1", 0)
			pipe.Set(ctx, entryKey, nextData, 0)
			pipe.ZAdd(ctx, l.rankingKey(rec.QuizID), redis.Z{Score: float64(next.Score), Member: rec.UserID})
			pipe.Set(ctx, globalKey, globalData, 0)
			pipe.ZAdd(ctx, l.globalRankingKey(), redis.Z{Score: float64(global.Score), Member: rec.UserID})
			return nil
		})
		if err != nil {
			return err
		}
		improved = better
		return nil
	}
	if err := watchWithRetry(ctx, l.client, l.maxRetries, txf, entryKey, globalKey, marker); err != nil {
		return false, err
	}
	return improved, nil
}

func (l *Leaderboard) Top(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	return l.top(ctx, l.rankingKey(quizID), func(userID string) string {
		return l.entryKey(quizID, userID)
	}, n)
}

func (l *Leaderboard) GlobalTop(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	return l.top(ctx, l.globalRankingKey(), l.globalEntryKey, n)
}

func (l *Leaderboard) UserEntry(ctx context.Context, userID string) (domain.LeaderboardEntry, bool, error) {
	var entry domain.LeaderboardEntry
	found, err := readJSON(ctx, l.client, l.globalEntryKey(userID), &entry)
	return entry, found, err
}

// top reads the n best members by score plus every member tied with the
// lowest of them, then applies the full ordering (completion time, user id)
// that the sorted set cannot express.
func (l *Leaderboard) top(ctx context.Context, ranking string, entryKey func(string) string, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	head, err := l.client.ZRevRangeWithScores(ctx, ranking, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	floor := head[len(head)-1].Score
	users, err := l.client.ZRangeByScore(ctx, ranking, &redis.ZRangeBy{
		Min: strconv.FormatFloat(floor, 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(users))
	for i, userID := range users {
		keys[i] = entryKey(userID)
	}
	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	entries, err := decodeAll[domain.LeaderboardEntry](values)
	if err != nil {
		return nil, err
	}
	app.SortEntries(entries)
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

func (l *Leaderboard) entryKey(quizID, userID string) string {
	return "leaderboard:quiz:" + keyPart(quizID) + ":entry:" + keyPart(userID)
}

func (l *Leaderboard) rankingKey(quizID string) string {
	return "leaderboard:quiz:" + keyPart(quizID) + ":ranking"
}

func (l *Leaderboard) globalEntryKey(userID string) string {
	return "leaderboard:global:entry:" + keyPart(userID)
}

func (l *Leaderboard) globalRankingKey() string {
	return "leaderboard:global:ranking"
}

func (l *Leaderboard) recordedKey(attemptID string) string {
	return "leaderboard:recorded:" + keyPart(attemptID)
}
