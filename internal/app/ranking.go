package app

import (
	"sort"

	"quiz-attempt-service/internal/domain"
)

// Outranks orders entries by score desc, then earlier completion, then user id.
func Outranks(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CompletedAt.Equal(b.CompletedAt) {
		return a.CompletedAt.Before(b.CompletedAt)
	}
	return a.UserID < b.UserID
}

// SortEntries sorts in place using Outranks.
func SortEntries(entries []domain.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return Outranks(entries[i], entries[j])
	})
}

// Page truncates a sorted slice to n entries and assigns 1-based ranks.
func Page(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	if n < len(entries) {
		entries = entries[:n]
	}
	out := make([]domain.LeaderboardEntry, len(entries))
	for i, e := range entries {
		e.Rank = i + 1
		out[i] = e
	}
	return out
}

// MergeScore folds a finalized attempt into the user's entry for the quiz.
// found is false when the user has no entry yet. The returned bool reports
// whether the best result changed: a strictly higher score, or the same score
// completed earlier.
func MergeScore(entry domain.LeaderboardEntry, found bool, rec domain.ScoreRecord) (domain.LeaderboardEntry, bool) {
	if !found {
		return domain.LeaderboardEntry{
			UserID:      rec.UserID,
			QuizID:      rec.QuizID,
			Score:       rec.Score,
			CompletedAt: rec.CompletedAt,
			Attempts:    1,
		}, true
	}
	entry.Attempts++
	improved := rec.Score > entry.Score ||
		(rec.Score == entry.Score && rec.CompletedAt.Before(entry.CompletedAt))
	if improved {
		entry.Score = rec.Score
		entry.CompletedAt = rec.CompletedAt
	}
	return entry, improved
}

// MergeGlobal updates the user's global aggregate after MergeScore turned
// prev (found tells whether it existed) into next. The global score is the sum
// of the user's best score on every quiz; CompletedAt is when that total was
// last reached.
func MergeGlobal(global domain.LeaderboardEntry, prev domain.LeaderboardEntry, found bool, next domain.LeaderboardEntry, improved bool) domain.LeaderboardEntry {
	global.UserID = next.UserID
	global.QuizID = ""
	global.Attempts++
	if !found {
		global.QuizzesPlayed++
		prev.Score = 0
	}
	if improved {
		global.Score += next.Score - prev.Score
		if next.CompletedAt.After(global.CompletedAt) {
			global.CompletedAt = next.CompletedAt
		}
	}
	return global
}

// StatsFromEntry derives user stats from the global aggregate.
func StatsFromEntry(userID string, global domain.LeaderboardEntry) domain.UserStats {
	stats := domain.UserStats{
		UserID:          userID,
		TotalScore:      global.Score,
		QuizzesPlayed:   global.QuizzesPlayed,
		Attempts:        global.Attempts,
		LastCompletedAt: global.CompletedAt,
	}
	if global.QuizzesPlayed > 0 {
		stats.AverageScore = float64(global.Score) / float64(global.QuizzesPlayed)
	}
	return stats
}
