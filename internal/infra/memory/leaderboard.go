package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Leaderboard is an in-memory app.LeaderboardStore. Every quiz has its own
// board and lock; the global board is locked only while its aggregate is
// rewritten.
type Leaderboard struct {
	mu     sync.RWMutex
	boards map[string]*board
	global *board

	recordedMu sync.Mutex
	recorded   map[string]struct{}
}

// board keeps one entry per user plus a slice kept sorted by app.Outranks.
type board struct {
	mu      sync.RWMutex
	entries map[string]domain.LeaderboardEntry
	ranked  []domain.LeaderboardEntry
}

func newBoard() *board {
	return &board{entries: make(map[string]domain.LeaderboardEntry)}
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		boards:   make(map[string]*board),
		global:   newBoard(),
		recorded: make(map[string]struct{}),
	}
}

func (l *Leaderboard) Record(_ context.Context, rec domain.ScoreRecord) (bool, error) {
	if !l.markRecorded(rec.AttemptID) {
		return false, nil
	}

	b := l.board(rec.QuizID)
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, found := b.entries[rec.UserID]
	next, improved := app.MergeScore(prev, found, rec)
	b.put(prev, found, next)

	l.global.mu.Lock()
	g, gFound := l.global.entries[rec.UserID]
	l.global.put(g, gFound, app.MergeGlobal(g, prev, found, next, improved))
	l.global.mu.Unlock()

	return improved, nil
}

func (l *Leaderboard) Top(_ context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	b, ok := l.boards[quizID]
	l.mu.RUnlock()
	if !ok {
		return []domain.LeaderboardEntry{}, nil
	}
	return b.top(n), nil
}

func (l *Leaderboard) GlobalTop(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	return l.global.top(n), nil
}

func (l *Leaderboard) UserEntry(_ context.Context, userID string) (domain.LeaderboardEntry, bool, error) {
	l.global.mu.RLock()
	defer l.global.mu.RUnlock()
	entry, ok := l.global.entries[userID]
	return entry, ok, nil
}

func (l *Leaderboard) markRecorded(attemptID string) bool {
	l.recordedMu.Lock()
	defer l.recordedMu.Unlock()
	if _, ok := l.recorded[attemptID]; ok {
		return false
	}
	l.recorded[attemptID] = struct{}{}
	return true
}

func (l *Leaderboard) board(quizID string) *board {
	l.mu.RLock()
	b, ok := l.boards[quizID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.boards[quizID]; ok {
		return b
	}
	b = newBoard()
	l.boards[quizID] = b
	return b
}

// put replaces prev (when found) with next, keeping ranked sorted. Callers hold b.mu.
func (b *board) put(prev domain.LeaderboardEntry, found bool, next domain.LeaderboardEntry) {
	if found {
		i := b.position(prev)
		if i < len(b.ranked) && b.ranked[i].UserID == prev.UserID {
			b.ranked = append(b.ranked[:i], b.ranked[i+1:]...)
		}
	}
	i := b.position(next)
	b.ranked = append(b.ranked, domain.LeaderboardEntry{})
	copy(b.ranked[i+1:], b.ranked[i:])
	b.ranked[i] = next
	b.entries[next.UserID] = next
}

// position is the index of the first ranked entry that does not outrank e.
func (b *board) position(e domain.LeaderboardEntry) int {
	return sort.Search(len(b.ranked), func(i int) bool {
		return !app.Outranks(b.ranked[i], e)
	})
}

func (b *board) top(n int) []domain.LeaderboardEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.ranked) {
		n = len(b.ranked)
	}
	return append([]domain.LeaderboardEntry{}, b.ranked[:n]...)
}
