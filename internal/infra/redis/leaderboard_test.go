package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

var base = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

func scoreRecord(attemptID, userID, quizID string, score int, offset time.Duration) domain.ScoreRecord {
	return domain.ScoreRecord{
		AttemptID:   attemptID,
		UserID:      userID,
		QuizID:      quizID,
		Score:       score,
		CompletedAt: base.Add(offset),
	}
}

func TestLeaderboardOrdersTiesAcrossPageBoundary(t *testing.T) {
	mr := startRedis(t)
	lb := NewLeaderboard(newClient(mr))
	ctx := context.Background()

	for _, rec := range []domain.ScoreRecord{
		scoreRecord("a1", "zed", "q1", 10, 30*time.Second),
		scoreRecord("a2", "amy", "q1", 5, 20*time.Second),
		scoreRecord("a3", "bob", "q1", 5, 10*time.Second),
		scoreRecord("a4", "cat", "q1", 5, 10*time.Second),
		scoreRecord("a5", "dan", "q1", 1, time.Second),
	} {
		if _, err := lb.Record(ctx, rec); err != nil {
			t.Fatalf("record %s: %v", rec.AttemptID, err)
		}
	}

	top, err := lb.Top(ctx, "q1", 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	got := make([]string, len(top))
	for i, e := range top {
		got[i] = fmt.Sprintf("%s:%d", e.UserID, e.Score)
	}
	want := []string{"zed:10", "bob:5", "cat:5"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	none, err := lb.Top(ctx, "q1", 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty page for n=0, got %+v (%v)", none, err)
	}
}

func TestLeaderboardBestScoreAndIdempotency(t *testing.T) {
	mr := startRedis(t)
	lb := NewLeaderboard(newClient(mr))
	ctx := context.Background()

	first := scoreRecord("a1", "amy", "q1", 5, 10*time.Second)
	if improved, err := lb.Record(ctx, first); err != nil || !improved {
		t.Fatalf("expected first record to improve, got %v (%v)", improved, err)
	}
	if improved, _ := lb.Record(ctx, first); improved {
		t.Fatalf("replay must be ignored")
	}
	if improved, _ := lb.Record(ctx, scoreRecord("a2", "amy", "q1", 3, time.Second)); improved {
		t.Fatalf("lower score must not improve")
	}
	if improved, _ := lb.Record(ctx, scoreRecord("a3", "amy", "q1", 5, 5*time.Second)); !improved {
		t.Fatalf("same score completed earlier must improve")
	}

	top, _ := lb.Top(ctx, "q1", 10)
	if len(top) != 1 || top[0].Score != 5 || top[0].Attempts != 3 || !top[0].CompletedAt.Equal(base.Add(5*time.Second)) {
		t.Fatalf("unexpected entry %+v", top)
	}
}

func TestLeaderboardGlobalAggregate(t *testing.T) {
	mr := startRedis(t)
	lb := NewLeaderboard(newClient(mr))
	ctx := context.Background()

	for _, rec := range []domain.ScoreRecord{
		scoreRecord("a1", "amy", "q1", 5, time.Second),
		scoreRecord("a2", "amy", "q2", 10, 2*time.Second),
		scoreRecord("a3", "bob", "q1", 12, 3*time.Second),
		scoreRecord("a4", "amy", "q1", 7, 4*time.Second),
	} {
		if _, err := lb.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	top, err := lb.GlobalTop(ctx, 10)
	if err != nil {
		t.Fatalf("global top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "amy" || top[0].Score != 17 || top[1].UserID != "bob" {
		t.Fatalf("unexpected global board %+v", top)
	}

	entry, found, err := lb.UserEntry(ctx, "amy")
	if err != nil || !found {
		t.Fatalf("user entry: %v (found=%v)", err, found)
	}
	if entry.QuizzesPlayed != 2 || entry.Attempts != 3 {
		t.Fatalf("unexpected aggregate %+v", entry)
	}
	if _, found, _ := lb.UserEntry(ctx, "nobody"); found {
		t.Fatalf("unknown user must not be found")
	}
}

func TestLeaderboardIDsWithColonsDoNotCollide(t *testing.T) {
	mr := startRedis(t)
	lb := NewLeaderboard(newClient(mr))
	ctx := context.Background()

	if _, err := lb.Record(ctx, scoreRecord("a1", "c", "a:entry:b", 4, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := lb.Record(ctx, scoreRecord("a2", "b:entry:c", "a", 9, 0)); err != nil {
		t.Fatalf("record: %v", err)
	}

	first, _ := lb.Top(ctx, "a:entry:b", 10)
	second, _ := lb.Top(ctx, "a", 10)
	if len(first) != 1 || first[0].UserID != "c" || first[0].Score != 4 {
		t.Fatalf("unexpected board for a:entry:b: %+v", first)
	}
	if len(second) != 1 || second[0].UserID != "b:entry:c" || second[0].Score != 9 {
		t.Fatalf("unexpected board for a: %+v", second)
	}
}
