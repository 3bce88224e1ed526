package app

import (
	"context"
	"log"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/errgroup"
)

// LeaderboardStore keeps best entries per (user, quiz) and the global aggregate.
// Implementations must serialize updates for the same user and must apply a
// record at most once per attempt id.
type LeaderboardStore interface {
	// Record applies rec using MergeScore/MergeGlobal. It reports whether the
	// user's best entry for the quiz changed.
	Record(ctx context.Context, rec domain.ScoreRecord) (bool, error)
	// Top returns up to n entries of a quiz ordered by Outranks.
	Top(ctx context.Context, quizID string, n int) ([]domain.LeaderboardEntry, error)
	// GlobalTop returns up to n global aggregates ordered by Outranks.
	GlobalTop(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	// UserEntry returns the user's global aggregate; found is false if the user never finished a quiz.
	UserEntry(ctx context.Context, userID string) (entry domain.LeaderboardEntry, found bool, err error)
}

// LeaderboardService is the leaderboard aggregator exposed to callers. It
// validates queries, ranks pages and pushes fresh pages to subscribers.
type LeaderboardService struct {
	store      LeaderboardStore
	hub        *Hub
	clock      Clock
	pageSize   int
	maxEntries int
}

// LeaderboardOption customises a LeaderboardService.
type LeaderboardOption func(*LeaderboardService)

// WithLeaderboardClock overrides the clock stamped on published pages.
func WithLeaderboardClock(clock Clock) LeaderboardOption {
	return func(s *LeaderboardService) { s.clock = clock }
}

// WithPageLimits sets the size of pushed pages and the cap applied to queries.
func WithPageLimits(pageSize, maxEntries int) LeaderboardOption {
	return func(s *LeaderboardService) {
		if pageSize > 0 {
			s.pageSize = pageSize
		}
		if maxEntries > 0 {
			s.maxEntries = maxEntries
		}
	}
}

func NewLeaderboardService(store LeaderboardStore, hub *Hub, opts ...LeaderboardOption) *LeaderboardService {
	s := &LeaderboardService{
		store:      store,
		hub:        hub,
		clock:      SystemClock,
		pageSize:   10,
		maxEntries: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a finalized attempt and publishes the affected boards.
func (s *LeaderboardService) Record(ctx context.Context, rec domain.ScoreRecord) error {
	if _, err := s.store.Record(ctx, rec); err != nil {
		return internal(err)
	}

	var quizPage, globalPage domain.Leaderboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quizPage, err = s.page(gctx, rec.QuizID, s.pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		globalPage, err = s.page(gctx, GlobalBoard, s.pageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		// the record is stored; subscribers catch up on the next publish
		log.Printf("leaderboard publish for quiz %s: %v", rec.QuizID, err)
		return nil
	}
	s.hub.Publish(quizPage)
	s.hub.Publish(globalPage)
	return nil
}

// GetLeaderboard returns the top n entries of a quiz.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, quizID string, n int) (domain.Leaderboard, error) {
	if quizID == "" {
		return domain.Leaderboard{}, domain.InvalidArgument("quiz id is required")
	}
	if n < 0 {
		return domain.Leaderboard{}, domain.InvalidArgument("n must be >= 0, got %d", n)
	}
	return s.page(ctx, quizID, n)
}

// GetGlobalLeaderboard returns the top n users by summed best scores.
func (s *LeaderboardService) GetGlobalLeaderboard(ctx context.Context, n int) (domain.Leaderboard, error) {
	if n < 0 {
		return domain.Leaderboard{}, domain.InvalidArgument("n must be >= 0, got %d", n)
	}
	return s.page(ctx, GlobalBoard, n)
}

// UserStats summarises a user's finalized play. Unknown users get zero stats.
func (s *LeaderboardService) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	if userID == "" {
		return domain.UserStats{}, domain.InvalidArgument("user id is required")
	}
	entry, found, err := s.store.UserEntry(ctx, userID)
	if err != nil {
		return domain.UserStats{}, internal(err)
	}
	if !found {
		return domain.UserStats{UserID: userID}, nil
	}
	return StatsFromEntry(userID, entry), nil
}

// Subscribe streams pages of quizID (GlobalBoard for the global board),
// starting with the current one, which only the new subscriber receives.
// The caller must invoke cancel.
func (s *LeaderboardService) Subscribe(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	ch, cancel := s.hub.subscribe(quizID)
	current, err := s.page(ctx, quizID, s.pageSize)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.hub.deliver(ch, current)
	return ch, cancel, nil
}

func (s *LeaderboardService) page(ctx context.Context, quizID string, n int) (domain.Leaderboard, error) {
	if n > s.maxEntries {
		n = s.maxEntries
	}
	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if quizID == GlobalBoard {
		entries, err = s.store.GlobalTop(ctx, n)
	} else {
		entries, err = s.store.Top(ctx, quizID, n)
	}
	if err != nil {
		return domain.Leaderboard{}, internal(err)
	}
	return domain.Leaderboard{
		QuizID:    quizID,
		Entries:   Page(entries, n),
		UpdatedAt: s.clock(),
	}, nil
}
