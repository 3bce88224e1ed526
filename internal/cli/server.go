package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/catalog"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	redisstore "quiz-attempt-service/internal/infra/redis"
	transport "quiz-attempt-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := contentLoader(cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, quizTTL))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var attempts app.AttemptRepository
	switch {
	case pool != nil:
		attempts = pgstore.NewAttemptStore(pool)
	case redisClient != nil:
		attempts = redisstore.NewAttemptStore(redisClient)
	default:
		attempts = memory.NewAttemptStore()
	}

	var boards app.LeaderboardStore
	if redisClient != nil {
		boards = redisstore.NewLeaderboard(redisClient)
	} else {
		boards = memory.NewLeaderboard()
	}

	leaderboard := app.NewLeaderboardService(boards, app.NewHub(),
		app.WithPageLimits(cfg.Leaderboard.DefaultLimit, cfg.Leaderboard.MaxLimit))
	service := app.NewAttemptService(quizRepo, attempts, leaderboard)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service, leaderboard).ServeWS)
	transport.NewAPIHandler(service, leaderboard, cfg.Leaderboard.DefaultLimit).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// contentLoader picks the quiz source: postgres, then the YAML catalog, then built-in samples.
func contentLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	if pool != nil {
		return pgstore.NewQuizLoader(pool), nil
	}
	if cfg.Quiz.Catalog != "" {
		quizzes, err := catalog.Load(cfg.Quiz.Catalog)
		if err != nil {
			return nil, err
		}
		log.Printf("loaded %d quizzes from %s", len(quizzes), cfg.Quiz.Catalog)
		return memory.NewStaticQuizLoader(quizzes), nil
	}
	return memory.NewStaticQuizLoader(sampleQuizzes()), nil
}

// sampleQuizzes lets the service run without any content backend.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Warm-up",
			Category:         "General Knowledge",
			Difficulty:       "Easy",
			TimeLimitSeconds: 60,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Type:   domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{ID: "A", Text: "3"},
						{ID: "B", Text: "4", Correct: true},
						{ID: "C", Text: "5"},
					},
					Points: 5,
				},
				{
					ID:            "q2",
					Prompt:        "Which planet is known as the red planet?",
					Type:          domain.QuestionText,
					CorrectAnswer: "Mars",
					Points:        10,
				},
			},
		},
	}
}
