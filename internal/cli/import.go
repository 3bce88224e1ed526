package cli

import (
	"context"
	"fmt"
	"log"
	"sort"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/catalog"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	redisstore "quiz-attempt-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewImportCmd loads a YAML catalog into postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a quiz catalog into postgres and drop stale cached definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, catalogPath)
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file (defaults to quiz.catalog from the config)")
	return cmd
}

type quizSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

type quizCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

func runImport(ctx context.Context, configPath, catalogPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if catalogPath == "" {
		catalogPath = cfg.Quiz.Catalog
	}
	if catalogPath == "" {
		return fmt.Errorf("no catalog given and quiz.catalog not configured")
	}
	quizzes, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	loader := pgstore.NewQuizLoader(pool)

	var cache quizCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = redisstore.NewQuizRepository(client, loader, 0)
	}

	n, err := importQuizzes(ctx, loader, cache, quizzes)
	if err != nil {
		return err
	}
	log.Printf("imported %d quizzes from %s", n, catalogPath)
	return nil
}

// importQuizzes saves quizzes in id order. Each saved quiz is evicted from
// cache (when given) so running services pick up the new definition.
func importQuizzes(ctx context.Context, saver quizSaver, cache quizCache, quizzes map[string]domain.Quiz) (int, error) {
	ids := make([]string, 0, len(quizzes))
	for id := range quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		if err := saver.SaveQuiz(ctx, quizzes[id]); err != nil {
			return i, err
		}
		if cache == nil {
			continue
		}
		if err := cache.Invalidate(ctx, id); err != nil {
			return i, fmt.Errorf("invalidate cached quiz %s: %w", id, err)
		}
	}
	return len(ids), nil
}
