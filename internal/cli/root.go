package cli

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	if envPort == "" {
		envPort = "8080"
	}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quiz-service",
		Short:        "Timed quiz attempts, scoring and leaderboards",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewImportCmd(&configPath))
	return cmd
}
