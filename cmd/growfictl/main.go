// Command growfictl is the operator tool for a GrowFi server: it prints
// farm layouts, prepares the schema, reports portfolios and runs the
// purchase event consumer.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/config"
	"github.com/growfi/growfi-server/internal/database"
)

var (
	version = "dev"

	envFile    string
	outputFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "growfictl",
		Short: "Operator tool for the GrowFi plot market",
		Long: `growfictl works directly against the configuration, database and broker of a
GrowFi server.  Settings are read from the environment and, when present,
from the file given by --env-file.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotenv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(newLayoutCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newPortfolioCmd())
	rootCmd.AddCommand(newConsumeCmd())
	rootCmd.AddCommand(newUserCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the server configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openDB connects to the configured database.
func openDB(cfg config.Config) (*sql.DB, database.Dialect, error) {
	opts, err := database.FromConfig(cfg)
	if err != nil {
		return nil, "", err
	}
	db, err := database.Open(opts)
	if err != nil {
		return nil, "", fmt.Errorf("connecting to %s database: %w", opts.Dialect, err)
	}
	return db, opts.Dialect, nil
}

func newLogger(cfg config.Config) *zap.Logger {
	log, err := config.NewLogger(cfg.LogLevel, "console")
	if err != nil {
		return zap.NewNop()
	}
	return log
}
