package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marketplace-settlement/internal/bootstrap"
	"marketplace-settlement/internal/config"
)

var Version = "dev"

type globalFlags struct {
	configPath string
	dsn        string
	envFile    string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "settlementctl",
		Short:         "Operator tooling for the settlement engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.envFile == "" {
				return nil
			}
			if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", flags.envFile, err)
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("SETTLEMENT_CONFIG"), "Engine YAML config")
	rootCmd.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "Postgres DSN (default DATABASE_URL or PG_DSN)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file loaded before running")

	rootCmd.AddCommand(sweepCmd(flags))
	rootCmd.AddCommand(reportCmd(flags))
	rootCmd.AddCommand(outboxCmd(flags))
	rootCmd.AddCommand(configCmd(flags))
	return rootCmd
}

// openEngine loads the config and wires the engine over Postgres. The caller
// closes the returned db.
func openEngine(flags *globalFlags, logger *log.Logger) (*bootstrap.Engine, *sql.DB, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	dsn := flags.dsn
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = os.Getenv("PG_DSN")
	}
	if dsn == "" {
		return nil, nil, errors.New("no database: set --dsn, DATABASE_URL or PG_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	engine, err := bootstrap.NewEngine(db, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return engine, db, nil
}

func stderrLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}
