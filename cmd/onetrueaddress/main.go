package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/agent"
	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/db"
	"github.com/onetrueaddress/internal/debug"
	"github.com/onetrueaddress/internal/oracle"
	"github.com/onetrueaddress/internal/store"
)

var (
	configPath string
	logLevel   string
	debugMode  bool
	outputFmt  string
)

// app holds what the subcommands share once the root has bootstrapped.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	conn   *db.Connection
	writer *store.Writer
	agent  *agent.Agent
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "onetrueaddress",
		Short: "OneTrueAddress matching and consolidation agent",
		Long: `Match free-text addresses against the golden source and internal tables,
consolidate duplicate internal records and push the result to the updates table.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (default $ONETRUEADDRESS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "shorthand for --log-level debug")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(createMatchCmd())
	rootCmd.AddCommand(createConsolidateCmd())
	rootCmd.AddCommand(createPushCmd())
	rootCmd.AddCommand(createWriteGoldenCmd())
	rootCmd.AddCommand(createTimeSavedCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createPingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveLevel applies --log-level, then --debug, then the configured level.
func resolveLevel(flagLevel string, debugFlag bool, configured string) string {
	switch {
	case flagLevel != "":
		return flagLevel
	case debugFlag:
		return "debug"
	case configured != "":
		return configured
	}
	return "info"
}

// loadConfig reads .env and the config file and builds the logger. No
// database connection is opened.
func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, nil, eris.Wrap(err, "failed to load .env")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := debug.NewLogger(resolveLevel(logLevel, debugMode, cfg.Log.Level), cfg.Log.Format)
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to build logger")
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// bootstrap opens the database, makes sure the updates and ledger tables
// exist, and builds the agent.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := conn.EnsureSchema(ctx, cfg.Database.UpdatesTable); err != nil {
		conn.Close()
		return nil, err
	}

	orc, err := oracle.New(cfg.Oracle, logger.Named("oracle"))
	if err != nil {
		conn.Close()
		return nil, err
	}

	source := store.NewSQLSource(conn, logger.Named("store"))
	writer := store.NewWriter(conn, cfg.Database.UpdatesTable, store.WithWriterLogger(logger.Named("writer")))

	return &app{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		writer: writer,
		agent:  agent.New(cfg, source, writer, orc, logger.Named("agent")),
	}, nil
}

// Close releases the connection and flushes the logger.
func (a *app) Close() {
	if err := a.conn.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
