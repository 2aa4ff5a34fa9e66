package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/agent"
	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/db"
	"github.com/onetrueaddress/internal/debug"
	"github.com/onetrueaddress/internal/oracle"
	"github.com/onetrueaddress/internal/store"
	"github.com/onetrueaddress/internal/web"
)

func main() {
	// Load environment configuration
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := debug.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	fmt.Println("=== OneTrueAddress API ===")
	fmt.Printf("Server: http://%s:%d/api/v1\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Printf("Database: %s\n", cfg.Database.Type)
	fmt.Printf("Oracle: %s\n", cfg.Oracle.Provider)

	ctx := context.Background()

	// Initialize database connection
	dbConn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := dbConn.EnsureSchema(ctx, cfg.Database.UpdatesTable); err != nil {
		logger.Fatal("failed to prepare schema", zap.Error(err))
	}

	orc, err := oracle.New(cfg.Oracle, logger.Named("oracle"))
	if err != nil {
		logger.Fatal("failed to configure oracle", zap.Error(err))
	}

	source := store.NewSQLSource(dbConn, logger.Named("store"))
	writer := store.NewWriter(dbConn, cfg.Database.UpdatesTable, store.WithWriterLogger(logger.Named("writer")))
	svc := agent.New(cfg, source, writer, orc, logger.Named("agent"))
	if !svc.HasOracle() {
		logger.Info("no oracle configured, confidence follows similarity")
	}

	server := web.NewServer(cfg, svc, logger.Named("web"))
	server.OnShutdown(dbConn.Close)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
