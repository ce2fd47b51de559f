// Encoder Server - HTTP API for hierarchical document encoding
//
// Endpoints:
//
//	POST /encode  - Encode pre-tokenized documents into vectors
//	POST /search  - Encode a query document and search a corpus
//	GET  /health  - Health check
//	GET  /metrics - Prometheus metrics (when enabled)
//
// Hot reload:
//
//	Send SIGHUP to reload configuration without restart. Vector database
//	settings take effect on reload; model settings need a restart.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iasik/hierarchical-encoder/internal/api"
	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/container"
	"github.com/iasik/hierarchical-encoder/internal/logging"
	"github.com/iasik/hierarchical-encoder/internal/vectordb"
)

// startupAttempts is how many times dependencies are polled at startup,
// one second apart.
const startupAttempts = 30

func main() {
	cfgManager, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()
	logger := logging.New(cfg.Logging)

	logger.Info("starting encoder server",
		"port", cfg.Server.Port,
		"base_encoder_provider", cfg.BaseEncoder.Provider,
		"vectordb_provider", cfg.VectorDB.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build encoder", "error", err)
		os.Exit(1)
	}

	if err := c.WaitForBase(ctx, startupAttempts); err != nil {
		logger.Error("base encoder unavailable", "error", err)
		os.Exit(1)
	}
	if err := c.ConnectVectorDB(ctx, startupAttempts); err != nil {
		logger.Error("vectordb unavailable", "error", err)
		os.Exit(1)
	}

	if err := c.VectorDB.EnsureCollection(ctx, c.Documents.Dimensions()); err != nil {
		logger.Warn("failed to ensure collection (may already exist)", "error", err)
	}

	server := api.NewServer(cfgManager, c.Documents, c.Base, c.VectorDB, c.Metrics, logger)

	current := cfg.VectorDB
	cfgManager.OnChange(func(next *config.Config) {
		if next.VectorDB == current {
			return
		}
		vdb, err := vectordb.NewProvider(next.VectorDB)
		if err != nil {
			logger.Error("vectordb reload failed, keeping previous client", "error", err)
			return
		}
		current = next.VectorDB
		server.UpdateVectorDB(vdb)
		logger.Info("vectordb client replaced", "host", current.Host, "collection", current.CollectionName)
	})

	if err := server.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
