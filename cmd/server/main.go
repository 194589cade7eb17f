package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pgx-knowledge-graph/internal/api"
	"github.com/pgx-knowledge-graph/internal/assembler"
	"github.com/pgx-knowledge-graph/internal/config"
	"github.com/pgx-knowledge-graph/internal/events"
	"github.com/pgx-knowledge-graph/internal/linker"
	"github.com/pgx-knowledge-graph/internal/logging"
	"github.com/pgx-knowledge-graph/internal/pipeline"
	"github.com/pgx-knowledge-graph/internal/resolver"
	"github.com/pgx-knowledge-graph/internal/store"
	"github.com/pgx-knowledge-graph/pkg/external"
)

func main() {
	configFlag := flag.String("config", "", "path to configuration file")
	flag.Parse()

	manager, err := config.NewManager(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := manager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := manager.GetConfig()
	logger := logging.NewLogger(cfg.Logging)
	logger.Infof("Starting pgx-knowledge-graph server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	kb, err := external.NewKnowledgeBase(cfg.ExternalAPI, cfg.Cache, logger)
	if err != nil {
		log.Fatalf("Failed to create knowledge base: %v", err)
	}
	defer kb.Close()

	res, err := resolver.New(kb, resolver.Config{}, logger)
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}

	bus := events.NewBus(cfg.Pipeline.EventQueueSize, logger)
	defer bus.Close()

	runs, err := store.New(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open run-history store: %v", err)
	}
	defer runs.Close()

	runner := pipeline.NewRunner(kb, res, bus, cfg.Pipeline, logger)
	lk := linker.New(res, bus, cfg.Pipeline, logger)
	persister := pipeline.NewPersister(cfg.Output, logger)
	orchestrator := pipeline.NewOrchestrator(runner, lk, assembler.DocumentAssembler{}, persister, bus, cfg.Pipeline, logger)

	server := api.NewServer(cfg, orchestrator, kb, bus, runs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}
