package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pgx-knowledge-graph/internal/assembler"
	"github.com/pgx-knowledge-graph/internal/config"
	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/internal/events"
	"github.com/pgx-knowledge-graph/internal/linker"
	"github.com/pgx-knowledge-graph/internal/logging"
	"github.com/pgx-knowledge-graph/internal/pipeline"
	"github.com/pgx-knowledge-graph/internal/resolver"
	"github.com/pgx-knowledge-graph/pkg/external"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		geneFlag    = flag.String("gene", "", "single gene symbol to analyze")
		genesFlag   = flag.String("genes", "", "comma-separated gene symbols for a multi-gene run")
		proteinFlag = flag.String("protein", "", "UniProt accession override for a single-gene run")
		configFlag  = flag.String("config", "", "path to configuration file")
		patientFlag = flag.String("patient", "", "path to a patient profile JSON file")
	)
	flag.Parse()

	genes := splitGenes(*genesFlag)
	// Bare arguments after --genes also count as gene symbols.
	genes = append(genes, flag.Args()...)

	if *geneFlag == "" && len(genes) == 0 {
		fmt.Fprintln(os.Stderr, "error: --gene or --genes is required")
		flag.Usage()
		return 1
	}

	manager, err := config.NewManager(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if err := manager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	cfg := manager.GetConfig()
	logger := logging.NewLogger(cfg.Logging)

	var patient *domain.Patient
	if *patientFlag != "" {
		data, err := os.ReadFile(*patientFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read patient profile: %v\n", err)
			return 1
		}
		patient = &domain.Patient{}
		if err := json.Unmarshal(data, patient); err != nil {
			fmt.Fprintf(os.Stderr, "error: decode patient profile: %v\n", err)
			return 1
		}
	}

	kb, err := external.NewKnowledgeBase(cfg.ExternalAPI, cfg.Cache, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer kb.Close()

	res, err := resolver.New(kb, resolver.Config{}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	bus := events.NewBus(cfg.Pipeline.EventQueueSize, logger)
	defer bus.Close()
	bus.OnEvent(func(event domain.Event) {
		entry := logger.WithField("stage", event.Stage).WithField("substage", event.Substage)
		switch event.Level {
		case domain.LevelError:
			entry.Error(event.Message)
		case domain.LevelWarn:
			entry.Warn(event.Message)
		default:
			entry.Info(event.Message)
		}
	})

	runner := pipeline.NewRunner(kb, res, bus, cfg.Pipeline, logger)
	lk := linker.New(res, bus, cfg.Pipeline, logger)
	persister := pipeline.NewPersister(cfg.Output, logger)
	orchestrator := pipeline.NewOrchestrator(runner, lk, assembler.DocumentAssembler{}, persister, bus, cfg.Pipeline, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("Shutdown signal received, cancelling run")
		cancel()
	}()

	var result *domain.RunResult
	if *geneFlag != "" {
		result = orchestrator.Run(ctx, *geneFlag, *proteinFlag, patient)
	} else {
		result = orchestrator.RunMulti(ctx, genes, patient)
	}

	if !result.Success {
		fmt.Fprintf(os.Stderr, "error: %s\n", result.Error)
		return 1
	}
	return 0
}

func splitGenes(value string) []string {
	if value == "" {
		return nil
	}
	var genes []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part != "" {
			genes = append(genes, part)
		}
	}
	return genes
}
