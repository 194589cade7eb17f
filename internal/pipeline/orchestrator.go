package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/internal/events"
)

// Linker cross-references the patient profile with the aggregated variants.
// Implemented by the variant-phenotype-drug linker; an interface here keeps
// the dependency direction pointing at the pipeline.
type Linker interface {
	Link(ctx context.Context, patient *domain.Patient, variants []domain.Variant, metabolizers []domain.MetabolizerPhenotype) *domain.LinkingResult
}

// Assembler produces the patient-level JSON-LD document after fan-in.
type Assembler interface {
	AssembleDocument(patient *domain.Patient, run *domain.RunResult, metabolizers []domain.MetabolizerPhenotype, diplotypes []domain.Diplotype) map[string]interface{}
}

// Orchestrator owns the worker pool and the fan-out/fan-in of per-gene runs.
type Orchestrator struct {
	runner    *Runner
	linker    Linker
	assembler Assembler
	persister *Persister
	bus       *events.Bus
	logger    *logrus.Logger
	config    domain.PipelineConfig
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(runner *Runner, lk Linker, asm Assembler, persister *Persister, bus *events.Bus, config domain.PipelineConfig, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		runner:    runner,
		linker:    lk,
		assembler: asm,
		persister: persister,
		bus:       bus,
		logger:    logger,
		config:    config,
	}
}

// geneOutcome carries one worker's full result through the fan-in channel.
type geneOutcome struct {
	result       domain.GeneResult
	metabolizer  *domain.MetabolizerPhenotype
	diplotype    *domain.Diplotype
	publications map[string]domain.Publication
}

// workerCount sizes the pool: never more workers than genes, capped at
// twice the CPU count and at eight.
func (o *Orchestrator) workerCount(genes int) int {
	w := o.config.MaxWorkers
	if w <= 0 {
		w = 2 * runtime.NumCPU()
	}
	if w > 8 {
		w = 8
	}
	if w > genes {
		w = genes
	}
	return w
}

// Run executes the pipeline for a single gene.
func (o *Orchestrator) Run(ctx context.Context, gene, proteinID string, patient *domain.Patient) *domain.RunResult {
	o.bus.Info(domain.StageNGS, domain.SubstageSingleGene, fmt.Sprintf("Starting single-gene run for %s", gene))
	return o.run(ctx, []geneRequest{{symbol: gene, proteinID: proteinID}}, patient, true)
}

// RunMulti executes the pipeline for several genes concurrently.
func (o *Orchestrator) RunMulti(ctx context.Context, genes []string, patient *domain.Patient) *domain.RunResult {
	o.bus.Info(domain.StageNGS, domain.SubstageMultiGene, fmt.Sprintf("Starting multi-gene run for %d genes", len(genes)))
	requests := make([]geneRequest, len(genes))
	for i, gene := range genes {
		requests[i] = geneRequest{symbol: gene}
	}
	return o.run(ctx, requests, patient, false)
}

type geneRequest struct {
	symbol    string
	proteinID string
}

func (o *Orchestrator) run(ctx context.Context, requests []geneRequest, patient *domain.Patient, singleGene bool) *domain.RunResult {
	run := &domain.RunResult{
		RunID:        uuid.NewString(),
		StartedAt:    time.Now().UTC(),
		GeneResults:  []domain.GeneResult{},
		Variants:     []domain.Variant{},
		Drugs:        []domain.Drug{},
		Diseases:     []string{},
		Publications: make(map[string]domain.Publication),
	}
	if patient == nil {
		patient = &domain.Patient{}
	}
	if len(requests) == 0 {
		run.Success = true
		run.Linking = emptyLinkingResult()
		run.FinishedAt = time.Now().UTC()
		o.bus.Info(domain.StageReport, domain.SubstageComplete, "Run complete: no genes requested")
		return run
	}

	outcomes := o.fanOut(ctx, requests)

	var metabolizers []domain.MetabolizerPhenotype
	var diplotypes []domain.Diplotype
	diseaseSet := make(map[string]bool)
	drugsByName := make(map[string]*domain.Drug)
	succeeded := 0

	// Aggregation is in completion order.
	for outcome := range outcomes {
		run.GeneResults = append(run.GeneResults, outcome.result)
		if !outcome.result.Success {
			continue
		}
		succeeded++
		run.Variants = append(run.Variants, outcome.result.Variants...)
		for _, disease := range outcome.result.Diseases {
			diseaseSet[disease] = true
		}
		for _, drug := range outcome.result.Drugs {
			key := domain.NormalizeKey(drug.Name)
			if _, ok := drugsByName[key]; !ok {
				d := drug
				drugsByName[key] = &d
			}
		}
		for pmid, pub := range outcome.publications {
			if _, ok := run.Publications[pmid]; !ok {
				run.Publications[pmid] = pub
			}
		}
		if outcome.metabolizer != nil {
			metabolizers = append(metabolizers, *outcome.metabolizer)
		}
		if outcome.diplotype != nil {
			diplotypes = append(diplotypes, *outcome.diplotype)
		}
	}
	run.Drugs = sortedDrugs(drugsByName)
	run.Diseases = sortedSet(diseaseSet)

	if ctx.Err() != nil {
		run.Success = false
		run.Error = "cancelled"
		run.FinishedAt = time.Now().UTC()
		o.bus.Error(domain.StageError, domain.SubstagePipeline, "Run cancelled")
		return run
	}

	// Patient-specific population context and dosing cautions.
	primaryEthnicity := patient.Demographics.PrimaryEthnicity()
	AttachPopulationContext(primaryEthnicity, run.Variants)
	run.Adjustments = EthnicityAdjustments(primaryEthnicity, run.Variants)

	if o.linker != nil {
		o.bus.Info(domain.StageEnrichment, domain.SubstageVariantLinking, "Linking patient profile against variants")
		run.Linking = o.linker.Link(ctx, patient, run.Variants, metabolizers)
	}

	// A multi-gene run succeeds when any gene completed; a single-gene run
	// fails with its gene. The outcome is fixed before assembly so the
	// persisted summary carries the final success flag and finish time.
	if singleGene {
		run.Success = succeeded == len(run.GeneResults)
		if !run.Success && len(run.GeneResults) > 0 {
			run.Error = run.GeneResults[0].Error
		}
	} else {
		run.Success = succeeded > 0
		if !run.Success {
			run.Error = "all genes failed"
		}
	}
	run.FinishedAt = time.Now().UTC()

	if o.assembler != nil {
		o.bus.Info(domain.StageEnrichment, domain.SubstageProfileGeneration, "Assembling patient document")
		run.Document = o.assembler.AssembleDocument(patient, run, metabolizers, diplotypes)
		if o.persister != nil {
			patientID := patient.MRN
			if patientID == "" {
				patientID = patient.PatientID
			}
			if patientID == "" {
				patientID = run.RunID
			}
			o.persister.SaveComprehensive(patientID, run.Document, run)
		}
	}

	if run.Success {
		o.bus.Emit(domain.Event{
			Stage:    domain.StageReport,
			Substage: domain.SubstageComplete,
			Level:    domain.LevelInfo,
			Message:  fmt.Sprintf("Run complete: %d/%d genes succeeded", succeeded, len(run.GeneResults)),
			Payload:  map[string]interface{}{"run_id": run.RunID, "success": true},
		})
	} else {
		o.bus.Emit(domain.Event{
			Stage:    domain.StageError,
			Substage: domain.SubstagePipeline,
			Level:    domain.LevelError,
			Message:  fmt.Sprintf("Run failed: %s", run.Error),
			Payload:  map[string]interface{}{"run_id": run.RunID, "success": false},
		})
	}
	return run
}

// emptyLinkingResult keeps the document shape stable when linking never ran:
// the serialized links and conflicts are empty arrays, not null.
func emptyLinkingResult() *domain.LinkingResult {
	return &domain.LinkingResult{
		Links:     []domain.Link{},
		Conflicts: []domain.Conflict{},
		Summary: domain.LinkingSummary{
			LinksByType:         make(map[domain.LinkType]int),
			ConflictsBySeverity: make(map[domain.ConflictSeverity]int),
		},
	}
}

// fanOut spawns the worker pool and returns the fan-in channel.
func (o *Orchestrator) fanOut(ctx context.Context, requests []geneRequest) <-chan geneOutcome {
	workers := o.workerCount(len(requests))
	queue := make(chan geneRequest)
	outcomes := make(chan geneOutcome)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for request := range queue {
				outcomes <- o.runGene(ctx, request)
			}
		}()
	}
	go func() {
		defer close(queue)
		for _, request := range requests {
			select {
			case queue <- request:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()
	return outcomes
}

// runGene executes phases P1 through P5 sequentially for one gene.
func (o *Orchestrator) runGene(ctx context.Context, request geneRequest) geneOutcome {
	start := time.Now()
	outcome := geneOutcome{result: domain.GeneResult{Gene: request.symbol}}

	fail := func(err error) geneOutcome {
		outcome.result.Success = false
		outcome.result.Error = err.Error()
		outcome.result.Duration = time.Since(start)
		o.bus.Error(domain.StageError, domain.SubstagePipeline,
			fmt.Sprintf("Gene %s failed: %v", request.symbol, err))
		return outcome
	}

	phase1, err := o.runner.RunPhase1(ctx, request.symbol, request.proteinID)
	if err != nil {
		return fail(err)
	}
	o.persister.SavePhase1(phase1)

	phase2, err := o.runner.RunPhase2(ctx, phase1)
	if err != nil {
		return fail(err)
	}
	o.persister.SavePhase2(phase2)

	phase3, err := o.runner.RunPhase3(ctx, phase2)
	if err != nil {
		return fail(err)
	}
	o.persister.SavePhase3(phase3)

	phase4, err := o.runner.RunPhase4(ctx, phase3)
	if err != nil {
		return fail(err)
	}
	phase5, err := o.runner.RunPhase5(ctx, phase3, phase4)
	if err != nil {
		return fail(err)
	}
	o.persister.SaveKnowledgeGraph(phase5)

	outcome.result.Success = true
	outcome.result.Variants = phase3.Variants
	outcome.result.Drugs = phase3.Drugs
	outcome.result.Diseases = phase3.Diseases
	outcome.result.Diplotype = phase3.Diplotype
	outcome.result.Metabolizer = phase3.Metabolizer
	outcome.result.Duration = time.Since(start)
	outcome.metabolizer = phase3.Metabolizer
	outcome.diplotype = phase3.Diplotype
	outcome.publications = phase3.Publications
	return outcome
}
