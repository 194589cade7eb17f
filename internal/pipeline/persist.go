package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Persister writes per-phase intermediates and final documents. Paths embed
// the gene symbol, so concurrent per-gene writes never overlap; the
// comprehensive output has the orchestrator as its single writer.
type Persister struct {
	dataDir   string
	outputDir string
	logger    *logrus.Logger
}

// NewPersister creates a persister rooted at the configured directories.
// Empty directories disable persistence.
func NewPersister(config domain.OutputConfig, logger *logrus.Logger) *Persister {
	if logger == nil {
		logger = logrus.New()
	}
	return &Persister{dataDir: config.DataDir, outputDir: config.OutputDir, logger: logger}
}

// Enabled reports whether intermediates are persisted at all.
func (p *Persister) Enabled() bool { return p.dataDir != "" || p.outputDir != "" }

func (p *Persister) writeJSON(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SavePhase1 persists the variant discovery output.
func (p *Persister) SavePhase1(result *Phase1Result) {
	if p.dataDir == "" {
		return
	}
	path := filepath.Join(p.dataDir, "phase1", result.GeneSymbol+"_variants.json")
	if err := p.writeJSON(path, result); err != nil {
		p.logger.WithError(err).Warn("Failed to persist phase 1 output")
	}
	patient := map[string]interface{}{
		"gene_symbol":        result.GeneSymbol,
		"protein_id":         result.ProteinID,
		"selected_diplotype": result.SelectedDiplotype,
		"selected_variants":  result.SelectedVariants,
		"timestamp":          result.Timestamp,
	}
	path = filepath.Join(p.dataDir, "phase1", result.GeneSymbol+"_virtual_patient.json")
	if err := p.writeJSON(path, patient); err != nil {
		p.logger.WithError(err).Warn("Failed to persist virtual patient")
	}
}

// SavePhase2 persists the clinical validation output.
func (p *Persister) SavePhase2(result *Phase2Result) {
	if p.dataDir == "" {
		return
	}
	path := filepath.Join(p.dataDir, "phase2", result.GeneSymbol+"_clinical.json")
	if err := p.writeJSON(path, result); err != nil {
		p.logger.WithError(err).Warn("Failed to persist phase 2 output")
	}
}

// SavePhase3 persists the enrichment output.
func (p *Persister) SavePhase3(result *Phase3Result) {
	if p.dataDir == "" {
		return
	}
	path := filepath.Join(p.dataDir, "phase3", result.GeneSymbol+"_enriched.json")
	if err := p.writeJSON(path, result); err != nil {
		p.logger.WithError(err).Warn("Failed to persist phase 3 output")
	}
}

// SaveKnowledgeGraph persists the per-gene JSON-LD export.
func (p *Persister) SaveKnowledgeGraph(result *Phase5Result) {
	if p.outputDir == "" {
		return
	}
	path := filepath.Join(p.outputDir, "json", result.GeneSymbol+"_knowledge_graph.jsonld")
	if err := p.writeJSON(path, result.Document); err != nil {
		p.logger.WithError(err).Warn("Failed to persist knowledge graph")
	}
}

// SaveComprehensive persists the patient-level aggregate outputs.
func (p *Persister) SaveComprehensive(patientID string, document map[string]interface{}, run *domain.RunResult) {
	if p.outputDir == "" {
		return
	}
	base := filepath.Join(p.outputDir, "comprehensive")
	if err := p.writeJSON(filepath.Join(base, patientID+"_comprehensive.jsonld"), document); err != nil {
		p.logger.WithError(err).Warn("Failed to persist comprehensive document")
	}

	summary := map[string]interface{}{
		"run_id":       run.RunID,
		"success":      run.Success,
		"genes":        len(run.GeneResults),
		"variants":     len(run.Variants),
		"drugs":        len(run.Drugs),
		"diseases":     len(run.Diseases),
		"publications": len(run.Publications),
		"started_at":   run.StartedAt,
		"finished_at":  run.FinishedAt,
	}
	if err := p.writeJSON(filepath.Join(base, patientID+"_summary.json"), summary); err != nil {
		p.logger.WithError(err).Warn("Failed to persist run summary")
	}

	matrix := make(map[string][]string)
	for _, variant := range run.Variants {
		if variant.PharmGKB == nil {
			continue
		}
		for _, drug := range variant.PharmGKB.Drugs {
			key := domain.NormalizeKey(drug.Name)
			matrix[key] = appendUnique(matrix[key], variant.GeneSymbol)
		}
	}
	if err := p.writeJSON(filepath.Join(base, patientID+"_drug_matrix.json"), matrix); err != nil {
		p.logger.WithError(err).Warn("Failed to persist drug matrix")
	}

	if len(run.Publications) > 0 {
		if err := p.writeJSON(filepath.Join(base, patientID+"_publications.json"), run.Publications); err != nil {
			p.logger.WithError(err).Warn("Failed to persist publication table")
		}
	}

	if run.Linking != nil {
		if err := p.writeJSON(filepath.Join(base, patientID+"_conflicts.json"), run.Linking.Conflicts); err != nil {
			p.logger.WithError(err).Warn("Failed to persist conflicts")
		}
	}
}
