package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// Phase2Result is the clinical validation output handed to phase 3.
type Phase2Result struct {
	GeneSymbol      string                       `json:"gene_symbol"`
	ProteinID       string                       `json:"protein_id"`
	Variants        []domain.Variant             `json:"variants"`
	Diplotype       *domain.Diplotype            `json:"diplotype,omitempty"`
	Metabolizer     *domain.MetabolizerPhenotype `json:"metabolizer,omitempty"`
	GeneAnnotations []domain.PharmGKBAnnotation  `json:"gene_annotations,omitempty"`
	Timestamp       time.Time                    `json:"timestamp"`
}

// RunPhase2 validates the selected variants against ClinVar and PharmGKB and
// derives the metabolizer phenotype. Per-variant upstream failures degrade
// that attachment and continue.
func (r *Runner) RunPhase2(ctx context.Context, phase1 *Phase1Result) (*Phase2Result, error) {
	r.bus.Info(domain.StageNGS, domain.SubstageClinicalValidation, fmt.Sprintf("Validating %d variants for %s", len(phase1.SelectedVariants), phase1.GeneSymbol))

	geneAnnotations, err := r.kb.PharmGKBGeneAnnotations(ctx, phase1.GeneSymbol)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrCancelled
		}
		r.bus.Warn(domain.StageNGS, domain.SubstageClinicalValidation,
			fmt.Sprintf("PharmGKB gene annotations unavailable for %s: %v", phase1.GeneSymbol, err))
		geneAnnotations = nil
	}

	variants := make([]domain.Variant, len(phase1.SelectedVariants))
	copy(variants, phase1.SelectedVariants)
	for i := range variants {
		if err := ctx.Err(); err != nil {
			return nil, domain.ErrCancelled
		}
		r.attachClinVar(ctx, &variants[i])
		r.attachPharmGKB(ctx, &variants[i], geneAnnotations)
	}

	result := &Phase2Result{
		GeneSymbol:      phase1.GeneSymbol,
		ProteinID:       phase1.ProteinID,
		Variants:        variants,
		Diplotype:       phase1.SelectedDiplotype,
		Metabolizer:     MetabolizerFromDiplotype(phase1.SelectedDiplotype),
		GeneAnnotations: geneAnnotations,
		Timestamp:       time.Now().UTC(),
	}
	return result, nil
}

func (r *Runner) attachClinVar(ctx context.Context, variant *domain.Variant) {
	if !variant.HasValidRSID() {
		return
	}
	evidence, err := r.kb.ClinVarEvidence(ctx, variant.RSID)
	if err != nil {
		if !domain.IsNotFound(err) {
			r.bus.Warn(domain.StageNGS, domain.SubstageClinicalValidation,
				fmt.Sprintf("ClinVar lookup failed for %s: %v", variant.RSID, err))
		}
		return
	}
	variant.ClinVar = evidence
}

func (r *Runner) attachPharmGKB(ctx context.Context, variant *domain.Variant, geneAnnotations []domain.PharmGKBAnnotation) {
	annotations := geneAnnotations
	if variant.HasValidRSID() {
		variantAnnotations, err := r.kb.PharmGKBVariantAnnotations(ctx, variant.RSID)
		if err == nil && len(variantAnnotations) > 0 {
			annotations = variantAnnotations
		} else if err != nil && !domain.IsNotFound(err) {
			r.bus.Warn(domain.StageNGS, domain.SubstageClinicalValidation,
				fmt.Sprintf("PharmGKB variant annotations failed for %s: %v", variant.RSID, err))
		}
	}
	if len(annotations) == 0 {
		return
	}
	variant.PharmGKB = &domain.PharmGKBEvidence{
		Annotations: annotations,
		Drugs:       external.ExtractDrugs(annotations),
		Phenotypes:  external.ExtractPhenotypes(annotations),
	}
}
