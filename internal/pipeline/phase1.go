package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/internal/events"
	"github.com/pgx-knowledge-graph/internal/resolver"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// diplotypePriority orders significance categories for diplotype selection.
var diplotypePriority = []string{
	"Drug response",
	"Pathogenic",
	"Likely pathogenic",
	"Uncertain significance",
	"Benign",
	"Likely benign",
}

// starAlleles seeds the rsID to star-allele mapping for the same genes the
// functionality table covers.
var starAlleles = map[string]map[string]string{
	"CYP2C19": {
		"rs4244285":  "*2",
		"rs4986893":  "*3",
		"rs28399504": "*4",
		"rs56337013": "*5",
		"rs72552267": "*6",
		"rs72558186": "*7",
		"rs41291556": "*8",
		"rs12248560": "*17",
	},
	"CYP2D6": {
		"rs35742686": "*3",
		"rs3892097":  "*4",
		"rs5030655":  "*6",
		"rs5030656":  "*9",
		"rs1065852":  "*10",
		"rs28371706": "*17",
		"rs28371725": "*41",
	},
}

// StarAlleleOf maps a variant to its star allele, "*1" for the reference.
// Unmapped variants fall back to their variant identifier.
func StarAlleleOf(geneSymbol string, variant *domain.Variant) string {
	if variant == nil {
		return "*1"
	}
	if table, ok := starAlleles[strings.ToUpper(geneSymbol)]; ok && variant.RSID != "" {
		if allele, ok := table[variant.RSID]; ok {
			return allele
		}
	}
	if variant.RSID != "" {
		return variant.RSID
	}
	if variant.VariantID != "" {
		return variant.VariantID
	}
	return "*1"
}

// Phase1Result is the variant discovery output handed to phase 2.
type Phase1Result struct {
	GeneSymbol        string                                        `json:"gene_symbol"`
	ProteinID         string                                        `json:"protein_id"`
	TotalVariants     int                                           `json:"total_variants"`
	SelectedDiplotype *domain.Diplotype                             `json:"selected_diplotype,omitempty"`
	SelectedVariants  []domain.Variant                              `json:"selected_variants,omitempty"`
	VariantCatalog    map[string][]map[string]interface{}           `json:"variant_catalog"`
	PubMedEvidence    map[string]map[string]external.PubMedEvidence `json:"pubmed_evidence,omitempty"`
	Timestamp         time.Time                                     `json:"timestamp"`
}

// Runner executes the per-gene pipeline phases. Shared across workers; all
// state lives in the phase results.
type Runner struct {
	kb       *external.KnowledgeBase
	resolver *resolver.Resolver
	bus      *events.Bus
	logger   *logrus.Logger
	config   domain.PipelineConfig
}

// NewRunner creates a phase runner.
func NewRunner(kb *external.KnowledgeBase, res *resolver.Resolver, bus *events.Bus, config domain.PipelineConfig, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{kb: kb, resolver: res, bus: bus, logger: logger, config: config}
}

// RunPhase1 discovers clinical variants for a gene and selects a realistic
// diplotype. Failure to resolve the accession or fetch variants is terminal
// for the gene.
func (r *Runner) RunPhase1(ctx context.Context, geneSymbol, proteinID string) (*Phase1Result, error) {
	r.bus.Info(domain.StageLabPrep, domain.SubstageVariantDiscovery, fmt.Sprintf("Starting variant discovery for %s", geneSymbol))

	if proteinID == "" {
		accession, err := r.resolver.ResolveUniProt(ctx, geneSymbol)
		if err != nil {
			return nil, fmt.Errorf("resolve accession for %s: %w", geneSymbol, err)
		}
		proteinID = accession
	}

	raw, err := r.kb.UniProt.FetchVariants(ctx, proteinID)
	if err != nil {
		return nil, fmt.Errorf("fetch variants for %s: %w", proteinID, err)
	}

	clinical := external.FilterClinical(raw)
	catalog := external.Categorise(clinical)
	pubmed := external.ExtractPubMedEvidence(catalog)

	selected := selectDiplotypeFeatures(catalog)
	external.RestoreEvidences(selected, clinical)

	variants := make([]domain.Variant, 0, len(selected))
	for _, feature := range selected {
		variants = append(variants, external.FeatureToVariant(geneSymbol, proteinID, feature))
	}
	diplotype := buildDiplotype(geneSymbol, variants)

	result := &Phase1Result{
		GeneSymbol:        geneSymbol,
		ProteinID:         proteinID,
		TotalVariants:     len(clinical),
		SelectedDiplotype: diplotype,
		SelectedVariants:  variants,
		VariantCatalog:    catalog,
		PubMedEvidence:    pubmed,
		Timestamp:         time.Now().UTC(),
	}
	r.bus.Emit(domain.Event{
		Stage:    domain.StageLabPrep,
		Substage: domain.SubstageVariantDiscovery,
		Level:    domain.LevelInfo,
		Message:  fmt.Sprintf("Discovered %d clinical variants for %s", len(clinical), geneSymbol),
		Payload: map[string]interface{}{
			"gene_symbol":    geneSymbol,
			"protein_id":     proteinID,
			"total_variants": len(clinical),
			"diplotype":      diplotype.Notation,
		},
	})
	return result, nil
}

// selectDiplotypeFeatures walks the priority categories and picks up to two
// features, preferring metadata-rich ones within each category.
func selectDiplotypeFeatures(catalog map[string][]map[string]interface{}) []map[string]interface{} {
	var selected []map[string]interface{}
	for _, category := range diplotypePriority {
		features, ok := featuresForCategory(catalog, category)
		if !ok {
			continue
		}
		ranked := external.RankVariants(features)
		for _, f := range ranked {
			selected = append(selected, f)
			if len(selected) == 2 {
				return selected
			}
		}
	}
	// Categories outside the priority list still count.
	for category, features := range catalog {
		if inPriority(category) {
			continue
		}
		for _, f := range external.RankVariants(features) {
			selected = append(selected, f)
			if len(selected) == 2 {
				return selected
			}
		}
	}
	return selected
}

func featuresForCategory(catalog map[string][]map[string]interface{}, category string) ([]map[string]interface{}, bool) {
	if features, ok := catalog[category]; ok {
		return features, true
	}
	// Categories arrive with upstream casing.
	for name, features := range catalog {
		if strings.EqualFold(name, category) {
			return features, true
		}
	}
	return nil, false
}

func inPriority(category string) bool {
	for _, p := range diplotypePriority {
		if strings.EqualFold(p, category) {
			return true
		}
	}
	return false
}

// buildDiplotype composes the diplotype from the selected variants. One
// variant yields a homozygous call, none yields the reference diplotype.
func buildDiplotype(geneSymbol string, variants []domain.Variant) *domain.Diplotype {
	diplotype := &domain.Diplotype{GeneSymbol: geneSymbol}
	switch len(variants) {
	case 0:
		diplotype.Alleles = []string{"*1", "*1"}
		diplotype.Zygosity = "reference"
	case 1:
		allele := StarAlleleOf(geneSymbol, &variants[0])
		diplotype.Alleles = []string{allele, allele}
		diplotype.Zygosity = "homozygous"
		diplotype.Variants = []string{variants[0].VariantID}
	default:
		first := StarAlleleOf(geneSymbol, &variants[0])
		second := StarAlleleOf(geneSymbol, &variants[1])
		diplotype.Alleles = []string{first, second}
		if first == second {
			diplotype.Zygosity = "homozygous"
		} else {
			diplotype.Zygosity = "heterozygous"
		}
		diplotype.Variants = []string{variants[0].VariantID, variants[1].VariantID}
	}
	diplotype.Notation = strings.Join(diplotype.Alleles, "/")
	return diplotype
}
