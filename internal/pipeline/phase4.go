package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Edge semantic types.
const (
	EdgeHasVariant             = "hasVariant"
	EdgeAffectsDrug            = "affectsDrug"
	EdgeHasClinicalFinding     = "hasClinicalFinding"
	EdgeAssociatedWithDisease  = "associatedWithDisease"
	EdgeHasEvidence            = "hasEvidence"
)

// GraphNode is one node of the knowledge graph, keyed by a namespaced
// identifier.
type GraphNode struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Label      string                 `json:"label,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// GraphEdge is one directed, typed edge between two node identifiers.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Phase4Result is the assembled graph handed to phase 5.
type Phase4Result struct {
	GeneSymbol string      `json:"gene_symbol"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Node identifier namespaces.
func VariantNodeID(rsid string) string     { return "dbsnp:" + rsid }
func GeneNodeID(accession string) string   { return "uniprot:" + accession }
func SnomedNodeID(code string) string      { return "snomed:" + code }
func PublicationNodeID(pmid string) string { return "pubmed:" + pmid }

// DrugNodeID prefers the ChEMBL identifier, falling back to RxNorm.
func DrugNodeID(drug domain.Drug) string {
	if drug.ChEMBLID != "" {
		return "chembl:" + drug.ChEMBLID
	}
	if drug.RxNormCUI != "" {
		return "rxnorm:" + drug.RxNormCUI
	}
	return ""
}

// graphBuilder deduplicates nodes and edges during assembly.
type graphBuilder struct {
	nodes     []GraphNode
	edges     []GraphEdge
	nodeSeen  map[string]bool
	edgeSeen  map[string]bool
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{nodeSeen: make(map[string]bool), edgeSeen: make(map[string]bool)}
}

func (g *graphBuilder) addNode(node GraphNode) {
	if node.ID == "" || g.nodeSeen[node.ID] {
		return
	}
	g.nodeSeen[node.ID] = true
	g.nodes = append(g.nodes, node)
}

func (g *graphBuilder) addEdge(source, target, edgeType string) {
	if source == "" || target == "" {
		return
	}
	key := source + "|" + edgeType + "|" + target
	if g.edgeSeen[key] {
		return
	}
	g.edgeSeen[key] = true
	g.edges = append(g.edges, GraphEdge{Source: source, Target: target, Type: edgeType})
}

// RunPhase4 assembles the per-gene knowledge graph. Variants without an rsID
// contribute no triples but stay in the variant array downstream.
func (r *Runner) RunPhase4(ctx context.Context, phase3 *Phase3Result) (*Phase4Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrCancelled
	}
	r.bus.Info(domain.StageEnrichment, domain.SubstageRDFAssembly,
		fmt.Sprintf("Assembling knowledge graph for %s", phase3.GeneSymbol))

	g := newGraphBuilder()
	geneID := GeneNodeID(phase3.ProteinID)
	g.addNode(GraphNode{ID: geneID, Type: "gene", Label: phase3.GeneSymbol})

	findingsByCode := make(map[string]bool)
	for _, finding := range phase3.Findings {
		if finding.Concept.Code != "" {
			findingsByCode[finding.Concept.Code] = true
			g.addNode(GraphNode{ID: SnomedNodeID(finding.Concept.Code), Type: "clinical_finding", Label: finding.Concept.Label})
		}
	}

	for _, drug := range phase3.Drugs {
		id := DrugNodeID(drug)
		if id == "" {
			continue
		}
		g.addNode(GraphNode{ID: id, Type: "drug", Label: drug.Name, Properties: map[string]interface{}{
			"recommendation": drug.Recommendation,
			"evidence_level": drug.EvidenceLevel,
		}})
	}

	for i := range phase3.Variants {
		variant := &phase3.Variants[i]
		if !variant.HasValidRSID() {
			r.bus.Warn(domain.StageEnrichment, domain.SubstageRDFAssembly,
				fmt.Sprintf("Variant %s has no rsID, skipping triple emission", variant.VariantID))
			continue
		}
		variantID := VariantNodeID(variant.RSID)
		g.addNode(GraphNode{ID: variantID, Type: "variant", Label: variant.RSID, Properties: map[string]interface{}{
			"clinical_significance": variant.ClinicalSignificance,
			"consequence_type":      variant.ConsequenceType,
		}})
		g.addEdge(geneID, variantID, EdgeHasVariant)

		if variant.PharmGKB != nil {
			for _, drug := range variant.PharmGKB.Drugs {
				g.addEdge(variantID, r.drugNodeFor(phase3.Drugs, drug.Name), EdgeAffectsDrug)
			}
		}
		for code := range findingsByCode {
			g.addEdge(variantID, SnomedNodeID(code), EdgeHasClinicalFinding)
		}
		if variant.ClinVar != nil {
			for _, phenotype := range variant.ClinVar.Phenotypes {
				diseaseID := r.diseaseNodeID(ctx, phenotype)
				g.addNode(GraphNode{ID: diseaseID, Type: "disease", Label: phenotype})
				g.addEdge(variantID, diseaseID, EdgeAssociatedWithDisease)
			}
		}
		if variant.Literature != nil {
			for _, pmid := range variant.Literature.VariantPubs {
				g.addNode(GraphNode{ID: PublicationNodeID(pmid), Type: "publication", Label: "PMID:" + pmid})
				g.addEdge(variantID, PublicationNodeID(pmid), EdgeHasEvidence)
			}
		}
	}

	return &Phase4Result{
		GeneSymbol: phase3.GeneSymbol,
		Nodes:      g.nodes,
		Edges:      g.edges,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// diseaseNodeID resolves a disease label to its SNOMED concept node,
// falling back to a label-keyed node when the term does not resolve.
func (r *Runner) diseaseNodeID(ctx context.Context, phenotype string) string {
	if match, err := r.resolver.ResolveSNOMED(ctx, phenotype); err == nil && match.Concept.Code != "" {
		return SnomedNodeID(match.Concept.Code)
	}
	return "disease:" + domain.NormalizeKey(phenotype)
}

// drugNodeFor finds the enriched identifier for a drug name; aggregated
// drugs carry the ChEMBL/RxNorm ids that per-variant copies lack.
func (r *Runner) drugNodeFor(drugs []domain.Drug, name string) string {
	key := domain.NormalizeKey(name)
	for _, drug := range drugs {
		if domain.NormalizeKey(drug.Name) == key {
			return DrugNodeID(drug)
		}
	}
	return ""
}
