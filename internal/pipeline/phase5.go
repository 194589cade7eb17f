package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Phase5Result is the exported per-gene JSON-LD document.
type Phase5Result struct {
	GeneSymbol string                 `json:"gene_symbol"`
	Document   map[string]interface{} `json:"document"`
	Timestamp  time.Time              `json:"timestamp"`
}

// RunPhase5 exports the assembled graph as one JSON-LD document.
func (r *Runner) RunPhase5(ctx context.Context, phase3 *Phase3Result, phase4 *Phase4Result) (*Phase5Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrCancelled
	}
	r.bus.Info(domain.StageReport, domain.SubstageExport,
		fmt.Sprintf("Exporting knowledge graph for %s", phase4.GeneSymbol))

	document := map[string]interface{}{
		"@context":    domain.JSONLDContext,
		"@id":         "ugent:gene/" + phase4.GeneSymbol,
		"@type":       "pgx:GeneKnowledgeGraph",
		"gene_symbol": phase4.GeneSymbol,
		"protein_id":  phase3.ProteinID,
		"variants":    phase3.Variants,
		"drugs":       phase3.Drugs,
		"diseases":    phase3.Diseases,
		"nodes":       phase4.Nodes,
		"edges":       phase4.Edges,
		"dataSource":  domain.DataSources,
		"dateCreated": time.Now().UTC().Format(time.RFC3339),
	}
	if phase3.Diplotype != nil {
		document["diplotype"] = phase3.Diplotype
	}
	if phase3.Metabolizer != nil {
		document["metabolizer_phenotype"] = phase3.Metabolizer
	}

	return &Phase5Result{
		GeneSymbol: phase4.GeneSymbol,
		Document:   document,
		Timestamp:  time.Now().UTC(),
	}, nil
}
