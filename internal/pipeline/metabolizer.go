package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// AlleleFunction is the functionality class of one star allele.
type AlleleFunction string

const (
	FunctionNormal    AlleleFunction = "Normal"
	FunctionDecreased AlleleFunction = "Decreased"
	FunctionIncreased AlleleFunction = "Increased"
	FunctionNone      AlleleFunction = "No function"
	FunctionUnknown   AlleleFunction = "Unknown"
)

// Metabolizer phenotype labels.
const (
	PhenotypeNormal       = "Normal Metabolizer"
	PhenotypePoor         = "Poor Metabolizer"
	PhenotypeIntermediate = "Intermediate Metabolizer"
	PhenotypeUltrarapid   = "Ultrarapid Metabolizer"
	PhenotypeUnknown      = "Unknown Metabolizer"
)

var alleleMu sync.RWMutex

// alleleFunctions seeds the PharmGKB haplotype functionality table for
// CYP2C19 and CYP2D6. Broader gene coverage needs a data file the upstream
// sources do not ship; RegisterAlleleFunction extends the table at runtime.
var alleleFunctions = map[string]map[string]AlleleFunction{
	"CYP2C19": {
		"*1":  FunctionNormal,
		"*2":  FunctionNone,
		"*3":  FunctionNone,
		"*4":  FunctionNone,
		"*5":  FunctionNone,
		"*6":  FunctionNone,
		"*7":  FunctionNone,
		"*8":  FunctionNone,
		"*9":  FunctionDecreased,
		"*10": FunctionDecreased,
		"*17": FunctionIncreased,
	},
	"CYP2D6": {
		"*1":  FunctionNormal,
		"*2":  FunctionNormal,
		"*3":  FunctionNone,
		"*4":  FunctionNone,
		"*5":  FunctionNone,
		"*6":  FunctionNone,
		"*9":  FunctionDecreased,
		"*10": FunctionDecreased,
		"*17": FunctionDecreased,
		"*41": FunctionDecreased,
	},
}

// RegisterAlleleFunction extends the functionality table for a gene.
func RegisterAlleleFunction(geneSymbol, allele string, fn AlleleFunction) {
	alleleMu.Lock()
	defer alleleMu.Unlock()
	gene := strings.ToUpper(geneSymbol)
	if alleleFunctions[gene] == nil {
		alleleFunctions[gene] = make(map[string]AlleleFunction)
	}
	alleleFunctions[gene][allele] = fn
}

// FunctionOf looks up the functionality class of one allele.
func FunctionOf(geneSymbol, allele string) AlleleFunction {
	alleleMu.RLock()
	defer alleleMu.RUnlock()
	if table, ok := alleleFunctions[strings.ToUpper(geneSymbol)]; ok {
		if fn, ok := table[allele]; ok {
			return fn
		}
	}
	return FunctionUnknown
}

// CombineFunctions maps an allele functionality pair to a metabolizer
// phenotype, deterministically.
func CombineFunctions(a, b AlleleFunction) string {
	switch {
	case a == FunctionIncreased || b == FunctionIncreased:
		return PhenotypeUltrarapid
	case a == FunctionNormal && b == FunctionNormal:
		return PhenotypeNormal
	case (a == FunctionDecreased && b == FunctionDecreased) ||
		(a == FunctionNone && b == FunctionNone) ||
		(a == FunctionDecreased && b == FunctionNone) ||
		(a == FunctionNone && b == FunctionDecreased):
		return PhenotypePoor
	case (a == FunctionNormal && (b == FunctionDecreased || b == FunctionNone)) ||
		(b == FunctionNormal && (a == FunctionDecreased || a == FunctionNone)):
		return PhenotypeIntermediate
	case a == FunctionNormal || b == FunctionNormal:
		return PhenotypeNormal
	default:
		return PhenotypeUnknown
	}
}

// MetabolizerFromDiplotype derives the predicted metabolizer phenotype for
// a gene's selected diplotype.
func MetabolizerFromDiplotype(diplotype *domain.Diplotype) *domain.MetabolizerPhenotype {
	if diplotype == nil || len(diplotype.Alleles) == 0 {
		return nil
	}
	first := diplotype.Alleles[0]
	second := first
	if len(diplotype.Alleles) > 1 {
		second = diplotype.Alleles[1]
	}
	fnA := FunctionOf(diplotype.GeneSymbol, first)
	fnB := FunctionOf(diplotype.GeneSymbol, second)
	return &domain.MetabolizerPhenotype{
		GeneSymbol:    diplotype.GeneSymbol,
		Diplotype:     diplotype.Notation,
		Functionality: fmt.Sprintf("%s/%s", fnA, fnB),
		Phenotype:     CombineFunctions(fnA, fnB),
	}
}
