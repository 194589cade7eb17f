package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// Phase3Result is the enrichment output handed to phase 4.
type Phase3Result struct {
	GeneSymbol   string                        `json:"gene_symbol"`
	ProteinID    string                        `json:"protein_id"`
	Variants     []domain.Variant              `json:"variants"`
	Drugs        []domain.Drug                 `json:"drugs"`
	Diseases     []string                      `json:"diseases"`
	Findings     []external.SnomedMatch        `json:"findings,omitempty"`
	Publications map[string]domain.Publication `json:"publications"`
	Diplotype    *domain.Diplotype             `json:"diplotype,omitempty"`
	Metabolizer  *domain.MetabolizerPhenotype  `json:"metabolizer,omitempty"`
	Timestamp    time.Time                     `json:"timestamp"`
}

// diseasePatterns recognise disease entities inside PharmGKB phenotype prose.
var diseasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(cardiovascular (?:disease|events?))\b`),
	regexp.MustCompile(`(?i)\b(acute coronary syndrome)\b`),
	regexp.MustCompile(`(?i)\b(myocardial infarction)\b`),
	regexp.MustCompile(`(?i)\b(stent thrombosis)\b`),
	regexp.MustCompile(`(?i)\b(stroke)\b`),
	regexp.MustCompile(`(?i)\b(depress(?:ion|ive disorder))\b`),
	regexp.MustCompile(`(?i)\b(epilepsy)\b`),
	regexp.MustCompile(`(?i)\b(gastro(?:esophageal|-oesophageal) reflux)\b`),
	regexp.MustCompile(`(?i)\b(peptic ulcer)\b`),
	regexp.MustCompile(`(?i)\b(helicobacter pylori infection)\b`),
	regexp.MustCompile(`(?i)\b(thromboembolism)\b`),
	regexp.MustCompile(`(?i)\b(atrial fibrillation)\b`),
	regexp.MustCompile(`(?i)\b(hypercholesterolemia)\b`),
	regexp.MustCompile(`(?i)\b(malignant hyperthermia)\b`),
	regexp.MustCompile(`(?i)\b([a-z]+ (?:cancer|carcinoma|leukemia|lymphoma))\b`),
	regexp.MustCompile(`(?i)\b((?:drug |medication )?toxicity)\b`),
}

// ExtractDiseases mines disease entities from phenotype prose.
func ExtractDiseases(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range diseasePatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			name := strings.ToLower(strings.TrimSpace(match[1]))
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// RunPhase3 enriches validated variants with drug, disease, and literature
// context. Every upstream failure below phase level degrades the affected
// sub-record and continues.
func (r *Runner) RunPhase3(ctx context.Context, phase2 *Phase2Result) (*Phase3Result, error) {
	r.bus.Info(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
		fmt.Sprintf("Enriching drug and disease context for %s", phase2.GeneSymbol))

	result := &Phase3Result{
		GeneSymbol:   phase2.GeneSymbol,
		ProteinID:    phase2.ProteinID,
		Variants:     phase2.Variants,
		Publications: make(map[string]domain.Publication),
		Diplotype:    phase2.Diplotype,
		Metabolizer:  phase2.Metabolizer,
		Timestamp:    time.Now().UTC(),
	}

	drugsByName := make(map[string]*domain.Drug)
	diseaseSet := make(map[string]bool)
	drugPubs := make(map[string][]string)

	var genePubs []string
	if r.config.LiteratureSearch {
		genePubs = r.searchGenePublications(ctx, phase2.GeneSymbol, result.Publications)
	}

	for i := range result.Variants {
		if err := ctx.Err(); err != nil {
			return nil, domain.ErrCancelled
		}
		variant := &result.Variants[i]

		r.collectDrugs(ctx, variant, drugsByName, drugPubs, result)
		collectDiseases(variant, diseaseSet)
		r.attachLiterature(ctx, variant, genePubs, drugPubs, result.Publications)
		r.attachFindings(ctx, variant, result)
		variant.EvidenceConfidence = GradeEvidence(variant, "")
	}

	result.Drugs = sortedDrugs(drugsByName)
	result.Diseases = sortedSet(diseaseSet)
	return result, nil
}

// collectDrugs gathers the variant's PharmGKB drugs and optionally enriches
// them through ChEMBL, RxNorm, OpenFDA, and Europe PMC.
func (r *Runner) collectDrugs(ctx context.Context, variant *domain.Variant, drugsByName map[string]*domain.Drug, drugPubs map[string][]string, result *Phase3Result) {
	if variant.PharmGKB == nil {
		return
	}
	for _, drug := range variant.PharmGKB.Drugs {
		key := domain.NormalizeKey(drug.Name)
		if key == "" {
			continue
		}
		if existing, ok := drugsByName[key]; ok {
			if existing.Recommendation == "" {
				existing.Recommendation = drug.Recommendation
			}
			continue
		}
		enriched := drug
		if r.config.ChEMBLEnrichment {
			if enrichment, err := r.kb.DrugEnrichment(ctx, drug.Name); err == nil && enrichment.Compound.ChEMBLID != "" {
				applyChEMBL(&enriched, enrichment)
			} else if err != nil && !domain.IsNotFound(err) {
				r.bus.Warn(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
					fmt.Sprintf("ChEMBL enrichment failed for %s: %v", drug.Name, err))
			}
		}
		if concept, err := r.resolver.ResolveRxNorm(ctx, drug.Name); err == nil {
			enriched.RxNormCUI = concept.CUI
		}
		if r.config.OpenFDAEnrichment {
			r.mineAdverseReactions(ctx, drug.Name, result)
		}
		if r.config.LiteratureSearch {
			if pmids := r.searchDrugPublications(ctx, drug.Name, result.GeneSymbol, result.Publications); len(pmids) > 0 {
				drugPubs[key] = pmids
			}
		}
		drugsByName[key] = &enriched
	}
}

// applyChEMBL folds the full enrichment block into the drug record: compound
// identity and phase, the ADMET properties, pharmacogene targets, and
// mechanisms of action.
func applyChEMBL(drug *domain.Drug, enrichment *external.ChEMBLEnrichment) {
	compound := enrichment.Compound
	drug.ChEMBLID = compound.ChEMBLID
	drug.MaxPhase = compound.MaxPhase
	drug.Withdrawn = compound.Withdrawn
	drug.Mechanisms = enrichment.Mechanisms
	for _, target := range enrichment.Targets {
		drug.Targets = append(drug.Targets, domain.DrugTarget{
			Name:       target.TargetName,
			ChEMBLID:   target.TargetChEMBL,
			ActionType: target.ActionType,
		})
	}
	if compound.ALogP != nil || compound.HBondDonors != nil || compound.HBondAcceptors != nil ||
		compound.PolarSurfaceArea != nil || compound.RotatableBonds != nil || compound.RO5Violations != nil {
		drug.Properties = &domain.DrugProperties{
			ALogP:            compound.ALogP,
			HBondDonors:      compound.HBondDonors,
			HBondAcceptors:   compound.HBondAcceptors,
			PolarSurfaceArea: compound.PolarSurfaceArea,
			RotatableBonds:   compound.RotatableBonds,
			RO5Violations:    compound.RO5Violations,
		}
	}
}

// mineAdverseReactions surfaces label-mined adverse terms as advisory events
// and maps them to SNOMED clinical findings where resolution succeeds.
func (r *Runner) mineAdverseReactions(ctx context.Context, drugName string, result *Phase3Result) {
	label, err := r.kb.OpenFDA.FetchAdverseReactions(ctx, drugName)
	if err != nil {
		if !domain.IsNotFound(err) {
			r.bus.Warn(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
				fmt.Sprintf("OpenFDA label fetch failed for %s: %v", drugName, err))
		}
		return
	}
	terms := external.MineAdverseTerms(label)
	if len(terms) == 0 {
		return
	}
	codes := make(map[string]string)
	for _, term := range terms {
		match, err := r.resolver.ResolveSNOMED(ctx, term)
		if err != nil {
			continue
		}
		codes[term] = match.Concept.Code
		result.Findings = append(result.Findings, *match)
	}
	payload := map[string]interface{}{"drug": drugName, "adverse_terms": terms}
	if len(codes) > 0 {
		payload["snomed_codes"] = codes
	}
	r.bus.Emit(domain.Event{
		Stage:    domain.StageAnnotation,
		Substage: domain.SubstageDrugDiseaseContext,
		Level:    domain.LevelInfo,
		Message:  fmt.Sprintf("OpenFDA label for %s mentions: %s", drugName, strings.Join(terms, ", ")),
		Payload:  payload,
	})
}

// collectDiseases merges ClinVar phenotypes directly and mines PharmGKB
// phenotype prose.
func collectDiseases(variant *domain.Variant, diseaseSet map[string]bool) {
	if variant.ClinVar != nil {
		for _, phenotype := range variant.ClinVar.Phenotypes {
			name := strings.ToLower(strings.TrimSpace(phenotype))
			if name != "" && name != "not provided" && name != "not specified" {
				diseaseSet[name] = true
			}
		}
	}
	if variant.PharmGKB != nil {
		for _, phenotype := range variant.PharmGKB.Phenotypes {
			for _, disease := range ExtractDiseases(phenotype) {
				diseaseSet[disease] = true
			}
		}
	}
}

// attachLiterature hydrates the variant's PubMed citations, optionally runs a
// variant-specific search, and attaches the gene-level and drug-level
// publication lists. Failed hydrations degrade to placeholders.
func (r *Runner) attachLiterature(ctx context.Context, variant *domain.Variant, genePubs []string, drugPubs map[string][]string, publications map[string]domain.Publication) {
	pmids := external.PubMedIDsOf(variant.RawUniProtData)
	if len(pmids) == 0 && !r.config.LiteratureSearch {
		return
	}

	literature := &domain.Literature{}
	for _, pmid := range pmids {
		literature.VariantPubs = append(literature.VariantPubs, pmid)
		if _, ok := publications[pmid]; ok {
			continue
		}
		pub, err := r.kb.Publication(ctx, pmid)
		if err != nil {
			r.bus.Warn(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
				fmt.Sprintf("Europe PMC hydration failed for PMID %s: %v", pmid, err))
			publications[pmid] = external.PlaceholderPublication(pmid)
			continue
		}
		publications[pmid] = *pub
	}

	if r.config.LiteratureSearch && variant.HasValidRSID() {
		results, err := r.kb.EuropePMC.Search(ctx, variant.RSID, 10)
		if err != nil {
			r.bus.Warn(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
				fmt.Sprintf("Literature search failed for %s: %v", variant.RSID, err))
		}
		for _, pub := range results {
			if pub.PMID == "" {
				continue
			}
			if _, ok := publications[pub.PMID]; !ok {
				publications[pub.PMID] = pub
			}
			literature.VariantPubs = appendUnique(literature.VariantPubs, pub.PMID)
		}
	}

	literature.GenePubs = genePubs
	if variant.PharmGKB != nil {
		for _, drug := range variant.PharmGKB.Drugs {
			if pubs := drugPubs[domain.NormalizeKey(drug.Name)]; len(pubs) > 0 {
				if literature.DrugPubs == nil {
					literature.DrugPubs = make(map[string][]string)
				}
				literature.DrugPubs[drug.Name] = pubs
			}
		}
	}

	if len(literature.VariantPubs) > 0 || len(literature.GenePubs) > 0 || len(literature.DrugPubs) > 0 {
		variant.Literature = literature
	}
}

// searchGenePublications runs the gene-level pharmacogenomics search once per
// gene; hits land in the shared publication table keyed by PMID.
func (r *Runner) searchGenePublications(ctx context.Context, geneSymbol string, publications map[string]domain.Publication) []string {
	results, err := r.kb.EuropePMC.Search(ctx, fmt.Sprintf("%s AND pharmacogenomics", geneSymbol), 10)
	if err != nil {
		r.bus.Warn(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
			fmt.Sprintf("Gene literature search failed for %s: %v", geneSymbol, err))
		return nil
	}
	return recordPublications(results, publications)
}

// searchDrugPublications searches drug-gene co-mentions for one drug.
func (r *Runner) searchDrugPublications(ctx context.Context, drugName, geneSymbol string, publications map[string]domain.Publication) []string {
	results, err := r.kb.EuropePMC.Search(ctx, fmt.Sprintf("%s AND %s", drugName, geneSymbol), 5)
	if err != nil {
		r.bus.Warn(domain.StageAnnotation, domain.SubstageDrugDiseaseContext,
			fmt.Sprintf("Drug literature search failed for %s: %v", drugName, err))
		return nil
	}
	return recordPublications(results, publications)
}

// recordPublications merges search hits into the publication table and
// returns their PMIDs.
func recordPublications(results []domain.Publication, publications map[string]domain.Publication) []string {
	var pmids []string
	for _, pub := range results {
		if pub.PMID == "" {
			continue
		}
		if _, ok := publications[pub.PMID]; !ok {
			publications[pub.PMID] = pub
		}
		pmids = appendUnique(pmids, pub.PMID)
	}
	return pmids
}

// attachFindings maps PharmGKB phenotype strings to SNOMED clinical findings.
func (r *Runner) attachFindings(ctx context.Context, variant *domain.Variant, result *Phase3Result) {
	if variant.PharmGKB == nil {
		return
	}
	for _, phenotype := range variant.PharmGKB.Phenotypes {
		match, err := r.resolver.ResolveSNOMED(ctx, phenotype)
		if err != nil {
			continue
		}
		result.Findings = append(result.Findings, *match)
	}
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func sortedDrugs(drugsByName map[string]*domain.Drug) []domain.Drug {
	keys := make([]string, 0, len(drugsByName))
	for key := range drugsByName {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]domain.Drug, 0, len(keys))
	for _, key := range keys {
		out = append(out, *drugsByName[key])
	}
	return out
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
