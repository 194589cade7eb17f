package assembler

import (
	"strings"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// DocumentAssembler is the orchestrator's assembly hook: normalise the
// patient profile, then attach the run's results.
type DocumentAssembler struct{}

// AssembleDocument produces the patient-level JSON-LD document.
func (DocumentAssembler) AssembleDocument(patient *domain.Patient, run *domain.RunResult, metabolizers []domain.MetabolizerPhenotype, diplotypes []domain.Diplotype) map[string]interface{} {
	doc := Normalise(ProfileFromPatient(patient))
	return Assemble(doc, run, metabolizers, diplotypes)
}

// Assemble attaches the pharmacogenomics profile, the enriched variants, the
// linking result, and the ethnicity adjustments to a normalised document.
// Re-assembly with the same inputs is idempotent apart from dateCreated.
func Assemble(doc map[string]interface{}, run *domain.RunResult, metabolizers []domain.MetabolizerPhenotype, diplotypes []domain.Diplotype) map[string]interface{} {
	variants := make([]domain.Variant, len(run.Variants))
	copy(variants, run.Variants)
	AssignExactRSIDs(variants)

	profile := buildProfile(run, variants, metabolizers, diplotypes)
	doc["pharmacogenomics_profile"] = profile
	doc["variants"] = variants
	if len(run.Publications) > 0 {
		doc["publications"] = run.Publications
	}
	if run.Linking != nil {
		doc["variant_linking"] = run.Linking
	}
	if len(run.Adjustments) > 0 {
		doc["ethnicity_medication_adjustments"] = run.Adjustments
	}
	doc["dataSource"] = domain.DataSources
	return doc
}

func buildProfile(run *domain.RunResult, variants []domain.Variant, metabolizers []domain.MetabolizerPhenotype, diplotypes []domain.Diplotype) *domain.PharmacogenomicsProfile {
	profile := &domain.PharmacogenomicsProfile{
		TotalVariants:      len(variants),
		Variants:           variants,
		AffectedDrugs:      run.Drugs,
		AssociatedDiseases: run.Diseases,
		Diplotypes:         diplotypes,
		Metabolizers:       metabolizers,
		VariantsByGene:     make(map[string]int),
		ClinicalSummary:    make(map[string]int),
		LiteratureSummary:  make(map[string]int),
		VariantLinking:     run.Linking,
	}
	for _, result := range run.GeneResults {
		profile.GenesAnalyzed = append(profile.GenesAnalyzed, result.Gene)
	}
	for i := range variants {
		variant := &variants[i]
		profile.VariantsByGene[variant.GeneSymbol]++
		if variant.ClinicalSignificance != "" {
			profile.ClinicalSummary[variant.ClinicalSignificance]++
		}
		if variant.Literature != nil {
			profile.LiteratureSummary[variant.GeneSymbol] += len(variant.Literature.VariantPubs)
		}
	}
	return profile
}

// AssignExactRSIDs runs the final rsID assignment pass. A direct rsID wins
// when it is canonical; otherwise an xref whose alt allele matches the
// variant is preferred, then a nested ClinVar identifier. An rsID is never
// invented.
func AssignExactRSIDs(variants []domain.Variant) {
	for i := range variants {
		variant := &variants[i]
		if variant.HasValidRSID() {
			continue
		}
		variant.RSID = ""
		if rsid := rsidFromXrefs(variant); rsid != "" {
			variant.RSID = rsid
			continue
		}
		if rsid := rsidFromClinVar(variant); rsid != "" {
			variant.RSID = rsid
		}
	}
}

// rsidFromXrefs prefers a dbSNP xref carrying the variant's alternative
// sequence, falling back to any canonical dbSNP xref.
func rsidFromXrefs(variant *domain.Variant) string {
	if variant.RawUniProtData == nil {
		return ""
	}
	fallback := ""
	for _, xref := range domain.GetMapSlice(variant.RawUniProtData, "xrefs") {
		if !strings.EqualFold(domain.GetString(xref, "name"), "dbsnp") {
			continue
		}
		id := domain.GetString(xref, "id")
		if !domain.RSIDPattern.MatchString(id) {
			continue
		}
		alt := domain.GetString(xref, "alternativeSequence", "alternative_sequence", "altAllele")
		if alt != "" && alt == variant.AlternativeSequence {
			return id
		}
		if fallback == "" {
			fallback = id
		}
	}
	return fallback
}

// rsidFromClinVar inspects a nested ClinVar block in the raw payload.
func rsidFromClinVar(variant *domain.Variant) string {
	for _, raw := range []map[string]interface{}{variant.RawUniProtData, variant.RawPharmGKBData} {
		if raw == nil {
			continue
		}
		clinvar := domain.GetMap(raw, "clinvar", "clinVar")
		if clinvar == nil {
			continue
		}
		id := domain.GetString(clinvar, "rsid", "rsId", "rs_id")
		if domain.RSIDPattern.MatchString(id) {
			return id
		}
	}
	return ""
}
