package domain

import (
	"regexp"
	"time"
)

// RSIDPattern matches a canonical dbSNP reference SNP identifier.
var RSIDPattern = regexp.MustCompile(`^rs\d+$`)

// MedicationSource identifies where a medication record originated.
type MedicationSource string

const (
	MedicationSourceEvidenceBased MedicationSource = "evidence_based"
	MedicationSourceChEMBL        MedicationSource = "chembl"
	MedicationSourceRxNorm        MedicationSource = "rxnorm"
	MedicationSourceManual        MedicationSource = "manual"
)

// Patient is the root aggregate for a single analysis run. It is immutable
// once assembled; re-running the pipeline produces a new profile instance.
type Patient struct {
	PatientID        string                   `json:"patient_id" validate:"required"`
	MRN              string                   `json:"mrn,omitempty"`
	Name             string                   `json:"name,omitempty"`
	Demographics     Demographics             `json:"demographics"`
	Conditions       []Condition              `json:"current_conditions"`
	Medications      []Medication             `json:"current_medications"`
	LabResults       []LabResult              `json:"lab_results,omitempty"`
	LifestyleFactors []LifestyleFactor        `json:"lifestyle_factors,omitempty"`
	OrganFunction    map[string]interface{}   `json:"organ_function,omitempty"`
	Profile          *PharmacogenomicsProfile `json:"pharmacogenomics_profile,omitempty"`
}

// Demographics carries the shallow demographic attributes translated into
// foaf/schema properties by the normaliser.
type Demographics struct {
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	BirthDate   string   `json:"birth_date,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	WeightKg    float64  `json:"weight_kg,omitempty"`
	HeightCm    float64  `json:"height_cm,omitempty"`
	Ethnicities []string `json:"ethnicity,omitempty"`
}

// PrimaryEthnicity returns the first recorded ethnicity, or "".
func (d Demographics) PrimaryEthnicity() string {
	if len(d.Ethnicities) == 0 {
		return ""
	}
	return d.Ethnicities[0]
}

// Condition is a diagnosed condition. The SNOMED code, when present, is the
// join key to variant-derived diseases.
type Condition struct {
	SnomedCode     string `json:"snomed_code,omitempty"`
	PreferredLabel string `json:"preferred_label" validate:"required"`
	DiagnosisDate  string `json:"diagnosis_date,omitempty"`
	Status         string `json:"status,omitempty"`
}

// Medication is a currently prescribed medication. Owned by Patient;
// link edges reference it by name, never by pointer.
type Medication struct {
	Name                  string           `json:"name" validate:"required"`
	SnomedCode            string           `json:"snomed_code,omitempty"`
	RxNormCUI             string           `json:"rxnorm_cui,omitempty"`
	ChEMBLID              string           `json:"chembl_id,omitempty"`
	DrugBankID            string           `json:"drugbank_id,omitempty"`
	Dose                  string           `json:"dose,omitempty"`
	Unit                  string           `json:"unit,omitempty"`
	Frequency             string           `json:"frequency,omitempty"`
	TreatsConditionSnomed string           `json:"treats_condition_snomed,omitempty"`
	Purpose               string           `json:"purpose,omitempty"`
	Source                MedicationSource `json:"source,omitempty"`
}

// LabResult is a typed attribute record carried through unchanged.
type LabResult struct {
	TestName  string  `json:"test_name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	LoincCode string  `json:"loinc_code,omitempty"`
	Date      string  `json:"date,omitempty"`
}

// LifestyleFactor is a typed attribute record; smoking, alcohol and diet
// factors may carry SNOMED codes.
type LifestyleFactor struct {
	Factor     string `json:"factor"`
	Value      string `json:"value"`
	SnomedCode string `json:"snomed_code,omitempty"`
}

// Gene identifies an analyzed gene, keyed by symbol.
type Gene struct {
	Symbol    string   `json:"symbol" validate:"required"`
	ProteinID string   `json:"protein_id,omitempty"`
	HGNCID    string   `json:"hgnc_id,omitempty"`
	EntrezID  string   `json:"entrez_id,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
}

// Variant is the richest entity in the model. Raw upstream payloads are
// carried for faithful re-emission downstream.
type Variant struct {
	GeneSymbol           string `json:"gene_symbol"`
	VariantID            string `json:"variant_id,omitempty"`
	RSID                 string `json:"rsid,omitempty"`
	ProteinID            string `json:"protein_id,omitempty"`
	ClinicalSignificance string `json:"clinical_significance,omitempty"`
	ConsequenceType      string `json:"consequence_type,omitempty"`
	WildType             string `json:"wild_type,omitempty"`
	AlternativeSequence  string `json:"alternative_sequence,omitempty"`
	BeginPosition        int    `json:"begin_position,omitempty"`
	EndPosition          int    `json:"end_position,omitempty"`
	Codon                string `json:"codon,omitempty"`
	GenomicNotation      string `json:"genomic_notation,omitempty"`
	HGVSNotation         string `json:"hgvs_notation,omitempty"`

	ClinVar    *ClinVarEvidence  `json:"clinvar,omitempty"`
	PharmGKB   *PharmGKBEvidence `json:"pharmgkb,omitempty"`
	Literature *Literature       `json:"literature,omitempty"`

	PopulationFrequencies      map[string]float64 `json:"population_frequencies,omitempty"`
	PatientPopulationFrequency *float64           `json:"patient_population_frequency,omitempty"`
	PopulationSignificance     string             `json:"population_significance,omitempty"`
	EthnicityContext           string             `json:"ethnicity_context,omitempty"`

	EvidenceConfidence *EvidenceConfidence `json:"evidence_confidence,omitempty"`

	RawUniProtData  map[string]interface{} `json:"raw_uniprot_data,omitempty"`
	RawPharmGKBData map[string]interface{} `json:"raw_pharmgkb_data,omitempty"`
}

// HasValidRSID reports whether the variant carries a canonical rsID. Variants
// without one stay in the JSON-LD variant array but are excluded from any
// triple store keyed on dbSNP URIs.
func (v *Variant) HasValidRSID() bool {
	return v.RSID != "" && RSIDPattern.MatchString(v.RSID)
}

// Population significance bands for the patient's primary ethnicity.
const (
	PopulationCommon       = "common"        // >= 5%
	PopulationLowFrequency = "low_frequency" // 1–5%
	PopulationRare         = "rare"          // 0.1–1%
	PopulationUltraRare    = "ultra_rare"    // < 0.1%
)

// ClassifyPopulationFrequency bands an allele frequency.
func ClassifyPopulationFrequency(freq float64) string {
	switch {
	case freq >= 0.05:
		return PopulationCommon
	case freq >= 0.01:
		return PopulationLowFrequency
	case freq >= 0.001:
		return PopulationRare
	default:
		return PopulationUltraRare
	}
}

// ClinVarEvidence is the normalised ClinVar attachment for a variant.
type ClinVarEvidence struct {
	ClinVarID    string   `json:"clinvar_id"`
	ReviewStatus string   `json:"review_status"`
	StarRating   int      `json:"star_rating"`
	Phenotypes   []string `json:"phenotypes,omitempty"`
}

// PharmGKBEvidence is the normalised PharmGKB attachment for a variant.
type PharmGKBEvidence struct {
	Annotations []PharmGKBAnnotation `json:"annotations,omitempty"`
	Drugs       []Drug               `json:"drugs,omitempty"`
	Phenotypes  []string             `json:"phenotypes,omitempty"`
}

// PharmGKBAnnotation is one normalised clinical annotation.
type PharmGKBAnnotation struct {
	AnnotationID            string   `json:"annotation_id"`
	AccessionID             string   `json:"accession_id,omitempty"`
	EvidenceLevel           string   `json:"evidence_level,omitempty"`
	Score                   float64  `json:"score,omitempty"`
	ClinicalAnnotationTypes []string `json:"clinical_annotation_types,omitempty"`
	RelatedChemicals        []string `json:"related_chemicals,omitempty"`
	AllelePhenotypes        []string `json:"allele_phenotypes,omitempty"`
	History                 []string `json:"history,omitempty"`
}

// Drug is a variant-affected drug, linked to one or more variants.
type Drug struct {
	Name                 string          `json:"name"`
	Recommendation       string          `json:"recommendation,omitempty"`
	EvidenceLevel        string          `json:"evidence_level,omitempty"`
	ChEMBLID             string          `json:"chembl_id,omitempty"`
	RxNormCUI            string          `json:"rxnorm_cui,omitempty"`
	SnomedCode           string          `json:"snomed_code,omitempty"`
	PharmGKBAnnotationID string          `json:"pharmgkb_annotation_id,omitempty"`
	MaxPhase             float64         `json:"max_phase,omitempty"`
	Withdrawn            bool            `json:"withdrawn,omitempty"`
	Targets              []DrugTarget    `json:"targets,omitempty"`
	Mechanisms           []string        `json:"mechanisms,omitempty"`
	Properties           *DrugProperties `json:"properties,omitempty"`
}

// DrugTarget is one mechanism row against a pharmacogene, carried from the
// ChEMBL enrichment.
type DrugTarget struct {
	Name       string `json:"name"`
	ChEMBLID   string `json:"chembl_id,omitempty"`
	ActionType string `json:"action_type,omitempty"`
}

// DrugProperties carries the ADMET-relevant molecular properties of the
// selected ChEMBL compound.
type DrugProperties struct {
	ALogP            *float64 `json:"alogp,omitempty"`
	HBondDonors      *int     `json:"hbd,omitempty"`
	HBondAcceptors   *int     `json:"hba,omitempty"`
	PolarSurfaceArea *float64 `json:"psa,omitempty"`
	RotatableBonds   *int     `json:"rotatable_bonds,omitempty"`
	RO5Violations    *int     `json:"ro5_violations,omitempty"`
}

// Literature groups the publication references attached to a variant.
type Literature struct {
	GenePubs    []string            `json:"gene_pubs,omitempty"`
	VariantPubs []string            `json:"variant_pubs,omitempty"`
	DrugPubs    map[string][]string `json:"drug_pubs,omitempty"`
}

// Publication is content-addressed by PMID; the publication table holds
// exactly one row per PMID.
type Publication struct {
	PMID          string   `json:"pmid"`
	PMCID         string   `json:"pmcid,omitempty"`
	DOI           string   `json:"doi,omitempty"`
	Title         string   `json:"title,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Journal       string   `json:"journal,omitempty"`
	Year          int      `json:"year,omitempty"`
	Abstract      string   `json:"abstract,omitempty"`
	CitationCount int      `json:"citation_count,omitempty"`
	FullTextURL   string   `json:"full_text_url,omitempty"`
	PDFURL        string   `json:"pdf_url,omitempty"`
	OpenAccess    bool     `json:"open_access,omitempty"`
}

// Diplotype is the ordered pair of star alleles selected for a gene.
type Diplotype struct {
	GeneSymbol string   `json:"gene_symbol"`
	Alleles    []string `json:"alleles"`
	Notation   string   `json:"diplotype"`
	Zygosity   string   `json:"zygosity,omitempty"`
	Variants   []string `json:"variant_ids,omitempty"`
}

// MetabolizerPhenotype is the predicted enzyme activity class derived from a
// diplotype via the allele functionality table.
type MetabolizerPhenotype struct {
	GeneSymbol    string `json:"gene_symbol"`
	Diplotype     string `json:"diplotype"`
	Functionality string `json:"functionality"`
	Phenotype     string `json:"phenotype"`
}

// EvidenceConfidence carries the graded interpretation of all evidence
// sources attached to a variant plus the binned overall confidence.
type EvidenceConfidence struct {
	PharmGKBLevel          string  `json:"pharmgkb_level,omitempty"`
	PharmGKBInterpretation string  `json:"pharmgkb_interpretation,omitempty"`
	CPICLevel              string  `json:"cpic_level,omitempty"`
	CPICInterpretation     string  `json:"cpic_interpretation,omitempty"`
	ClinVarStars           *int    `json:"clinvar_stars,omitempty"`
	ClinVarInterpretation  string  `json:"clinvar_interpretation,omitempty"`
	Score                  float64 `json:"score"`
	Overall                string  `json:"overall"`
}

// PharmacogenomicsProfile is owned by Patient and recomputed per run.
type PharmacogenomicsProfile struct {
	GenesAnalyzed      []string              `json:"genes_analyzed"`
	TotalVariants      int                   `json:"total_variants"`
	VariantsByGene     map[string]int        `json:"variants_by_gene,omitempty"`
	Variants           []Variant             `json:"variants"`
	AffectedDrugs      []Drug                `json:"affected_drugs"`
	AssociatedDiseases []string              `json:"associated_diseases"`
	Diplotypes         []Diplotype           `json:"diplotypes,omitempty"`
	Metabolizers       []MetabolizerPhenotype `json:"metabolizer_phenotypes,omitempty"`
	ClinicalSummary    map[string]int        `json:"clinical_summary"`
	LiteratureSummary  map[string]int        `json:"literature_summary"`
	VariantLinking     *LinkingResult        `json:"variant_linking,omitempty"`
}

// LinkType tags a directed link edge.
type LinkType string

const (
	LinkPatientMedicationAffectedByVariant LinkType = "PATIENT_MEDICATION_AFFECTED_BY_VARIANT"
	LinkConditionMatchesVariantDisease     LinkType = "CONDITION_MATCHES_VARIANT_DISEASE"
	LinkVariantAssociatedWithPhenotype     LinkType = "VARIANT_ASSOCIATED_WITH_PHENOTYPE"
	LinkDrugAffectedByVariant              LinkType = "DRUG_AFFECTED_BY_VARIANT"
)

// MatchMethod records how a link or conflict was established.
type MatchMethod string

const (
	MatchExactName  MatchMethod = "EXACT_NAME"
	MatchSnomedCode MatchMethod = "SNOMED_CT_CODE"
)

// Link is a directed edge between a patient-owned record and a
// variant-derived entity. Endpoints are referenced by identifier.
type Link struct {
	LinkType             LinkType    `json:"link_type"`
	Source               string      `json:"source"`
	Target               string      `json:"target"`
	GeneSymbol           string      `json:"gene_symbol,omitempty"`
	MatchMethod          MatchMethod `json:"match_method"`
	SnomedCode           string      `json:"snomed_code,omitempty"`
	MetabolizerPhenotype string      `json:"metabolizer_phenotype,omitempty"`
	Diplotype            string      `json:"diplotype,omitempty"`
	Details              string      `json:"details,omitempty"`
}

// ConflictSeverity ranks a detected drug–gene conflict.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "CRITICAL"
	SeverityWarning  ConflictSeverity = "WARNING"
	SeverityInfo     ConflictSeverity = "INFO"
)

// AffectingVariant identifies a variant implicated in a conflict.
type AffectingVariant struct {
	Gene string `json:"gene"`
	RSID string `json:"rsid,omitempty"`
}

// Conflict is a detected mismatch between a prescribed medication and a
// variant-affected drug. AffectingVariants is always non-empty.
type Conflict struct {
	DrugName             string             `json:"drug_name"`
	PatientMedicationRef string             `json:"patient_medication_ref"`
	Severity             ConflictSeverity   `json:"severity"`
	AffectingVariants    []AffectingVariant `json:"affecting_variants"`
	Recommendation       string             `json:"recommendation,omitempty"`
	MatchMethod          MatchMethod        `json:"match_method"`
	SnomedCode           string             `json:"snomed_code,omitempty"`
	Timestamp            time.Time          `json:"timestamp"`
}

// LinkingResult is the linker's output attached to the profile.
type LinkingResult struct {
	Links     []Link         `json:"links"`
	Conflicts []Conflict     `json:"conflicts"`
	Summary   LinkingSummary `json:"summary"`
}

// LinkingSummary aggregates link and conflict counts.
type LinkingSummary struct {
	LinksByType         map[LinkType]int         `json:"links_by_type"`
	ConflictsBySeverity map[ConflictSeverity]int `json:"conflicts_by_severity"`
	TotalLinks          int                      `json:"total_links"`
	TotalConflicts      int                      `json:"total_conflicts"`
	PatientMedications  int                      `json:"patient_medications"`
	PatientConditions   int                      `json:"patient_conditions"`
	TotalVariants       int                      `json:"total_variants"`
}

// EthnicityAdjustment is a closed-rule dosing caution derived from the
// patient's ancestry and the genes with detected variants.
type EthnicityAdjustment struct {
	Drug       string `json:"drug"`
	Gene       string `json:"gene"`
	Adjustment string `json:"adjustment"`
	Strength   string `json:"strength"`
	Rationale  string `json:"rationale,omitempty"`
}

// GeneResult is the per-gene outcome returned by a pipeline worker.
type GeneResult struct {
	Success     bool                  `json:"success"`
	Gene        string                `json:"gene"`
	Error       string                `json:"error,omitempty"`
	Variants    []Variant             `json:"variants,omitempty"`
	Drugs       []Drug                `json:"drugs,omitempty"`
	Diseases    []string              `json:"diseases,omitempty"`
	Diplotype   *Diplotype            `json:"diplotype,omitempty"`
	Metabolizer *MetabolizerPhenotype `json:"metabolizer,omitempty"`
	Duration    time.Duration         `json:"duration"`
}

// RunResult is the aggregate outcome of a single- or multi-gene run.
type RunResult struct {
	RunID        string                 `json:"run_id"`
	Success      bool                   `json:"success"`
	Error        string                 `json:"error,omitempty"`
	GeneResults  []GeneResult           `json:"gene_results"`
	Variants     []Variant              `json:"variants"`
	Drugs        []Drug                 `json:"drugs"`
	Diseases     []string               `json:"diseases"`
	Publications map[string]Publication `json:"publications,omitempty"`
	Document     map[string]interface{} `json:"document,omitempty"`
	Linking      *LinkingResult         `json:"linking,omitempty"`
	Adjustments  []EthnicityAdjustment  `json:"ethnicity_medication_adjustments,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
}
