package assembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-knowledge-graph/internal/domain"
)

func TestPatientID(t *testing.T) {
	tests := []struct {
		name     string
		profile  map[string]interface{}
		expected string
	}{
		{"mrn wins over patient id", map[string]interface{}{"mrn": "MRN-42", "patient_id": "PT-1"}, "MRN-42"},
		{"upper-case mrn key", map[string]interface{}{"MRN": "MRN-43"}, "MRN-43"},
		{"patient_id fallback", map[string]interface{}{"patient_id": "PT-1"}, "PT-1"},
		{"camel-case id fallback", map[string]interface{}{"patientId": "PT-2"}, "PT-2"},
		{"bare id fallback", map[string]interface{}{"id": "PT-3"}, "PT-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PatientID(tt.profile))
		})
	}

	t.Run("no identity generates one", func(t *testing.T) {
		generated := PatientID(map[string]interface{}{})
		assert.NotEmpty(t, generated)
		assert.Len(t, strings.Split(generated, "-"), 5)
	})
}

func TestNormalise(t *testing.T) {
	profile := map[string]interface{}{
		"mrn":        "MRN-42",
		"patient_id": "PT-1",
		"name":       "Test Patient",
		"demographics": map[string]interface{}{
			"first_name": "Jordan",
			"last_name":  "Okafor",
			"birth_date": "1985-02-14",
			"gender":     "female",
			"weight_kg":  70.5,
			"height_cm":  168.0,
		},
		"current_medications": []interface{}{
			map[string]interface{}{"name": "Clopidogrel"},
		},
	}

	doc := Normalise(profile)

	assert.Equal(t, domain.JSONLDContext, doc["@context"])
	assert.Equal(t, PersonURIPrefix+"MRN-42", doc["@id"])
	assert.Equal(t, personTypes, doc["@type"])
	assert.Equal(t, "MRN-42", doc["identifier"])
	assert.Equal(t, "MRN-42", doc["patient_id"])
	assert.NotEmpty(t, doc["dateCreated"])
	assert.Equal(t, "Test Patient", doc["foaf:name"])

	// Demographics translate to foaf/schema properties.
	assert.Equal(t, "Jordan", doc["foaf:firstName"])
	assert.Equal(t, "Okafor", doc["foaf:lastName"])
	assert.Equal(t, "1985-02-14", doc["schema:birthDate"])
	assert.Equal(t, "female", doc["schema:gender"])

	weight, ok := doc["schema:weight"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "schema:QuantitativeValue", weight["@type"])
	assert.Equal(t, 70.5, weight["schema:value"])
	assert.Equal(t, "kg", weight["schema:unitText"])

	height, ok := doc["schema:height"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cm", height["schema:unitText"])

	// The carried patient id survives as a legacy identifier.
	other, ok := doc["other_identifiers"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "PT-1", other["legacy_patient_id"])

	// Shallow clinical subtrees fold into clinical_information.
	clinical, ok := doc["clinical_information"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, clinical, "demographics")
	assert.Contains(t, clinical, "current_medications")
}

func TestNormalise_Idempotent(t *testing.T) {
	profile := map[string]interface{}{
		"patient_id": "PT-9",
		"clinical_information": map[string]interface{}{
			"demographics": map[string]interface{}{"gender": "male"},
		},
		"pharmacogenomics_profile": map[string]interface{}{"total_variants": 3},
		"dataSource":               []string{"UniProt"},
	}

	first := Normalise(profile)
	second := Normalise(first)

	delete(first, "dateCreated")
	delete(second, "dateCreated")
	assert.Equal(t, first, second)
}

func TestAssignExactRSIDs(t *testing.T) {
	tests := []struct {
		name     string
		variant  domain.Variant
		expected string
	}{
		{
			name:     "canonical rsid is kept",
			variant:  domain.Variant{RSID: "rs4244285"},
			expected: "rs4244285",
		},
		{
			name:     "malformed rsid is cleared",
			variant:  domain.Variant{RSID: "4244285"},
			expected: "",
		},
		{
			name: "xref with matching alt allele is preferred",
			variant: domain.Variant{
				RSID:                "bogus",
				AlternativeSequence: "T",
				RawUniProtData: map[string]interface{}{
					"xrefs": []interface{}{
						map[string]interface{}{"name": "dbSNP", "id": "rs1111111", "alternativeSequence": "A"},
						map[string]interface{}{"name": "dbSNP", "id": "rs2222222", "alternativeSequence": "T"},
					},
				},
			},
			expected: "rs2222222",
		},
		{
			name: "first canonical xref is the fallback",
			variant: domain.Variant{
				RawUniProtData: map[string]interface{}{
					"xrefs": []interface{}{
						map[string]interface{}{"name": "Ensembl", "id": "ENSG000001"},
						map[string]interface{}{"name": "dbSNP", "id": "not-an-rsid"},
						map[string]interface{}{"name": "dbSNP", "id": "rs3333333"},
					},
				},
			},
			expected: "rs3333333",
		},
		{
			name: "nested clinvar identifier is the last resort",
			variant: domain.Variant{
				RawPharmGKBData: map[string]interface{}{
					"clinvar": map[string]interface{}{"rsid": "rs4444444"},
				},
			},
			expected: "rs4444444",
		},
		{
			name:     "never invented",
			variant:  domain.Variant{VariantID: "VAR_001"},
			expected: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variants := []domain.Variant{tt.variant}
			AssignExactRSIDs(variants)
			assert.Equal(t, tt.expected, variants[0].RSID)
		})
	}
}

func TestAssemble(t *testing.T) {
	run := &domain.RunResult{
		Variants: []domain.Variant{
			{
				GeneSymbol:           "CYP2C19",
				RSID:                 "rs4244285",
				ClinicalSignificance: "Drug response",
				Literature:           &domain.Literature{VariantPubs: []string{"12345", "67890"}},
			},
			{GeneSymbol: "CYP2C19", RSID: "rs12248560"},
			{GeneSymbol: "CYP2D6", ClinicalSignificance: "Pathogenic"},
		},
		GeneResults: []domain.GeneResult{
			{Gene: "CYP2C19", Success: true},
		},
		Drugs:    []domain.Drug{{Name: "Clopidogrel"}},
		Diseases: []string{"stroke"},
		Publications: map[string]domain.Publication{
			"12345": {PMID: "12345", Title: "CYP2C19 loss-of-function alleles"},
			"67890": {PMID: "67890", Title: "Clopidogrel response"},
		},
		Linking: &domain.LinkingResult{},
		Adjustments: []domain.EthnicityAdjustment{
			{Drug: "Clopidogrel", Gene: "CYP2C19"},
		},
	}
	metabolizers := []domain.MetabolizerPhenotype{
		{GeneSymbol: "CYP2C19", Diplotype: "*2/*17", Phenotype: "Intermediate Metabolizer"},
	}
	diplotypes := []domain.Diplotype{
		{GeneSymbol: "CYP2C19", Notation: "*2/*17"},
	}

	doc := Normalise(map[string]interface{}{"patient_id": "PT-1"})
	doc = Assemble(doc, run, metabolizers, diplotypes)

	profile, ok := doc["pharmacogenomics_profile"].(*domain.PharmacogenomicsProfile)
	require.True(t, ok)
	assert.Equal(t, 3, profile.TotalVariants)
	assert.Equal(t, []string{"CYP2C19"}, profile.GenesAnalyzed)
	assert.Equal(t, 2, profile.VariantsByGene["CYP2C19"])
	assert.Equal(t, 1, profile.VariantsByGene["CYP2D6"])
	assert.Equal(t, 1, profile.ClinicalSummary["Drug response"])
	assert.Equal(t, 1, profile.ClinicalSummary["Pathogenic"])
	assert.Equal(t, 2, profile.LiteratureSummary["CYP2C19"])
	assert.Equal(t, run.Drugs, profile.AffectedDrugs)
	assert.Equal(t, run.Diseases, profile.AssociatedDiseases)
	assert.Equal(t, metabolizers, profile.Metabolizers)
	assert.Equal(t, diplotypes, profile.Diplotypes)

	// The PMID-unique publication table rides along with the document.
	assert.Equal(t, run.Publications, doc["publications"])

	assert.Equal(t, run.Linking, doc["variant_linking"])
	assert.Equal(t, run.Adjustments, doc["ethnicity_medication_adjustments"])
	assert.Equal(t, domain.DataSources, doc["dataSource"])

	// The run's variants are copied, not mutated in place.
	variants, ok := doc["variants"].([]domain.Variant)
	require.True(t, ok)
	assert.Len(t, variants, 3)
}

func TestProfileFromPatient(t *testing.T) {
	patient := &domain.Patient{
		PatientID: "PT-7",
		MRN:       "MRN-7",
		Name:      "Test Patient",
		Demographics: domain.Demographics{
			FirstName:   "Amina",
			Gender:      "female",
			WeightKg:    62,
			Ethnicities: []string{"East Asian"},
		},
		Medications: []domain.Medication{{Name: "Warfarin"}},
	}

	profile := ProfileFromPatient(patient)
	assert.Equal(t, "PT-7", profile["patient_id"])
	assert.Equal(t, "MRN-7", profile["mrn"])

	clinical, ok := profile["clinical_information"].(map[string]interface{})
	require.True(t, ok)
	demographics, ok := clinical["demographics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Amina", demographics["first_name"])
	assert.Equal(t, 62.0, demographics["weight_kg"])
	assert.Equal(t, []string{"East Asian"}, demographics["ethnicity"])
	assert.NotContains(t, demographics, "height_cm")
}
