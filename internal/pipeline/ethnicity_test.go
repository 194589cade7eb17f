package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-knowledge-graph/internal/domain"
)

func adjustmentDrugs(adjustments []domain.EthnicityAdjustment) []string {
	var drugs []string
	for _, a := range adjustments {
		drugs = append(drugs, a.Drug)
	}
	return drugs
}

func TestEthnicityAdjustments(t *testing.T) {
	cyp2c19 := []domain.Variant{{GeneSymbol: "CYP2C19", RSID: "rs4244285"}}

	tests := []struct {
		name          string
		ethnicity     string
		variants      []domain.Variant
		expectedDrugs []string
	}{
		{
			name:      "east asian with cyp2c19 variant",
			ethnicity: "East Asian",
			variants:  cyp2c19,
			// Clopidogrel from the CYP2C19 rule, warfarin from the
			// gene-independent non-European rule.
			expectedDrugs: []string{"Clopidogrel", "Warfarin"},
		},
		{
			name:          "east asian without cyp2c19 variant",
			ethnicity:     "East Asian",
			variants:      []domain.Variant{{GeneSymbol: "CYP3A5"}},
			expectedDrugs: []string{"Warfarin"},
		},
		{
			name:          "european ancestry matches nothing",
			ethnicity:     "European",
			variants:      cyp2c19,
			expectedDrugs: nil,
		},
		{
			name:          "african ancestry with cyp3a5 variant",
			ethnicity:     "African American",
			variants:      []domain.Variant{{GeneSymbol: "CYP3A5"}},
			expectedDrugs: []string{"Tacrolimus", "Warfarin"},
		},
		{
			name:          "non-european with cyp2d6 variant",
			ethnicity:     "South Asian",
			variants:      []domain.Variant{{GeneSymbol: "CYP2D6"}},
			expectedDrugs: []string{"Codeine", "Tramadol", "Warfarin"},
		},
		{
			name:          "empty ethnicity matches nothing",
			ethnicity:     "",
			variants:      cyp2c19,
			expectedDrugs: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adjustments := EthnicityAdjustments(tt.ethnicity, tt.variants)
			assert.Equal(t, tt.expectedDrugs, adjustmentDrugs(adjustments))
		})
	}
}

func TestEthnicityAdjustments_Content(t *testing.T) {
	adjustments := EthnicityAdjustments("East Asian", []domain.Variant{{GeneSymbol: "CYP2C19"}})
	require.NotEmpty(t, adjustments)
	clopidogrel := adjustments[0]
	assert.Equal(t, "Clopidogrel", clopidogrel.Drug)
	assert.Equal(t, "CYP2C19", clopidogrel.Gene)
	assert.Equal(t, "consider alternative", clopidogrel.Adjustment)
	assert.Equal(t, "consider", clopidogrel.Strength)
	assert.NotEmpty(t, clopidogrel.Rationale)
}

func TestAttachPopulationContext(t *testing.T) {
	variants := []domain.Variant{
		{
			RSID: "rs4244285",
			PopulationFrequencies: map[string]float64{
				"East Asian (EAS)": 0.31,
				"European":         0.15,
			},
		},
		{RSID: "rs12248560"},
	}

	AttachPopulationContext("East Asian", variants)

	require.NotNil(t, variants[0].PatientPopulationFrequency)
	assert.Equal(t, 0.31, *variants[0].PatientPopulationFrequency)
	assert.Equal(t, domain.PopulationCommon, variants[0].PopulationSignificance)
	assert.Contains(t, variants[0].EthnicityContext, "0.3100")
	assert.Contains(t, variants[0].EthnicityContext, "East Asian")

	// No frequency data leaves the variant untouched.
	assert.Nil(t, variants[1].PatientPopulationFrequency)
	assert.Empty(t, variants[1].EthnicityContext)
}

func TestAttachPopulationContext_NoEthnicity(t *testing.T) {
	variants := []domain.Variant{
		{PopulationFrequencies: map[string]float64{"East Asian": 0.31}},
	}
	AttachPopulationContext("", variants)
	assert.Nil(t, variants[0].PatientPopulationFrequency)
}

func TestFrequencyForPopulation(t *testing.T) {
	frequencies := map[string]float64{"EastAsian": 0.31}

	freq, ok := frequencyForPopulation(frequencies, "East Asian")
	require.True(t, ok)
	assert.Equal(t, 0.31, freq)

	// Bidirectional containment: a short patient label still matches a
	// longer upstream name.
	freq, ok = frequencyForPopulation(map[string]float64{"East Asian (EAS)": 0.2}, "East Asian")
	require.True(t, ok)
	assert.Equal(t, 0.2, freq)

	_, ok = frequencyForPopulation(frequencies, "African")
	assert.False(t, ok)
}
