package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariant_HasValidRSID(t *testing.T) {
	tests := []struct {
		name     string
		rsid     string
		expected bool
	}{
		{"canonical", "rs4244285", true},
		{"empty", "", false},
		{"missing prefix", "4244285", false},
		{"trailing text", "rs4244285x", false},
		{"prefix only", "rs", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Variant{RSID: tt.rsid}
			assert.Equal(t, tt.expected, v.HasValidRSID())
		})
	}
}

func TestClassifyPopulationFrequency(t *testing.T) {
	tests := []struct {
		name     string
		freq     float64
		expected string
	}{
		{"common", 0.31, PopulationCommon},
		{"common boundary", 0.05, PopulationCommon},
		{"low frequency", 0.02, PopulationLowFrequency},
		{"rare", 0.005, PopulationRare},
		{"ultra rare", 0.0001, PopulationUltraRare},
		{"zero", 0, PopulationUltraRare},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyPopulationFrequency(tt.freq))
		})
	}
}

func TestDemographics_PrimaryEthnicity(t *testing.T) {
	assert.Equal(t, "East Asian", Demographics{Ethnicities: []string{"East Asian", "European"}}.PrimaryEthnicity())
	assert.Equal(t, "", Demographics{}.PrimaryEthnicity())
}
