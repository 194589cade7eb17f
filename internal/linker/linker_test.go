package linker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/internal/events"
	"github.com/pgx-knowledge-graph/internal/resolver"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// newTestLinker wires a linker over a knowledge base whose every upstream
// answers 404, so unresolved lookups miss quickly and nothing leaves the
// process.
func newTestLinker(t *testing.T, config domain.PipelineConfig) *Linker {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	api := domain.ExternalAPIConfig{
		UniProt:          domain.APIConfig{BaseURL: server.URL},
		UniProtVariation: domain.APIConfig{BaseURL: server.URL},
		ClinVar:          domain.APIConfig{BaseURL: server.URL},
		PharmGKB:         domain.APIConfig{BaseURL: server.URL},
		ChEMBL:           domain.APIConfig{BaseURL: server.URL},
		OpenFDA:          domain.APIConfig{BaseURL: server.URL},
		EuropePMC:        domain.APIConfig{BaseURL: server.URL},
		BioPortal:        domain.APIConfig{BaseURL: server.URL},
		RxNorm:           domain.APIConfig{BaseURL: server.URL},
		ClinicalTables:   domain.APIConfig{BaseURL: server.URL},
	}
	kb, err := external.NewKnowledgeBase(api, domain.CacheConfig{}, logrus.New())
	require.NoError(t, err)
	res, err := resolver.New(kb, resolver.Config{}, logrus.New())
	require.NoError(t, err)

	bus := events.NewBus(16, logrus.New())
	t.Cleanup(bus.Close)
	return New(res, bus, config, logrus.New())
}

func linksOfType(result *domain.LinkingResult, linkType domain.LinkType) []domain.Link {
	var out []domain.Link
	for _, link := range result.Links {
		if link.LinkType == linkType {
			out = append(out, link)
		}
	}
	return out
}

func TestSeverity(t *testing.T) {
	l := New(nil, nil, domain.PipelineConfig{}, logrus.New())

	tests := []struct {
		name            string
		recommendations []string
		expected        domain.ConflictSeverity
	}{
		{"avoid grades critical", []string{"Avoid clopidogrel in poor metabolizers"}, domain.SeverityCritical},
		{"contraindicated grades critical", []string{"Contraindicated with this genotype"}, domain.SeverityCritical},
		{"do not use phrase grades critical", []string{"Do not use standard dosing"}, domain.SeverityCritical},
		{"reduced efficacy grades warning", []string{"Reduced efficacy expected at standard doses"}, domain.SeverityWarning},
		{"toxicity grades warning", []string{"Increased toxicity reported"}, domain.SeverityWarning},
		{"critical outranks warning", []string{"Increased toxicity", "avoid entirely"}, domain.SeverityCritical},
		{"neutral text grades info", []string{"Consider standard dosing with monitoring"}, domain.SeverityInfo},
		{"empty list grades info", nil, domain.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, l.Severity(tt.recommendations))
		})
	}
}

func TestSeverity_ConfiguredKeywords(t *testing.T) {
	l := New(nil, nil, domain.PipelineConfig{
		CriticalKeywords: []string{"discontinue"},
		WarningKeywords:  []string{"monitor"},
	}, logrus.New())

	assert.Equal(t, domain.SeverityCritical, l.Severity([]string{"Discontinue immediately"}))
	assert.Equal(t, domain.SeverityWarning, l.Severity([]string{"Monitor INR weekly"}))
	// The defaults are replaced, not merged.
	assert.Equal(t, domain.SeverityInfo, l.Severity([]string{"Avoid this drug"}))
}

func TestContainsAnyKeyword(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		expected bool
	}{
		{"single word on word boundary", "high risk of bleeding", []string{"risk"}, true},
		{"single word does not match inside a longer word", "a risky proposition", []string{"risk"}, false},
		{"phrase matches as substring", "please do not use with omeprazole", []string{"do not use"}, true},
		{"word split by punctuation still matches", "avoid: use alternative", []string{"avoid"}, true},
		{"no keyword present", "standard dosing applies", []string{"avoid", "risk"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, containsAnyKeyword(tt.text, tt.keywords))
		})
	}
}

func TestLink_MedicationConflictByExactName(t *testing.T) {
	l := newTestLinker(t, domain.PipelineConfig{})

	patient := &domain.Patient{
		PatientID:   "PT-001",
		Medications: []domain.Medication{{Name: "Clopidogrel", Dose: "75", Unit: "mg"}},
	}
	variants := []domain.Variant{
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs4244285",
			PharmGKB: &domain.PharmGKBEvidence{
				Drugs: []domain.Drug{{
					Name:           "Clopidogrel",
					Recommendation: "Avoid clopidogrel in CYP2C19 poor metabolizers",
					EvidenceLevel:  "1A",
					SnomedCode:     "387253001",
				}},
			},
		},
	}
	metabolizers := []domain.MetabolizerPhenotype{
		{GeneSymbol: "CYP2C19", Diplotype: "*2/*2", Phenotype: "Poor Metabolizer"},
	}

	result := l.Link(context.Background(), patient, variants, metabolizers)
	require.NotNil(t, result)

	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, "Clopidogrel", conflict.DrugName)
	assert.Equal(t, domain.SeverityCritical, conflict.Severity)
	assert.Equal(t, domain.MatchExactName, conflict.MatchMethod)
	assert.Contains(t, conflict.Recommendation, "Avoid clopidogrel")
	require.Len(t, conflict.AffectingVariants, 1)
	assert.Equal(t, "rs4244285", conflict.AffectingVariants[0].RSID)
	assert.False(t, conflict.Timestamp.IsZero())

	medLinks := linksOfType(result, domain.LinkPatientMedicationAffectedByVariant)
	require.Len(t, medLinks, 1)
	assert.Equal(t, "Clopidogrel", medLinks[0].Source)
	assert.Equal(t, "rs4244285", medLinks[0].Target)
	assert.Equal(t, "Poor Metabolizer", medLinks[0].MetabolizerPhenotype)
	assert.Equal(t, "*2/*2", medLinks[0].Diplotype)
}

func TestLink_MedicationConflictBySnomedCode(t *testing.T) {
	l := newTestLinker(t, domain.PipelineConfig{})

	// Brand name on the prescription, substance name on the evidence; the
	// shared SNOMED code joins them.
	patient := &domain.Patient{
		PatientID:   "PT-002",
		Medications: []domain.Medication{{Name: "Plavix", SnomedCode: "387253001"}},
	}
	variants := []domain.Variant{
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs4244285",
			PharmGKB: &domain.PharmGKBEvidence{
				Drugs: []domain.Drug{{
					Name:           "Clopidogrel",
					Recommendation: "Reduced efficacy in intermediate metabolizers",
					SnomedCode:     "387253001",
				}},
			},
		},
	}

	result := l.Link(context.Background(), patient, variants, nil)

	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, "Plavix", conflict.PatientMedicationRef)
	assert.Equal(t, domain.MatchSnomedCode, conflict.MatchMethod)
	assert.Equal(t, "387253001", conflict.SnomedCode)
	assert.Equal(t, domain.SeverityWarning, conflict.Severity)
}

func TestLink_ConditionMatchesVariantDisease(t *testing.T) {
	l := newTestLinker(t, domain.PipelineConfig{})

	patient := &domain.Patient{
		PatientID:  "PT-003",
		Conditions: []domain.Condition{{PreferredLabel: "Stroke"}},
	}
	variants := []domain.Variant{
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs4244285",
			ClinVar: &domain.ClinVarEvidence{
				ClinVarID:  "18124",
				Phenotypes: []string{"stroke", "not provided"},
			},
		},
	}

	result := l.Link(context.Background(), patient, variants, nil)

	condLinks := linksOfType(result, domain.LinkConditionMatchesVariantDisease)
	require.Len(t, condLinks, 1)
	assert.Equal(t, "Stroke", condLinks[0].Source)
	assert.Equal(t, "rs4244285", condLinks[0].Target)
	assert.Equal(t, domain.MatchExactName, condLinks[0].MatchMethod)
}

func TestLink_PhenotypeAndDrugEdges(t *testing.T) {
	l := newTestLinker(t, domain.PipelineConfig{})

	patient := &domain.Patient{PatientID: "PT-004"}
	variants := []domain.Variant{
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs4244285",
			PharmGKB: &domain.PharmGKBEvidence{
				Drugs:      []domain.Drug{{Name: "Clopidogrel", SnomedCode: "387253001"}},
				Phenotypes: []string{"Decreased response to clopidogrel"},
			},
		},
	}

	result := l.Link(context.Background(), patient, variants, nil)

	phenotypeLinks := linksOfType(result, domain.LinkVariantAssociatedWithPhenotype)
	require.Len(t, phenotypeLinks, 1)
	assert.Equal(t, "rs4244285", phenotypeLinks[0].Source)
	assert.Equal(t, "Decreased response to clopidogrel", phenotypeLinks[0].Target)

	drugLinks := linksOfType(result, domain.LinkDrugAffectedByVariant)
	require.Len(t, drugLinks, 1)
	assert.Equal(t, "Clopidogrel", drugLinks[0].Source)
	assert.Equal(t, "387253001", drugLinks[0].SnomedCode)

	// No medications, so no conflicts.
	assert.Empty(t, result.Conflicts)
}

func TestLink_Summary(t *testing.T) {
	l := newTestLinker(t, domain.PipelineConfig{})

	patient := &domain.Patient{
		PatientID:   "PT-005",
		Medications: []domain.Medication{{Name: "Clopidogrel"}, {Name: "Metformin"}},
		Conditions:  []domain.Condition{{PreferredLabel: "Type 2 diabetes"}},
	}
	variants := []domain.Variant{
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs4244285",
			PharmGKB: &domain.PharmGKBEvidence{
				Drugs: []domain.Drug{{
					Name:           "Clopidogrel",
					Recommendation: "Avoid clopidogrel",
					SnomedCode:     "387253001",
				}},
				Phenotypes: []string{"Decreased platelet inhibition"},
			},
		},
	}

	result := l.Link(context.Background(), patient, variants, nil)

	summary := result.Summary
	assert.Equal(t, len(result.Links), summary.TotalLinks)
	assert.Equal(t, 1, summary.TotalConflicts)
	assert.Equal(t, 2, summary.PatientMedications)
	assert.Equal(t, 1, summary.PatientConditions)
	assert.Equal(t, 1, summary.TotalVariants)
	assert.Equal(t, 1, summary.LinksByType[domain.LinkPatientMedicationAffectedByVariant])
	assert.Equal(t, 1, summary.LinksByType[domain.LinkVariantAssociatedWithPhenotype])
	assert.Equal(t, 1, summary.LinksByType[domain.LinkDrugAffectedByVariant])
	assert.Equal(t, 1, summary.ConflictsBySeverity[domain.SeverityCritical])
}

func TestExtractAffectedDrugs_GroupsAcrossVariants(t *testing.T) {
	l := newTestLinker(t, domain.PipelineConfig{})

	variants := []domain.Variant{
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs4244285",
			PharmGKB: &domain.PharmGKBEvidence{
				Drugs: []domain.Drug{{Name: "Clopidogrel", Recommendation: "Avoid", SnomedCode: "387253001"}},
			},
		},
		{
			GeneSymbol: "CYP2C19",
			RSID:       "rs12248560",
			PharmGKB: &domain.PharmGKBEvidence{
				Drugs: []domain.Drug{{Name: "CLOPIDOGREL", Recommendation: "Avoid"}},
			},
		},
	}

	groups := l.extractAffectedDrugs(context.Background(), variants)
	require.Len(t, groups, 1)
	group := groups["clopidogrel"]
	require.NotNil(t, group)
	assert.Len(t, group.Variants, 2)
	// Duplicate recommendations collapse.
	assert.Equal(t, []string{"Avoid"}, group.Recommendations)
	assert.Equal(t, "387253001", group.SnomedCode)
}
