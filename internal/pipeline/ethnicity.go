package pipeline

import (
	"fmt"
	"strings"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// ethnicityRule is one closed dosing-caution rule. Genes match when a
// variant was detected in them; ethnicities match the patient's primary
// ancestry.
type ethnicityRule struct {
	gene        string
	drugs       []string
	ethnicities []string
	nonEuropean bool
	adjustment  string
	strength    string
	rationale   string
}

var ethnicityRules = []ethnicityRule{
	{
		gene:        "CYP2C19",
		drugs:       []string{"Clopidogrel"},
		ethnicities: []string{"east asian", "south-east asian", "southeast asian", "south asian"},
		adjustment:  "consider alternative",
		strength:    "consider",
		rationale:   "Loss-of-function CYP2C19 alleles are more frequent in Asian populations, reducing clopidogrel activation",
	},
	{
		gene:        "CYP3A5",
		drugs:       []string{"Tacrolimus"},
		ethnicities: []string{"african", "african american", "afro-caribbean"},
		adjustment:  "higher starting dose may be required",
		strength:    "monitor",
		rationale:   "CYP3A5 expresser genotypes are common in African ancestries and increase tacrolimus clearance",
	},
	{
		gene:        "CYP2D6",
		drugs:       []string{"Codeine", "Tramadol"},
		nonEuropean: true,
		adjustment:  "consider alternative analgesic",
		strength:    "consider",
		rationale:   "CYP2D6 duplication and reduced-function allele frequencies vary strongly outside European populations",
	},
	{
		gene:        "",
		drugs:       []string{"Warfarin"},
		nonEuropean: true,
		adjustment:  "enhanced INR monitoring",
		strength:    "monitor",
		rationale:   "VKORC1 and CYP2C9 variant frequencies outside European populations shift warfarin dose requirements",
	},
}

func (r ethnicityRule) matchesEthnicity(primary string) bool {
	key := domain.NormalizeKey(primary)
	if key == "" {
		return false
	}
	if r.nonEuropean {
		return !strings.Contains(key, "european") && !strings.Contains(key, "caucasian") && !strings.Contains(key, "white")
	}
	for _, e := range r.ethnicities {
		if strings.Contains(key, e) {
			return true
		}
	}
	return false
}

// EthnicityAdjustments evaluates the closed rule table against the patient's
// primary ethnicity and the genes with detected variants.
func EthnicityAdjustments(primaryEthnicity string, variants []domain.Variant) []domain.EthnicityAdjustment {
	genesWithVariants := make(map[string]bool)
	for i := range variants {
		genesWithVariants[strings.ToUpper(variants[i].GeneSymbol)] = true
	}

	var out []domain.EthnicityAdjustment
	for _, rule := range ethnicityRules {
		if !rule.matchesEthnicity(primaryEthnicity) {
			continue
		}
		if rule.gene != "" && !genesWithVariants[rule.gene] {
			continue
		}
		for _, drug := range rule.drugs {
			out = append(out, domain.EthnicityAdjustment{
				Drug:       drug,
				Gene:       rule.gene,
				Adjustment: rule.adjustment,
				Strength:   rule.strength,
				Rationale:  rule.rationale,
			})
		}
	}
	return out
}

// AttachPopulationContext enriches each variant with the patient-specific
// allele frequency, its significance band, and a prose summary.
func AttachPopulationContext(primaryEthnicity string, variants []domain.Variant) {
	if primaryEthnicity == "" {
		return
	}
	for i := range variants {
		variant := &variants[i]
		freq, ok := frequencyForPopulation(variant.PopulationFrequencies, primaryEthnicity)
		if !ok {
			continue
		}
		f := freq
		variant.PatientPopulationFrequency = &f
		variant.PopulationSignificance = domain.ClassifyPopulationFrequency(freq)
		variant.EthnicityContext = fmt.Sprintf(
			"Allele frequency %.4f in %s populations (%s)",
			freq, primaryEthnicity, variant.PopulationSignificance)
	}
}

// frequencyForPopulation matches population names loosely in both
// directions, since upstream names range from "EastAsian" to
// "East Asian (EAS)".
func frequencyForPopulation(frequencies map[string]float64, ethnicity string) (float64, bool) {
	key := strings.ReplaceAll(domain.NormalizeKey(ethnicity), " ", "")
	for population, freq := range frequencies {
		popKey := strings.ReplaceAll(domain.NormalizeKey(population), " ", "")
		if strings.Contains(popKey, key) || strings.Contains(key, popKey) {
			return freq, true
		}
	}
	return 0, false
}
