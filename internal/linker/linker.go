package linker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/internal/events"
	"github.com/pgx-knowledge-graph/internal/resolver"
)

// Default severity keyword lists. Matching is case-insensitive; multi-word
// phrases match as substrings, single words match whole words.
var (
	DefaultCriticalKeywords = []string{"contraindicated", "avoid", "do not use"}
	DefaultWarningKeywords  = []string{"risk", "toxicity", "adverse", "reduced efficacy", "ineffective", "not recommended"}
)

// AffectedDrug groups the variant-affected drug evidence by lower-cased name.
type AffectedDrug struct {
	Name            string
	SnomedCode      string
	Variants        []domain.AffectingVariant
	Recommendations []string
	EvidenceLevels  []string
}

// Linker cross-references patient-owned records with variant-derived
// entities, producing links and conflicts.
type Linker struct {
	resolver         *resolver.Resolver
	bus              *events.Bus
	logger           *logrus.Logger
	criticalKeywords []string
	warningKeywords  []string
}

// New creates a linker. Empty keyword lists select the defaults.
func New(res *resolver.Resolver, bus *events.Bus, config domain.PipelineConfig, logger *logrus.Logger) *Linker {
	if logger == nil {
		logger = logrus.New()
	}
	critical := config.CriticalKeywords
	if len(critical) == 0 {
		critical = DefaultCriticalKeywords
	}
	warning := config.WarningKeywords
	if len(warning) == 0 {
		warning = DefaultWarningKeywords
	}
	return &Linker{
		resolver:         res,
		bus:              bus,
		logger:           logger,
		criticalKeywords: critical,
		warningKeywords:  warning,
	}
}

// metabolizerByGene indexes metabolizer phenotypes for link annotation.
func metabolizerByGene(metabolizers []domain.MetabolizerPhenotype) map[string]domain.MetabolizerPhenotype {
	out := make(map[string]domain.MetabolizerPhenotype, len(metabolizers))
	for _, m := range metabolizers {
		out[strings.ToUpper(m.GeneSymbol)] = m
	}
	return out
}

// Link cross-references the patient profile against the aggregated variants.
func (l *Linker) Link(ctx context.Context, patient *domain.Patient, variants []domain.Variant, metabolizers []domain.MetabolizerPhenotype) *domain.LinkingResult {
	l.bus.Info(domain.StageEnrichment, domain.SubstageVariantLinking,
		fmt.Sprintf("Linking %d variants against %d medications and %d conditions",
			len(variants), len(patient.Medications), len(patient.Conditions)))

	affectedDrugs := l.extractAffectedDrugs(ctx, variants)
	variantDiseases := extractVariantDiseases(variants)
	phenotypes := metabolizerByGene(metabolizers)

	result := &domain.LinkingResult{}
	l.linkMedications(ctx, patient, affectedDrugs, phenotypes, result)
	l.linkConditions(ctx, patient, variantDiseases, result)
	linkPhenotypes(variants, result)
	linkAffectedDrugs(affectedDrugs, result)

	result.Summary = summarise(patient, variants, result)
	return result
}

// extractAffectedDrugs groups drug evidence across variants by drug name and
// resolves each group to a SNOMED substance code.
func (l *Linker) extractAffectedDrugs(ctx context.Context, variants []domain.Variant) map[string]*AffectedDrug {
	out := make(map[string]*AffectedDrug)
	for i := range variants {
		variant := &variants[i]
		if variant.PharmGKB == nil {
			continue
		}
		for _, drug := range variant.PharmGKB.Drugs {
			key := domain.NormalizeKey(drug.Name)
			if key == "" {
				continue
			}
			group, ok := out[key]
			if !ok {
				group = &AffectedDrug{Name: drug.Name}
				out[key] = group
			}
			group.Variants = append(group.Variants, domain.AffectingVariant{
				Gene: variant.GeneSymbol,
				RSID: variant.RSID,
			})
			if drug.Recommendation != "" {
				group.Recommendations = appendUnique(group.Recommendations, drug.Recommendation)
			}
			if drug.EvidenceLevel != "" {
				group.EvidenceLevels = appendUnique(group.EvidenceLevels, drug.EvidenceLevel)
			}
			if group.SnomedCode == "" && drug.SnomedCode != "" {
				group.SnomedCode = drug.SnomedCode
			}
		}
	}
	for _, group := range out {
		if group.SnomedCode != "" {
			continue
		}
		if match, err := l.resolver.ResolveDrugSNOMED(ctx, group.Name); err == nil {
			group.SnomedCode = match.Concept.Code
		}
	}
	return out
}

// extractVariantDiseases maps lower-cased disease labels to the variants
// carrying them.
func extractVariantDiseases(variants []domain.Variant) map[string][]domain.AffectingVariant {
	out := make(map[string][]domain.AffectingVariant)
	add := func(variant *domain.Variant, label string) {
		key := domain.NormalizeKey(label)
		if key == "" || key == "not provided" || key == "not specified" {
			return
		}
		out[key] = append(out[key], domain.AffectingVariant{Gene: variant.GeneSymbol, RSID: variant.RSID})
	}
	for i := range variants {
		variant := &variants[i]
		if variant.ClinVar != nil {
			for _, phenotype := range variant.ClinVar.Phenotypes {
				add(variant, phenotype)
			}
		}
		if variant.PharmGKB != nil {
			for _, phenotype := range variant.PharmGKB.Phenotypes {
				add(variant, phenotype)
			}
		}
	}
	return out
}

// linkMedications detects conflicts between prescribed medications and
// variant-affected drugs, matching by name first and SNOMED code second.
func (l *Linker) linkMedications(ctx context.Context, patient *domain.Patient, affectedDrugs map[string]*AffectedDrug, phenotypes map[string]domain.MetabolizerPhenotype, result *domain.LinkingResult) {
	for _, medication := range patient.Medications {
		medKey := domain.NormalizeKey(medication.Name)
		group, matched := affectedDrugs[medKey]
		method := domain.MatchExactName
		snomedCode := ""

		if !matched {
			medCode := medication.SnomedCode
			if medCode == "" {
				if match, err := l.resolver.ResolveDrugSNOMED(ctx, medication.Name); err == nil {
					medCode = match.Concept.Code
				}
			}
			if medCode != "" {
				for _, candidate := range affectedDrugs {
					if candidate.SnomedCode == medCode {
						group = candidate
						matched = true
						method = domain.MatchSnomedCode
						snomedCode = medCode
						break
					}
				}
			}
		}
		if !matched || len(group.Variants) == 0 {
			continue
		}

		recommendation := strings.Join(group.Recommendations, "; ")
		conflict := domain.Conflict{
			DrugName:             medication.Name,
			PatientMedicationRef: medication.Name,
			Severity:             l.Severity(group.Recommendations),
			AffectingVariants:    group.Variants,
			Recommendation:       recommendation,
			MatchMethod:          method,
			SnomedCode:           snomedCode,
			Timestamp:            time.Now().UTC(),
		}
		result.Conflicts = append(result.Conflicts, conflict)

		for _, affecting := range group.Variants {
			link := domain.Link{
				LinkType:    domain.LinkPatientMedicationAffectedByVariant,
				Source:      medication.Name,
				Target:      affecting.RSID,
				GeneSymbol:  affecting.Gene,
				MatchMethod: method,
				SnomedCode:  snomedCode,
				Details:     recommendation,
			}
			if phenotype, ok := phenotypes[strings.ToUpper(affecting.Gene)]; ok {
				link.MetabolizerPhenotype = phenotype.Phenotype
				link.Diplotype = phenotype.Diplotype
			}
			result.Links = append(result.Links, link)
		}
	}
}

// linkConditions matches patient conditions to variant-derived diseases by
// label, then by SNOMED code.
func (l *Linker) linkConditions(ctx context.Context, patient *domain.Patient, variantDiseases map[string][]domain.AffectingVariant, result *domain.LinkingResult) {
	for _, condition := range patient.Conditions {
		labelKey := domain.NormalizeKey(condition.PreferredLabel)
		if affecting, ok := variantDiseases[labelKey]; ok {
			for _, av := range affecting {
				result.Links = append(result.Links, domain.Link{
					LinkType:    domain.LinkConditionMatchesVariantDisease,
					Source:      condition.PreferredLabel,
					Target:      av.RSID,
					GeneSymbol:  av.Gene,
					MatchMethod: domain.MatchExactName,
				})
			}
			continue
		}

		code := condition.SnomedCode
		if code == "" {
			if match, err := l.resolver.ResolveSNOMED(ctx, condition.PreferredLabel); err == nil {
				code = match.Concept.Code
			}
		}
		if code == "" {
			continue
		}
		for disease, affecting := range variantDiseases {
			match, err := l.resolver.ResolveSNOMED(ctx, disease)
			if err != nil || match.Concept.Code != code {
				continue
			}
			for _, av := range affecting {
				result.Links = append(result.Links, domain.Link{
					LinkType:    domain.LinkConditionMatchesVariantDisease,
					Source:      condition.PreferredLabel,
					Target:      av.RSID,
					GeneSymbol:  av.Gene,
					MatchMethod: domain.MatchSnomedCode,
					SnomedCode:  code,
				})
			}
		}
	}
}

// linkPhenotypes emits one phenotype association link per variant phenotype.
func linkPhenotypes(variants []domain.Variant, result *domain.LinkingResult) {
	for i := range variants {
		variant := &variants[i]
		if variant.PharmGKB == nil {
			continue
		}
		for _, phenotype := range variant.PharmGKB.Phenotypes {
			result.Links = append(result.Links, domain.Link{
				LinkType:    domain.LinkVariantAssociatedWithPhenotype,
				Source:      variant.RSID,
				Target:      phenotype,
				GeneSymbol:  variant.GeneSymbol,
				MatchMethod: domain.MatchExactName,
			})
		}
	}
}

// linkAffectedDrugs emits the drug-affected-by-variant edges.
func linkAffectedDrugs(affectedDrugs map[string]*AffectedDrug, result *domain.LinkingResult) {
	for _, group := range affectedDrugs {
		for _, av := range group.Variants {
			result.Links = append(result.Links, domain.Link{
				LinkType:    domain.LinkDrugAffectedByVariant,
				Source:      group.Name,
				Target:      av.RSID,
				GeneSymbol:  av.Gene,
				MatchMethod: domain.MatchExactName,
				SnomedCode:  group.SnomedCode,
			})
		}
	}
}

// Severity grades recommendations by the strongest keyword found.
func (l *Linker) Severity(recommendations []string) domain.ConflictSeverity {
	text := strings.ToLower(strings.Join(recommendations, " "))
	if containsAnyKeyword(text, l.criticalKeywords) {
		return domain.SeverityCritical
	}
	if containsAnyKeyword(text, l.warningKeywords) {
		return domain.SeverityWarning
	}
	return domain.SeverityInfo
}

// containsAnyKeyword matches single words on word boundaries and phrases as
// substrings.
func containsAnyKeyword(text string, keywords []string) bool {
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)
		if strings.Contains(keyword, " ") {
			if strings.Contains(text, keyword) {
				return true
			}
			continue
		}
		for _, word := range strings.FieldsFunc(text, func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
		}) {
			if word == keyword {
				return true
			}
		}
	}
	return false
}

func summarise(patient *domain.Patient, variants []domain.Variant, result *domain.LinkingResult) domain.LinkingSummary {
	summary := domain.LinkingSummary{
		LinksByType:         make(map[domain.LinkType]int),
		ConflictsBySeverity: make(map[domain.ConflictSeverity]int),
		TotalLinks:          len(result.Links),
		TotalConflicts:      len(result.Conflicts),
		PatientMedications:  len(patient.Medications),
		PatientConditions:   len(patient.Conditions),
		TotalVariants:       len(variants),
	}
	for _, link := range result.Links {
		summary.LinksByType[link.LinkType]++
	}
	for _, conflict := range result.Conflicts {
		summary.ConflictsBySeverity[conflict.Severity]++
	}
	return summary
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
