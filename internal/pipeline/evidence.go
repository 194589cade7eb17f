package pipeline

import (
	"strings"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Confidence grade labels.
const (
	ConfidenceVeryHigh = "Very High"
	ConfidenceHigh     = "High"
	ConfidenceModerate = "Moderate"
	ConfidenceLow      = "Low"
	ConfidenceVeryLow  = "Very Low"
)

// pharmGKBScores maps PharmGKB clinical annotation evidence levels onto the
// shared 0..5 scale.
var pharmGKBScores = map[string]float64{
	"1A": 5, "1B": 4, "2A": 3, "2B": 2, "3": 1, "4": 0,
}

var pharmGKBInterpretations = map[string]string{
	"1A": "High-quality evidence with strong clinical guidance",
	"1B": "High-quality evidence, guidance pending",
	"2A": "Moderate evidence in a known pharmacogene",
	"2B": "Moderate evidence",
	"3":  "Low-level or conflicting evidence",
	"4":  "Case report or in-vitro evidence only",
}

// cpicScores maps CPIC guideline levels onto the shared scale.
var cpicScores = map[string]float64{
	"A": 5, "B": 3, "C": 1, "D": 0,
}

var cpicInterpretations = map[string]string{
	"A": "Genetic information should be used to change prescribing",
	"B": "Genetic information could be used to change prescribing",
	"C": "No prescribing change recommended",
	"D": "Insufficient or conflicting evidence",
}

var clinVarInterpretations = map[int]string{
	4: "Reviewed by expert panel or practice guideline",
	3: "Multiple submitters, no conflicts",
	2: "Multiple submitters with criteria",
	1: "Single submitter with criteria",
	0: "No assertion criteria provided",
}

// PharmGKBScore returns the numeric grade of a PharmGKB evidence level and
// whether the level belongs to the known vocabulary.
func PharmGKBScore(level string) (float64, bool) {
	score, ok := pharmGKBScores[strings.ToUpper(strings.TrimSpace(level))]
	return score, ok
}

// CPICScore returns the numeric grade of a CPIC level and whether the level
// belongs to the known vocabulary.
func CPICScore(level string) (float64, bool) {
	score, ok := cpicScores[strings.ToUpper(strings.TrimSpace(level))]
	return score, ok
}

// BinConfidence maps a mean evidence score onto the overall grade.
func BinConfidence(score float64) string {
	switch {
	case score >= 4:
		return ConfidenceVeryHigh
	case score >= 3:
		return ConfidenceHigh
	case score >= 2:
		return ConfidenceModerate
	case score >= 1:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// GradeEvidence folds the evidence attached to a variant into a confidence
// block. Sources outside the known vocabularies are recorded verbatim but
// excluded from the mean. Nil when no gradeable source is present.
func GradeEvidence(variant *domain.Variant, cpicLevel string) *domain.EvidenceConfidence {
	confidence := &domain.EvidenceConfidence{}
	var total float64
	var count int

	if variant.PharmGKB != nil {
		if level := strongestPharmGKBLevel(variant.PharmGKB.Annotations); level != "" {
			confidence.PharmGKBLevel = level
			if score, ok := PharmGKBScore(level); ok {
				confidence.PharmGKBInterpretation = pharmGKBInterpretations[strings.ToUpper(level)]
				total += score
				count++
			} else {
				confidence.PharmGKBInterpretation = "Unrecognised evidence level"
			}
		}
	}

	if cpicLevel != "" {
		confidence.CPICLevel = cpicLevel
		if score, ok := CPICScore(cpicLevel); ok {
			confidence.CPICInterpretation = cpicInterpretations[strings.ToUpper(cpicLevel)]
			total += score
			count++
		} else {
			confidence.CPICInterpretation = "Unrecognised guideline level"
		}
	}

	if variant.ClinVar != nil {
		stars := variant.ClinVar.StarRating
		confidence.ClinVarStars = &stars
		confidence.ClinVarInterpretation = clinVarInterpretations[stars]
		// Stars contribute on their native 0..4 scale.
		total += float64(stars)
		count++
	}

	if count == 0 {
		return nil
	}
	confidence.Score = total / float64(count)
	confidence.Overall = BinConfidence(confidence.Score)
	return confidence
}

// strongestPharmGKBLevel picks the best-graded level across annotations.
func strongestPharmGKBLevel(annotations []domain.PharmGKBAnnotation) string {
	best := ""
	bestScore := -1.0
	for _, annotation := range annotations {
		level := strings.ToUpper(strings.TrimSpace(annotation.EvidenceLevel))
		if level == "" {
			continue
		}
		score, ok := pharmGKBScores[level]
		if !ok {
			if best == "" {
				best = annotation.EvidenceLevel
			}
			continue
		}
		if score > bestScore {
			bestScore = score
			best = level
		}
	}
	return best
}
