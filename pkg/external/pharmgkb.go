package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// PharmGKBClient fetches clinical annotations from the PharmGKB REST API.
type PharmGKBClient struct {
	baseURL string
	client  *Client
	logger  *logrus.Logger
}

// NewPharmGKBClient creates a PharmGKB API client.
func NewPharmGKBClient(config domain.APIConfig, client *Client, logger *logrus.Logger) *PharmGKBClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.pharmgkb.org/v1/data"
	}
	if config.RateLimit > 0 {
		if u, err := url.Parse(config.BaseURL); err == nil {
			client.SetHostRate(u.Host, config.RateLimit)
		}
	}
	return &PharmGKBClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// FetchGeneAnnotations fetches clinical annotations located on a gene.
func (p *PharmGKBClient) FetchGeneAnnotations(ctx context.Context, geneSymbol string) ([]map[string]interface{}, error) {
	return p.fetch(ctx, url.Values{
		"location.genes.symbol": {geneSymbol},
		"view":                  {"max"},
	})
}

// FetchVariantAnnotations fetches clinical annotations located on an rsID.
func (p *PharmGKBClient) FetchVariantAnnotations(ctx context.Context, rsid string) ([]map[string]interface{}, error) {
	if !domain.RSIDPattern.MatchString(rsid) {
		return nil, domain.NewContractViolation("rsid", "malformed rsID "+rsid)
	}
	return p.fetch(ctx, url.Values{
		"location.name": {rsid},
		"view":          {"max"},
	})
}

func (p *PharmGKBClient) fetch(ctx context.Context, params url.Values) ([]map[string]interface{}, error) {
	var payload map[string]interface{}
	err := p.client.GetJSON(ctx, p.baseURL+"/clinicalAnnotation", params, nil, &payload)
	if err != nil {
		return nil, fmt.Errorf("pharmgkb clinical annotations: %w", err)
	}
	return domain.GetMapSlice(payload, "data"), nil
}

// NormaliseAnnotations converts raw PharmGKB clinical annotations into the
// canonical annotation model.
func NormaliseAnnotations(raw []map[string]interface{}) []domain.PharmGKBAnnotation {
	out := make([]domain.PharmGKBAnnotation, 0, len(raw))
	for _, ann := range raw {
		normalised := domain.PharmGKBAnnotation{
			AnnotationID: domain.GetString(ann, "id", "annotationId", "annotation_id"),
			AccessionID:  domain.GetString(ann, "accessionId", "accession_id"),
		}
		if level := domain.GetMap(ann, "levelOfEvidence", "level_of_evidence"); level != nil {
			normalised.EvidenceLevel = domain.GetString(level, "term", "name")
		} else {
			normalised.EvidenceLevel = domain.GetString(ann, "levelOfEvidence", "level_of_evidence")
		}
		if score, ok := domain.GetFloat(ann, "score"); ok {
			normalised.Score = score
		}
		for _, t := range domain.GetSlice(ann, "types", "clinicalAnnotationTypes") {
			switch tv := t.(type) {
			case string:
				normalised.ClinicalAnnotationTypes = append(normalised.ClinicalAnnotationTypes, tv)
			case map[string]interface{}:
				if term := domain.GetString(tv, "term", "name"); term != "" {
					normalised.ClinicalAnnotationTypes = append(normalised.ClinicalAnnotationTypes, term)
				}
			}
		}
		for _, chem := range domain.GetMapSlice(ann, "relatedChemicals", "related_chemicals") {
			if name := domain.GetString(chem, "name"); name != "" {
				normalised.RelatedChemicals = append(normalised.RelatedChemicals, name)
			}
		}
		for _, ap := range domain.GetMapSlice(ann, "allelePhenotypes", "allele_phenotypes") {
			if phen := domain.GetString(ap, "phenotype"); phen != "" {
				normalised.AllelePhenotypes = append(normalised.AllelePhenotypes, phen)
			}
		}
		for _, h := range domain.GetMapSlice(ann, "history") {
			if desc := domain.GetString(h, "description", "type"); desc != "" {
				normalised.History = append(normalised.History, desc)
			}
		}
		out = append(out, normalised)
	}
	return out
}

// ExtractDrugs walks relatedChemicals across annotations; the first allele
// phenotype of each annotation becomes the recommendation text for its
// chemicals. One drug per distinct lower-cased name.
func ExtractDrugs(annotations []domain.PharmGKBAnnotation) []domain.Drug {
	var drugs []domain.Drug
	seen := make(map[string]bool)
	for _, ann := range annotations {
		recommendation := ""
		if len(ann.AllelePhenotypes) > 0 {
			recommendation = ann.AllelePhenotypes[0]
		}
		for _, chem := range ann.RelatedChemicals {
			key := domain.NormalizeKey(chem)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			drugs = append(drugs, domain.Drug{
				Name:                 chem,
				Recommendation:       recommendation,
				EvidenceLevel:        ann.EvidenceLevel,
				PharmGKBAnnotationID: ann.AnnotationID,
			})
		}
	}
	return drugs
}

// ExtractPhenotypes collects the distinct allele phenotype strings.
func ExtractPhenotypes(annotations []domain.PharmGKBAnnotation) []string {
	var phenotypes []string
	seen := make(map[string]bool)
	for _, ann := range annotations {
		for _, phen := range ann.AllelePhenotypes {
			key := domain.NormalizeKey(phen)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			phenotypes = append(phenotypes, phen)
		}
	}
	return phenotypes
}
