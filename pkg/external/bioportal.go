package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// SnomedConcept is a resolved SNOMED CT concept.
type SnomedConcept struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// MatchType classifies how a SNOMED concept was matched.
type MatchType string

const (
	MatchTypeExact           MatchType = "exact"
	MatchTypePostCoordinated MatchType = "post_coordinated"
	MatchTypeClinicalFinding MatchType = "clinical_finding"
	MatchTypeGeneral         MatchType = "general"
)

// SnomedMatch pairs a concept with its match classification.
type SnomedMatch struct {
	Concept   SnomedConcept `json:"concept"`
	MatchType MatchType     `json:"match_type"`
}

// BioPortalClient resolves terms to SNOMED CT concepts via the BioPortal
// search API, falling back to the NLM Clinical Tables endpoint when no
// BioPortal key is configured.
type BioPortalClient struct {
	baseURL           string
	clinicalTablesURL string
	apiKey            string
	client            *Client
	logger            *logrus.Logger
}

// NewBioPortalClient creates a SNOMED resolver client.
func NewBioPortalClient(config domain.APIConfig, clinicalTables domain.APIConfig, client *Client, logger *logrus.Logger) *BioPortalClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://data.bioontology.org"
	}
	if clinicalTables.BaseURL == "" {
		clinicalTables.BaseURL = "https://clinicaltables.nlm.nih.gov/api/snomedct/v3"
	}
	for _, cfg := range []domain.APIConfig{config, clinicalTables} {
		if cfg.RateLimit > 0 {
			if u, err := url.Parse(cfg.BaseURL); err == nil {
				client.SetHostRate(u.Host, cfg.RateLimit)
			}
		}
	}
	return &BioPortalClient{
		baseURL:           strings.TrimRight(config.BaseURL, "/"),
		clinicalTablesURL: strings.TrimRight(clinicalTables.BaseURL, "/"),
		apiKey:            config.APIKey,
		client:            client,
		logger:            logger,
	}
}

// conditionTokens mark preferred labels that look like clinical findings.
var conditionTokens = []string{"disease", "disorder", "finding"}

// SearchTerm resolves a free-text term to a SNOMED concept. BioPortal is
// preferred; an exact label match wins, then the first result whose
// preferred label carries a disease/disorder/finding token, then the first
// result. Without an API key the Clinical Tables endpoint serves instead.
func (b *BioPortalClient) SearchTerm(ctx context.Context, term string) (*SnomedMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, domain.NewContractViolation("term", "term cannot be empty")
	}
	if b.apiKey == "" {
		return b.searchClinicalTables(ctx, term)
	}

	results, err := b.searchBioPortal(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, domain.NewNotFoundError("bioportal", term)
	}

	// Exact match on the preferred label wins.
	for _, r := range results {
		if strings.EqualFold(strings.TrimSpace(r.Label), term) {
			match := &SnomedMatch{Concept: r, MatchType: MatchTypeExact}
			return match, nil
		}
	}
	for _, r := range results {
		lower := strings.ToLower(r.Label)
		for _, token := range conditionTokens {
			if strings.Contains(lower, token) {
				return &SnomedMatch{Concept: r, MatchType: MatchTypeClinicalFinding}, nil
			}
		}
	}
	return &SnomedMatch{Concept: results[0], MatchType: MatchTypeGeneral}, nil
}

// SearchDrug resolves a drug name to a SNOMED substance concept using the
// multi-strategy ladder: "<name> (substance)", the plain name, then
// lower-cased and hyphen-stripped synonyms. The caller appends the RxNorm
// display-name strategy.
func (b *BioPortalClient) SearchDrug(ctx context.Context, name string) (*SnomedMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewContractViolation("name", "drug name cannot be empty")
	}
	queries := []string{
		name + " (substance)",
		name,
		strings.ToLower(name),
		strings.ReplaceAll(strings.ToLower(name), "-", " "),
	}
	var lastErr error
	tried := make(map[string]bool)
	for _, q := range queries {
		if tried[q] {
			continue
		}
		tried[q] = true
		match, err := b.SearchTerm(ctx, q)
		if err == nil {
			return match, nil
		}
		if !domain.IsNotFound(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (b *BioPortalClient) searchBioPortal(ctx context.Context, term string) ([]SnomedConcept, error) {
	params := url.Values{
		"q":          {term},
		"ontologies": {"SNOMEDCT"},
		"pagesize":   {"10"},
	}
	headers := map[string]string{"Authorization": "apikey token=" + b.apiKey}
	var payload map[string]interface{}
	if err := b.client.GetJSON(ctx, b.baseURL+"/search", params, headers, &payload); err != nil {
		return nil, fmt.Errorf("bioportal search for %q: %w", term, err)
	}

	var concepts []SnomedConcept
	for _, item := range domain.GetMapSlice(payload, "collection") {
		label := domain.GetString(item, "prefLabel", "pref_label")
		id := domain.GetString(item, "@id", "id")
		// Concept URIs end in the SNOMED code.
		code := id
		if idx := strings.LastIndex(id, "/"); idx >= 0 {
			code = id[idx+1:]
		}
		if label != "" && code != "" {
			concepts = append(concepts, SnomedConcept{Code: code, Label: label})
		}
	}
	return concepts, nil
}

// searchClinicalTables queries the keyless NLM Clinical Tables SNOMED
// endpoint. Its response is a positional JSON array:
// [count, codes, extra, [[code, label], ...]].
func (b *BioPortalClient) searchClinicalTables(ctx context.Context, term string) (*SnomedMatch, error) {
	params := url.Values{
		"terms":   {term},
		"sf":      {"term"},
		"df":      {"code,term"},
		"maxList": {"10"},
	}
	var payload []interface{}
	if err := b.client.GetJSON(ctx, b.clinicalTablesURL+"/search", params, nil, &payload); err != nil {
		return nil, fmt.Errorf("clinical tables search for %q: %w", term, err)
	}
	if len(payload) < 4 {
		return nil, domain.NewMalformedError("clinicaltables", fmt.Errorf("unexpected response shape"))
	}
	rows, ok := payload[3].([]interface{})
	if !ok || len(rows) == 0 {
		return nil, domain.NewNotFoundError("clinicaltables", term)
	}
	for i, raw := range rows {
		row, ok := raw.([]interface{})
		if !ok || len(row) < 2 {
			continue
		}
		code, _ := row[0].(string)
		label, _ := row[1].(string)
		if code == "" {
			continue
		}
		matchType := MatchTypeGeneral
		if strings.EqualFold(strings.TrimSpace(label), term) {
			matchType = MatchTypeExact
		} else if i == 0 {
			matchType = MatchTypeClinicalFinding
		}
		return &SnomedMatch{Concept: SnomedConcept{Code: code, Label: label}, MatchType: matchType}, nil
	}
	return nil, domain.NewNotFoundError("clinicaltables", term)
}

// SNOMED CT concepts used in post-coordinated PGx expressions.
const (
	snomedIneffectiveTherapy = "473010000" // Ineffective drug therapy
	snomedCausativeAgent     = "246075003"
	snomedAssociatedWith     = "47429007"
)

// PostCoordinatedExpression builds a SNOMED CT compound-expression string
// for a PGx clinical finding, e.g. ineffective drug therapy with a causative
// agent and an associated metaboliser genotype.
func PostCoordinatedExpression(drugCode, genotypeCode string) string {
	return fmt.Sprintf("%s:{%s=%s,%s=%s}",
		snomedIneffectiveTherapy,
		snomedCausativeAgent, drugCode,
		snomedAssociatedWith, genotypeCode)
}

// PGxClinicalFinding resolves a PGx finding for a drug and genotype,
// preferring a post-coordinated expression when both codes are known.
func (b *BioPortalClient) PGxClinicalFinding(ctx context.Context, drugName, genotypeTerm string) (*SnomedMatch, error) {
	drug, drugErr := b.SearchDrug(ctx, drugName)
	genotype, genoErr := b.SearchTerm(ctx, genotypeTerm)
	if drugErr == nil && genoErr == nil {
		return &SnomedMatch{
			Concept: SnomedConcept{
				Code:  PostCoordinatedExpression(drug.Concept.Code, genotype.Concept.Code),
				Label: fmt.Sprintf("Ineffective drug therapy: %s (%s)", drugName, genotypeTerm),
			},
			MatchType: MatchTypePostCoordinated,
		}, nil
	}
	if drugErr == nil {
		return drug, nil
	}
	return nil, drugErr
}
