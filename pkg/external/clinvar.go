package external

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// ClinVarClient fetches variant submission summaries from ClinVar via the
// NCBI E-utilities.
type ClinVarClient struct {
	baseURL string
	apiKey  string
	client  *Client
	logger  *logrus.Logger
}

// NewClinVarClient creates a ClinVar API client.
func NewClinVarClient(config domain.APIConfig, client *Client, logger *logrus.Logger) *ClinVarClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}
	if config.RateLimit > 0 {
		if u, err := url.Parse(config.BaseURL); err == nil {
			client.SetHostRate(u.Host, config.RateLimit)
		}
	}
	return &ClinVarClient{
		baseURL: strings.TrimRight(config.BaseURL, "/") + "/",
		apiKey:  config.APIKey,
		client:  client,
		logger:  logger,
	}
}

// clinVarSearchResponse is the eSearch XML envelope.
type clinVarSearchResponse struct {
	XMLName xml.Name `xml:"eSearchResult"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
	Count int `xml:"Count"`
}

// clinVarSummaryResponse is the eSummary XML envelope.
type clinVarSummaryResponse struct {
	XMLName   xml.Name `xml:"eSummaryResult"`
	Documents []struct {
		UID              string `xml:"uid,attr"`
		Title            string `xml:"title"`
		GermlineReview   struct {
			ReviewStatus string `xml:"review_status"`
			Description  string `xml:"description"`
		} `xml:"germline_classification"`
		ClinicalSignificance struct {
			ReviewStatus string `xml:"ReviewStatus"`
			Description  string `xml:"Description"`
		} `xml:"clinical_significance"`
		Traits []struct {
			Name string `xml:"trait_name"`
		} `xml:"germline_classification>trait_set>trait"`
		Conditions []struct {
			Name string `xml:"Name"`
		} `xml:"trait_set>trait"`
	} `xml:"DocumentSummarySet>DocumentSummary"`
}

// StarRating maps a ClinVar review status to its 0–4 star rating.
func StarRating(reviewStatus string) int {
	switch strings.ToLower(strings.TrimSpace(reviewStatus)) {
	case "practice guideline":
		return 4
	case "reviewed by expert panel":
		return 3
	case "criteria provided, multiple submitters, no conflicts":
		return 2
	case "criteria provided, single submitter",
		"criteria provided, conflicting classifications",
		"criteria provided, conflicting interpretations":
		return 1
	default:
		return 0
	}
}

// ReviewStatusLabel returns the human label for a star rating.
func ReviewStatusLabel(stars int) string {
	switch stars {
	case 4:
		return "practice guideline"
	case 3:
		return "reviewed by expert panel"
	case 2:
		return "multiple submitters, no conflicts"
	case 1:
		return "single submitter"
	default:
		return "no assertion criteria"
	}
}

// FetchByRSID fetches the ClinVar evidence block for an rsID.
func (c *ClinVarClient) FetchByRSID(ctx context.Context, rsid string) (*domain.ClinVarEvidence, error) {
	if !domain.RSIDPattern.MatchString(rsid) {
		return nil, domain.NewContractViolation("rsid", "malformed rsID "+rsid)
	}

	ids, err := c.search(ctx, rsid+"[variant id] OR "+rsid)
	if err != nil {
		return nil, fmt.Errorf("clinvar search for %s: %w", rsid, err)
	}
	if len(ids) == 0 {
		return nil, domain.NewNotFoundError("clinvar", rsid)
	}
	return c.summary(ctx, ids[0])
}

func (c *ClinVarClient) search(ctx context.Context, term string) ([]string, error) {
	params := url.Values{
		"db":      {"clinvar"},
		"term":    {term},
		"retmode": {"xml"},
		"retmax":  {"20"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	body, err := c.client.Get(ctx, c.baseURL+"esearch.fcgi", params, map[string]string{"Accept": "application/xml"})
	if err != nil {
		return nil, err
	}
	var resp clinVarSearchResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewMalformedError("clinvar", err)
	}
	return resp.IDList.IDs, nil
}

func (c *ClinVarClient) summary(ctx context.Context, id string) (*domain.ClinVarEvidence, error) {
	params := url.Values{
		"db":      {"clinvar"},
		"id":      {id},
		"retmode": {"xml"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	body, err := c.client.Get(ctx, c.baseURL+"esummary.fcgi", params, map[string]string{"Accept": "application/xml"})
	if err != nil {
		return nil, err
	}
	var resp clinVarSummaryResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewMalformedError("clinvar", err)
	}
	if len(resp.Documents) == 0 {
		return nil, domain.NewNotFoundError("clinvar", "summary for "+id)
	}

	doc := resp.Documents[0]
	reviewStatus := doc.GermlineReview.ReviewStatus
	if reviewStatus == "" {
		reviewStatus = doc.ClinicalSignificance.ReviewStatus
	}

	var phenotypes []string
	seen := make(map[string]bool)
	for _, t := range doc.Traits {
		if t.Name != "" && !seen[strings.ToLower(t.Name)] {
			seen[strings.ToLower(t.Name)] = true
			phenotypes = append(phenotypes, t.Name)
		}
	}
	for _, t := range doc.Conditions {
		if t.Name != "" && !seen[strings.ToLower(t.Name)] {
			seen[strings.ToLower(t.Name)] = true
			phenotypes = append(phenotypes, t.Name)
		}
	}

	return &domain.ClinVarEvidence{
		ClinVarID:    doc.UID,
		ReviewStatus: reviewStatus,
		StarRating:   StarRating(reviewStatus),
		Phenotypes:   phenotypes,
	}, nil
}
