package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// RxNormConcept is a resolved RxNorm concept.
type RxNormConcept struct {
	CUI  string `json:"cui"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri"`
}

// RxNormClient resolves drug names to RxNorm concept unique identifiers.
type RxNormClient struct {
	baseURL string
	client  *Client
	logger  *logrus.Logger
}

// NewRxNormClient creates an RxNorm client.
func NewRxNormClient(config domain.APIConfig, client *Client, logger *logrus.Logger) *RxNormClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://rxnav.nlm.nih.gov/REST"
	}
	if config.RateLimit > 0 {
		if u, err := url.Parse(config.BaseURL); err == nil {
			client.SetHostRate(u.Host, config.RateLimit)
		}
	}
	return &RxNormClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Resolve maps a drug name to its RxNorm CUI using approximate matching.
func (r *RxNormClient) Resolve(ctx context.Context, name string) (*RxNormConcept, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewContractViolation("name", "drug name cannot be empty")
	}
	params := url.Values{
		"term":      {name},
		"maxEntries": {"5"},
	}
	var payload map[string]interface{}
	if err := r.client.GetJSON(ctx, r.baseURL+"/approximateTerm.json", params, nil, &payload); err != nil {
		return nil, fmt.Errorf("rxnorm approximate term for %s: %w", name, err)
	}
	group := domain.GetMap(payload, "approximateGroup")
	if group == nil {
		return nil, domain.NewNotFoundError("rxnorm", name)
	}
	for _, cand := range domain.GetMapSlice(group, "candidate") {
		cui := domain.GetString(cand, "rxcui")
		if cui == "" {
			continue
		}
		return &RxNormConcept{
			CUI:  cui,
			Name: domain.GetString(cand, "name"),
			URI:  "http://purl.bioontology.org/ontology/RXNORM/" + cui,
		}, nil
	}
	return nil, domain.NewNotFoundError("rxnorm", name)
}

// DisplayName returns the RxNorm-standardised display name for a drug,
// used as the final strategy of the drug SNOMED ladder.
func (r *RxNormClient) DisplayName(ctx context.Context, name string) (string, error) {
	concept, err := r.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if concept.Name == "" {
		return "", domain.NewNotFoundError("rxnorm", "display name for "+name)
	}
	return concept.Name, nil
}
