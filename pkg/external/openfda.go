package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// OpenFDAClient mines drug label adverse-reaction text from the openFDA API.
type OpenFDAClient struct {
	baseURL string
	apiKey  string
	client  *Client
	logger  *logrus.Logger
}

// NewOpenFDAClient creates an openFDA client.
func NewOpenFDAClient(config domain.APIConfig, client *Client, logger *logrus.Logger) *OpenFDAClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.fda.gov"
	}
	if config.RateLimit > 0 {
		if u, err := url.Parse(config.BaseURL); err == nil {
			client.SetHostRate(u.Host, config.RateLimit)
		}
	}
	return &OpenFDAClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client:  client,
		logger:  logger,
	}
}

// adverseTerms are the common adverse-event terms mined from label text and
// mapped to SNOMED when BioPortal is configured.
var adverseTerms = []string{"myopathy", "bleeding", "rash", "nausea", "hepatotoxicity"}

// FetchAdverseReactions fetches the adverse-reaction section of the first
// matching drug label.
func (o *OpenFDAClient) FetchAdverseReactions(ctx context.Context, drugName string) (string, error) {
	params := url.Values{
		"search": {fmt.Sprintf(`openfda.generic_name:"%s" OR openfda.brand_name:"%s"`, drugName, drugName)},
		"limit":  {"1"},
	}
	if o.apiKey != "" {
		params.Set("api_key", o.apiKey)
	}
	var payload map[string]interface{}
	if err := o.client.GetJSON(ctx, o.baseURL+"/drug/label.json", params, nil, &payload); err != nil {
		return "", fmt.Errorf("openfda label for %s: %w", drugName, err)
	}
	results := domain.GetMapSlice(payload, "results")
	if len(results) == 0 {
		return "", domain.NewNotFoundError("openfda", "label for "+drugName)
	}
	sections := domain.GetStringSlice(results[0], "adverse_reactions")
	if len(sections) == 0 {
		return "", domain.NewNotFoundError("openfda", "adverse reactions for "+drugName)
	}
	return strings.Join(sections, "\n"), nil
}

// MineAdverseTerms returns the known adverse-event terms present in label
// text, in the fixed term order.
func MineAdverseTerms(labelText string) []string {
	lower := strings.ToLower(labelText)
	var found []string
	for _, term := range adverseTerms {
		if strings.Contains(lower, term) {
			found = append(found, term)
		}
	}
	return found
}
