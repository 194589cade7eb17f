package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// EuropePMCClient hydrates publications from the Europe PMC REST API.
type EuropePMCClient struct {
	baseURL string
	client  *Client
	logger  *logrus.Logger
}

// NewEuropePMCClient creates a Europe PMC client.
func NewEuropePMCClient(config domain.APIConfig, client *Client, logger *logrus.Logger) *EuropePMCClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"
	}
	if config.RateLimit > 0 {
		if u, err := url.Parse(config.BaseURL); err == nil {
			client.SetHostRate(u.Host, config.RateLimit)
		}
	}
	return &EuropePMCClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// FetchByPMID hydrates a single publication by PubMed identifier.
func (e *EuropePMCClient) FetchByPMID(ctx context.Context, pmid string) (*domain.Publication, error) {
	results, err := e.search(ctx, fmt.Sprintf("EXT_ID:%s AND SRC:MED", pmid), 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, domain.NewNotFoundError("europepmc", "PMID "+pmid)
	}
	pub := ResultToPublication(results[0])
	if pub.PMID == "" {
		pub.PMID = pmid
	}
	return &pub, nil
}

// Search runs a free-text query and returns hydrated publications,
// de-duplicated by PMID.
func (e *EuropePMCClient) Search(ctx context.Context, term string, limit int) ([]domain.Publication, error) {
	results, err := e.search(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	var pubs []domain.Publication
	seen := make(map[string]bool)
	for _, r := range results {
		pub := ResultToPublication(r)
		if pub.PMID == "" || seen[pub.PMID] {
			continue
		}
		seen[pub.PMID] = true
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

func (e *EuropePMCClient) search(ctx context.Context, query string, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{
		"query":      {query},
		"format":     {"json"},
		"resultType": {"core"},
		"pageSize":   {strconv.Itoa(limit)},
	}
	var payload map[string]interface{}
	if err := e.client.GetJSON(ctx, e.baseURL+"/search", params, nil, &payload); err != nil {
		return nil, fmt.Errorf("europepmc search: %w", err)
	}
	resultList := domain.GetMap(payload, "resultList")
	if resultList == nil {
		return nil, nil
	}
	return domain.GetMapSlice(resultList, "result"), nil
}

// ResultToPublication converts a Europe PMC core result into the canonical
// publication model. Full-text URLs follow the fixed decision ladder: open
// access with a PMCID yields Europe PMC article and PDF URLs; a bare PMCID
// yields PMC Central; a full-text flag alone yields the MED article URL;
// otherwise no full-text URLs are emitted.
func ResultToPublication(result map[string]interface{}) domain.Publication {
	pub := domain.Publication{
		PMID:     domain.GetString(result, "pmid", "id"),
		PMCID:    domain.GetString(result, "pmcid"),
		DOI:      domain.GetString(result, "doi"),
		Title:    domain.GetString(result, "title"),
		Journal:  domain.GetString(result, "journalTitle", "journal_title"),
		Abstract: domain.GetString(result, "abstractText", "abstract_text"),
	}
	if pub.Journal == "" {
		if ji := domain.GetMap(result, "journalInfo"); ji != nil {
			if j := domain.GetMap(ji, "journal"); j != nil {
				pub.Journal = domain.GetString(j, "title")
			}
		}
	}
	if authors := domain.GetString(result, "authorString", "author_string"); authors != "" {
		for _, a := range strings.Split(authors, ",") {
			a = strings.TrimSuffix(strings.TrimSpace(a), ".")
			if a != "" {
				pub.Authors = append(pub.Authors, a)
			}
		}
	}
	if year := domain.GetString(result, "pubYear", "pub_year"); year != "" {
		if y, err := strconv.Atoi(year); err == nil {
			pub.Year = y
		}
	}
	if cites, ok := domain.GetInt(result, "citedByCount", "cited_by_count"); ok {
		pub.CitationCount = cites
	}

	openAccess := domain.GetBool(result, "isOpenAccess", "openAccess", "open_access")
	hasFullText := domain.GetBool(result, "hasTextMinedTerms", "hasFullText", "fullTextOpenFlag", "inEPMC")
	pub.OpenAccess = openAccess

	switch {
	case openAccess && pub.PMCID != "":
		pub.FullTextURL = "https://europepmc.org/article/PMC/" + pub.PMCID
		pub.PDFURL = "https://europepmc.org/articles/" + pub.PMCID + "?pdf=render"
	case pub.PMCID != "":
		pub.FullTextURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/" + pub.PMCID + "/"
	case hasFullText && pub.PMID != "":
		pub.FullTextURL = "https://europepmc.org/article/MED/" + pub.PMID
	}
	return pub
}

// PlaceholderPublication is the degraded record emitted when hydration of a
// UniProt-cited PMID fails; the run still completes with a warning event.
func PlaceholderPublication(pmid string) domain.Publication {
	return domain.Publication{
		PMID:  pmid,
		Title: fmt.Sprintf("UniProt Evidence (PMID:%s)", pmid),
	}
}
