package external

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// UniProtClient resolves gene symbols to reviewed human accessions and
// fetches protein variation data from the EMBL-EBI Proteins API.
type UniProtClient struct {
	searchURL    string
	variationURL string
	client       *Client
	logger       *logrus.Logger
}

// NewUniProtClient creates a UniProt client. Search and variation live on
// different hosts, so each carries its own configuration.
func NewUniProtClient(config, variation domain.APIConfig, client *Client, logger *logrus.Logger) *UniProtClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://rest.uniprot.org"
	}
	if variation.BaseURL == "" {
		variation.BaseURL = "https://www.ebi.ac.uk/proteins/api"
	}
	for _, cfg := range []domain.APIConfig{config, variation} {
		if cfg.RateLimit > 0 {
			if u, err := url.Parse(cfg.BaseURL); err == nil {
				client.SetHostRate(u.Host, cfg.RateLimit)
			}
		}
	}
	return &UniProtClient{
		searchURL:    strings.TrimRight(config.BaseURL, "/") + "/uniprotkb/search",
		variationURL: strings.TrimRight(variation.BaseURL, "/") + "/variation",
		client:       client,
		logger:       logger,
	}
}

// ResolveAccession resolves a gene symbol to a reviewed human UniProt
// accession. The search is restricted to organism 9606 and reviewed entries;
// the first hit wins, and its organism string must contain "homo sapiens".
func (u *UniProtClient) ResolveAccession(ctx context.Context, geneSymbol string) (string, error) {
	geneSymbol = strings.TrimSpace(geneSymbol)
	if geneSymbol == "" {
		return "", domain.NewContractViolation("gene_symbol", "gene symbol cannot be empty")
	}

	query := url.Values{
		"query":  {fmt.Sprintf("gene_exact:%s AND organism_id:9606 AND reviewed:true", geneSymbol)},
		"fields": {"accession,organism_name"},
		"format": {"tsv"},
		"size":   {"5"},
	}
	body, err := u.client.Get(ctx, u.searchURL, query, map[string]string{"Accept": "text/plain"})
	if err != nil {
		return "", fmt.Errorf("uniprot search for %s: %w", geneSymbol, err)
	}

	accession, organism, ok := parseUniProtTSV(string(body))
	if !ok {
		return "", domain.NewNotFoundError("uniprot", "gene "+geneSymbol)
	}
	if !strings.Contains(strings.ToLower(organism), "homo sapiens") {
		return "", domain.NewNotFoundError("uniprot", "human entry for gene "+geneSymbol)
	}
	return accession, nil
}

// parseUniProtTSV picks the first data row of a two-column TSV result.
func parseUniProtTSV(body string) (accession, organism string, ok bool) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) < 2 {
		return "", "", false
	}
	fields := strings.Split(lines[1], "\t")
	if len(fields) < 2 || fields[0] == "" {
		return "", "", false
	}
	return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), true
}

// FetchVariants fetches the raw variation payload for an accession.
func (u *UniProtClient) FetchVariants(ctx context.Context, accession string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	err := u.client.GetJSON(ctx, u.variationURL+"/"+url.PathEscape(accession), nil, nil, &payload)
	if err != nil {
		return nil, fmt.Errorf("uniprot variation fetch for %s: %w", accession, err)
	}
	return payload, nil
}

// FilterClinical keeps the features that carry clinicalSignificances.
func FilterClinical(raw map[string]interface{}) []map[string]interface{} {
	features := domain.GetMapSlice(raw, "features")
	out := make([]map[string]interface{}, 0, len(features))
	for _, f := range features {
		if len(domain.GetMapSlice(f, "clinicalSignificances", "clinical_significances")) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// SignificanceOf returns the first clinical significance type of a feature.
func SignificanceOf(feature map[string]interface{}) string {
	for _, cs := range domain.GetMapSlice(feature, "clinicalSignificances", "clinical_significances") {
		if t := domain.GetString(cs, "type", "significance"); t != "" {
			return t
		}
	}
	return "Uncertain significance"
}

// Categorise groups clinical variants by significance.
func Categorise(variants []map[string]interface{}) map[string][]map[string]interface{} {
	out := make(map[string][]map[string]interface{})
	for _, v := range variants {
		sig := SignificanceOf(v)
		out[sig] = append(out[sig], v)
	}
	return out
}

// VariantScore ranks a feature by metadata richness: a population-frequency
// block is worth 100 (plus 20 when two or more frequency sources agree) and
// an evidences block 50 (plus 30 when any evidence cites PubMed).
func VariantScore(feature map[string]interface{}) int {
	score := 0
	if freqs := domain.GetMapSlice(feature, "populationFrequencies", "population_frequencies"); len(freqs) > 0 {
		score += 100
		sources := make(map[string]bool)
		for _, f := range freqs {
			if s := domain.GetString(f, "source", "sourceName"); s != "" {
				sources[s] = true
			}
		}
		if len(sources) >= 2 {
			score += 20
		}
	}
	if evs := domain.GetMapSlice(feature, "evidences"); len(evs) > 0 {
		score += 50
		for _, ev := range evs {
			if src := domain.GetMap(ev, "source"); src != nil {
				if strings.EqualFold(domain.GetString(src, "name"), "pubmed") {
					score += 30
					break
				}
			}
		}
	}
	return score
}

// RankVariants sorts features by descending score, stable within ties.
func RankVariants(variants []map[string]interface{}) []map[string]interface{} {
	ranked := make([]map[string]interface{}, len(variants))
	copy(ranked, variants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return VariantScore(ranked[i]) > VariantScore(ranked[j])
	})
	return ranked
}

// PubMedEvidence pairs a feature with the PubMed ids its evidences cite.
type PubMedEvidence struct {
	Variant   map[string]interface{} `json:"variant"`
	PubMedIDs []string               `json:"pubmed_ids"`
}

// ExtractPubMedEvidence walks categorised variants and collects, per
// category and feature id, the PubMed ids cited by the feature's evidences.
func ExtractPubMedEvidence(categorised map[string][]map[string]interface{}) map[string]map[string]PubMedEvidence {
	out := make(map[string]map[string]PubMedEvidence)
	for category, variants := range categorised {
		for _, v := range variants {
			pmids := PubMedIDsOf(v)
			if len(pmids) == 0 {
				continue
			}
			ftID := domain.GetString(v, "ftId", "ftID", "ft_id")
			if ftID == "" {
				ftID = domain.GetString(v, "genomicLocation") // fallback key for unnamed features
			}
			if ftID == "" {
				continue
			}
			if out[category] == nil {
				out[category] = make(map[string]PubMedEvidence)
			}
			out[category][ftID] = PubMedEvidence{Variant: v, PubMedIDs: pmids}
		}
	}
	return out
}

// PubMedIDsOf returns the PubMed ids cited by a feature's evidences.
func PubMedIDsOf(feature map[string]interface{}) []string {
	var pmids []string
	seen := make(map[string]bool)
	for _, ev := range domain.GetMapSlice(feature, "evidences") {
		src := domain.GetMap(ev, "source")
		if src == nil {
			continue
		}
		if !strings.EqualFold(domain.GetString(src, "name"), "pubmed") {
			continue
		}
		id := domain.GetString(src, "id")
		if id != "" && !seen[id] {
			seen[id] = true
			pmids = append(pmids, id)
		}
	}
	return pmids
}

// RSIDOf extracts a dbSNP rsID from a feature's xrefs. Never fabricates one.
func RSIDOf(feature map[string]interface{}) string {
	for _, xref := range domain.GetMapSlice(feature, "xrefs") {
		name := strings.ToLower(domain.GetString(xref, "name"))
		if name != "dbsnp" {
			continue
		}
		id := domain.GetString(xref, "id")
		if domain.RSIDPattern.MatchString(id) {
			return id
		}
	}
	return ""
}

// FeatureToVariant converts a raw UniProt feature into the canonical variant
// model, keeping the raw payload for downstream re-emission.
func FeatureToVariant(geneSymbol, accession string, feature map[string]interface{}) domain.Variant {
	v := domain.Variant{
		GeneSymbol:           geneSymbol,
		ProteinID:            accession,
		VariantID:            domain.GetString(feature, "ftId", "ftID", "ft_id"),
		RSID:                 RSIDOf(feature),
		ClinicalSignificance: SignificanceOf(feature),
		ConsequenceType:      domain.GetString(feature, "consequenceType", "consequence_type"),
		WildType:             domain.GetString(feature, "wildType", "wild_type"),
		AlternativeSequence:  domain.GetString(feature, "alternativeSequence", "alternative_sequence", "mutatedType"),
		Codon:                domain.GetString(feature, "codon"),
		GenomicNotation:      domain.GenomicLocation(feature),
		HGVSNotation:         domain.GetString(feature, "hgvs", "hgvsNotation"),
		RawUniProtData:       feature,
	}
	if begin, ok := positionOf(feature, "begin"); ok {
		v.BeginPosition = begin
	}
	if end, ok := positionOf(feature, "end"); ok {
		v.EndPosition = end
	}
	if v.VariantID == "" {
		v.VariantID = fmt.Sprintf("%s_%d%s>%s", geneSymbol, v.BeginPosition, v.WildType, v.AlternativeSequence)
	}
	if freqs := domain.GetMapSlice(feature, "populationFrequencies", "population_frequencies"); len(freqs) > 0 {
		v.PopulationFrequencies = make(map[string]float64, len(freqs))
		for _, f := range freqs {
			name := domain.GetString(f, "populationName", "population", "population_name")
			if name == "" {
				continue
			}
			if freq, ok := domain.GetFloat(f, "frequency", "alleleFrequency"); ok {
				v.PopulationFrequencies[name] = freq
			}
		}
	}
	return v
}

// positionOf reads begin/end positions that arrive as strings or numbers.
func positionOf(feature map[string]interface{}, key string) (int, bool) {
	if n, ok := domain.GetInt(feature, key); ok {
		return n, true
	}
	if s := domain.GetString(feature, key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

// RestoreEvidences copies evidences back onto selected features when the
// selection copy stripped them, matching originals on feature location or
// genomic location.
func RestoreEvidences(selected []map[string]interface{}, originals []map[string]interface{}) {
	for _, sel := range selected {
		if len(domain.GetMapSlice(sel, "evidences")) > 0 {
			continue
		}
		for _, orig := range originals {
			if len(domain.GetMapSlice(orig, "evidences")) == 0 {
				continue
			}
			if sameLocation(sel, orig) {
				sel["evidences"] = orig["evidences"]
				break
			}
		}
	}
}

func sameLocation(a, b map[string]interface{}) bool {
	ab, aok := positionOf(a, "begin")
	bb, bok := positionOf(b, "begin")
	if aok && bok && ab == bb &&
		domain.GetString(a, "wildType", "wild_type") == domain.GetString(b, "wildType", "wild_type") &&
		domain.GetString(a, "alternativeSequence", "alternative_sequence") == domain.GetString(b, "alternativeSequence", "alternative_sequence") {
		return true
	}
	ga := domain.GenomicLocation(a)
	gb := domain.GenomicLocation(b)
	return ga != "" && ga == gb
}
