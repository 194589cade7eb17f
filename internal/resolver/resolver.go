package resolver

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// Resolver memoises identifier resolution across the worker pool. Entries
// are added, never mutated, within a run; writes are serialised, reads are
// concurrent. Cache keys are lower-cased and trimmed; there is no TTL.
type Resolver struct {
	kb     *external.KnowledgeBase
	logger *logrus.Logger

	mu         sync.Mutex
	uniprot    *lru.Cache[string, string]
	snomed     *lru.Cache[string, external.SnomedMatch]
	drugSnomed *lru.Cache[string, external.SnomedMatch]
	rxnorm     *lru.Cache[string, external.RxNormConcept]
	misses     map[string]bool
}

// Config sizes the resolver caches.
type Config struct {
	CacheSize int
}

// New creates an identifier resolver over the knowledge base.
func New(kb *external.KnowledgeBase, config Config, logger *logrus.Logger) (*Resolver, error) {
	if config.CacheSize == 0 {
		config.CacheSize = 2048
	}
	if logger == nil {
		logger = logrus.New()
	}
	uniprot, err := lru.New[string, string](config.CacheSize)
	if err != nil {
		return nil, err
	}
	snomed, err := lru.New[string, external.SnomedMatch](config.CacheSize)
	if err != nil {
		return nil, err
	}
	drugSnomed, err := lru.New[string, external.SnomedMatch](config.CacheSize)
	if err != nil {
		return nil, err
	}
	rxnorm, err := lru.New[string, external.RxNormConcept](config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		kb:         kb,
		logger:     logger,
		uniprot:    uniprot,
		snomed:     snomed,
		drugSnomed: drugSnomed,
		rxnorm:     rxnorm,
		misses:     make(map[string]bool),
	}, nil
}

func cacheKey(kind, term string) string {
	return kind + ":" + domain.NormalizeKey(term)
}

// knownMiss consults the negative cache so repeated misses skip the wire.
func (r *Resolver) knownMiss(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.misses[key]
}

func (r *Resolver) recordMiss(key string) {
	r.mu.Lock()
	r.misses[key] = true
	r.mu.Unlock()
}

// ResolveUniProt resolves a gene symbol to a reviewed human accession.
func (r *Resolver) ResolveUniProt(ctx context.Context, geneSymbol string) (string, error) {
	key := domain.NormalizeKey(geneSymbol)
	if key == "" {
		return "", domain.NewContractViolation("gene_symbol", "gene symbol cannot be empty")
	}
	if accession, ok := r.uniprot.Get(key); ok {
		return accession, nil
	}
	if r.knownMiss(cacheKey("uniprot", key)) {
		return "", domain.NewNotFoundError("uniprot", "gene "+geneSymbol)
	}

	accession, err := r.kb.UniProt.ResolveAccession(ctx, geneSymbol)
	if err != nil {
		if domain.IsNotFound(err) {
			r.recordMiss(cacheKey("uniprot", key))
		}
		return "", err
	}
	r.mu.Lock()
	r.uniprot.Add(key, accession)
	r.mu.Unlock()
	return accession, nil
}

// ResolveSNOMED resolves a clinical term to a SNOMED CT concept.
func (r *Resolver) ResolveSNOMED(ctx context.Context, term string) (*external.SnomedMatch, error) {
	key := domain.NormalizeKey(term)
	if key == "" {
		return nil, domain.NewContractViolation("term", "term cannot be empty")
	}
	if match, ok := r.snomed.Get(key); ok {
		return &match, nil
	}
	if r.knownMiss(cacheKey("snomed", key)) {
		return nil, domain.NewNotFoundError("snomed", term)
	}

	match, err := r.kb.BioPortal.SearchTerm(ctx, term)
	if err != nil {
		if domain.IsNotFound(err) {
			r.recordMiss(cacheKey("snomed", key))
		}
		return nil, err
	}
	r.mu.Lock()
	r.snomed.Add(key, *match)
	r.mu.Unlock()
	return match, nil
}

// ResolveDrugSNOMED resolves a drug name to a SNOMED substance concept.
// The BioPortal substance ladder runs first; the RxNorm-standardised
// display name is the final strategy.
func (r *Resolver) ResolveDrugSNOMED(ctx context.Context, name string) (*external.SnomedMatch, error) {
	key := domain.NormalizeKey(name)
	if key == "" {
		return nil, domain.NewContractViolation("name", "drug name cannot be empty")
	}
	if match, ok := r.drugSnomed.Get(key); ok {
		return &match, nil
	}
	if r.knownMiss(cacheKey("drug_snomed", key)) {
		return nil, domain.NewNotFoundError("snomed", "substance "+name)
	}

	match, err := r.kb.BioPortal.SearchDrug(ctx, name)
	if err != nil && domain.IsNotFound(err) {
		if display, rxErr := r.kb.RxNorm.DisplayName(ctx, name); rxErr == nil && !strings.EqualFold(display, name) {
			match, err = r.kb.BioPortal.SearchDrug(ctx, display)
		}
	}
	if err != nil {
		if domain.IsNotFound(err) {
			r.recordMiss(cacheKey("drug_snomed", key))
		}
		return nil, err
	}
	r.mu.Lock()
	r.drugSnomed.Add(key, *match)
	r.mu.Unlock()
	return match, nil
}

// ResolveRxNorm resolves a drug name to an RxNorm CUI.
func (r *Resolver) ResolveRxNorm(ctx context.Context, name string) (*external.RxNormConcept, error) {
	key := domain.NormalizeKey(name)
	if key == "" {
		return nil, domain.NewContractViolation("name", "drug name cannot be empty")
	}
	if concept, ok := r.rxnorm.Get(key); ok {
		return &concept, nil
	}
	if r.knownMiss(cacheKey("rxnorm", key)) {
		return nil, domain.NewNotFoundError("rxnorm", name)
	}

	concept, err := r.kb.RxNorm.Resolve(ctx, name)
	if err != nil {
		if domain.IsNotFound(err) {
			r.recordMiss(cacheKey("rxnorm", key))
		}
		return nil, err
	}
	r.mu.Lock()
	r.rxnorm.Add(key, *concept)
	r.mu.Unlock()
	return concept, nil
}
