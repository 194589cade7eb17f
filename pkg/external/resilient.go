package external

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// KnowledgeBase is the facade the pipeline talks to. It wraps the upstream
// clients with circuit breakers and the evidence cache; on an open breaker a
// cached value still serves.
type KnowledgeBase struct {
	UniProt   *UniProtClient
	ClinVar   *ClinVarClient
	PharmGKB  *PharmGKBClient
	ChEMBL    *ChEMBLClient
	OpenFDA   *OpenFDAClient
	EuropePMC *EuropePMCClient
	BioPortal *BioPortalClient
	RxNorm    *RxNormClient

	cache  *EvidenceCache
	logger *logrus.Logger

	clinVarBreaker   *gobreaker.CircuitBreaker
	pharmGKBBreaker  *gobreaker.CircuitBreaker
	europePMCBreaker *gobreaker.CircuitBreaker
	chemblBreaker    *gobreaker.CircuitBreaker
}

// NewKnowledgeBase wires the upstream clients, the cache, and the breakers.
func NewKnowledgeBase(cfg domain.ExternalAPIConfig, cacheCfg domain.CacheConfig, logger *logrus.Logger) (*KnowledgeBase, error) {
	if logger == nil {
		logger = logrus.New()
	}
	client := NewClient(ClientConfig{}, logger)
	cache, err := NewEvidenceCache(cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence cache: %w", err)
	}

	kb := &KnowledgeBase{
		UniProt:   NewUniProtClient(cfg.UniProt, cfg.UniProtVariation, client, logger),
		ClinVar:   NewClinVarClient(cfg.ClinVar, client, logger),
		PharmGKB:  NewPharmGKBClient(cfg.PharmGKB, client, logger),
		ChEMBL:    NewChEMBLClient(cfg.ChEMBL, client, logger),
		OpenFDA:   NewOpenFDAClient(cfg.OpenFDA, client, logger),
		EuropePMC: NewEuropePMCClient(cfg.EuropePMC, client, logger),
		BioPortal: NewBioPortalClient(cfg.BioPortal, cfg.ClinicalTables, client, logger),
		RxNorm:    NewRxNormClient(cfg.RxNorm, client, logger),
		cache:     cache,
		logger:    logger,
	}
	kb.clinVarBreaker = kb.newBreaker("ClinVar")
	kb.pharmGKBBreaker = kb.newBreaker("PharmGKB")
	kb.europePMCBreaker = kb.newBreaker("EuropePMC")
	kb.chemblBreaker = kb.newBreaker("ChEMBL")
	return kb, nil
}

func (k *KnowledgeBase) newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			k.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
	})
}

// ClinVarEvidence fetches the ClinVar block for an rsID with breaker and
// cache.
func (k *KnowledgeBase) ClinVarEvidence(ctx context.Context, rsid string) (*domain.ClinVarEvidence, error) {
	key := ClinVarCacheKey(rsid)
	var cached domain.ClinVarEvidence
	if hit, err := k.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	result, err := k.clinVarBreaker.Execute(func() (interface{}, error) {
		return k.ClinVar.FetchByRSID(ctx, rsid)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, domain.NewTransientError("clinvar", 0, fmt.Errorf("circuit breaker open"))
		}
		return nil, err
	}
	evidence := result.(*domain.ClinVarEvidence)
	if cacheErr := k.cache.Set(ctx, key, evidence, 0); cacheErr != nil {
		k.logger.WithError(cacheErr).Warn("Failed to cache ClinVar evidence")
	}
	return evidence, nil
}

// PharmGKBGeneAnnotations fetches gene-level annotations with breaker and
// cache.
func (k *KnowledgeBase) PharmGKBGeneAnnotations(ctx context.Context, geneSymbol string) ([]domain.PharmGKBAnnotation, error) {
	return k.pharmGKBAnnotations(ctx, "gene:"+geneSymbol, func() ([]map[string]interface{}, error) {
		return k.PharmGKB.FetchGeneAnnotations(ctx, geneSymbol)
	})
}

// PharmGKBVariantAnnotations fetches variant-level annotations with breaker
// and cache.
func (k *KnowledgeBase) PharmGKBVariantAnnotations(ctx context.Context, rsid string) ([]domain.PharmGKBAnnotation, error) {
	return k.pharmGKBAnnotations(ctx, "variant:"+rsid, func() ([]map[string]interface{}, error) {
		return k.PharmGKB.FetchVariantAnnotations(ctx, rsid)
	})
}

func (k *KnowledgeBase) pharmGKBAnnotations(ctx context.Context, scope string, fetch func() ([]map[string]interface{}, error)) ([]domain.PharmGKBAnnotation, error) {
	key := PharmGKBCacheKey(scope)
	var cached []domain.PharmGKBAnnotation
	if hit, err := k.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	result, err := k.pharmGKBBreaker.Execute(func() (interface{}, error) {
		raw, err := fetch()
		if err != nil {
			return nil, err
		}
		return NormaliseAnnotations(raw), nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, domain.NewTransientError("pharmgkb", 0, fmt.Errorf("circuit breaker open"))
		}
		return nil, err
	}
	annotations := result.([]domain.PharmGKBAnnotation)
	if cacheErr := k.cache.Set(ctx, key, annotations, 0); cacheErr != nil {
		k.logger.WithError(cacheErr).Warn("Failed to cache PharmGKB annotations")
	}
	return annotations, nil
}

// Publication hydrates one PMID with breaker and cache. On failure the
// caller degrades to PlaceholderPublication.
func (k *KnowledgeBase) Publication(ctx context.Context, pmid string) (*domain.Publication, error) {
	key := PublicationCacheKey(pmid)
	var cached domain.Publication
	if hit, err := k.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	result, err := k.europePMCBreaker.Execute(func() (interface{}, error) {
		return k.EuropePMC.FetchByPMID(ctx, pmid)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, domain.NewTransientError("europepmc", 0, fmt.Errorf("circuit breaker open"))
		}
		return nil, err
	}
	pub := result.(*domain.Publication)
	if cacheErr := k.cache.Set(ctx, key, pub, 0); cacheErr != nil {
		k.logger.WithError(cacheErr).Warn("Failed to cache publication")
	}
	return pub, nil
}

// DrugEnrichment enriches a drug via ChEMBL with breaker protection.
func (k *KnowledgeBase) DrugEnrichment(ctx context.Context, name string) (*ChEMBLEnrichment, error) {
	result, err := k.chemblBreaker.Execute(func() (interface{}, error) {
		return k.ChEMBL.EnrichDrug(ctx, name)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, domain.NewTransientError("chembl", 0, fmt.Errorf("circuit breaker open"))
		}
		return nil, err
	}
	return result.(*ChEMBLEnrichment), nil
}

// BreakerStates reports the current breaker states for health checks.
func (k *KnowledgeBase) BreakerStates() map[string]gobreaker.State {
	return map[string]gobreaker.State{
		"clinvar":   k.clinVarBreaker.State(),
		"pharmgkb":  k.pharmGKBBreaker.State(),
		"europepmc": k.europePMCBreaker.State(),
		"chembl":    k.chemblBreaker.State(),
	}
}

// Close releases cache resources.
func (k *KnowledgeBase) Close() error {
	return k.cache.Close()
}
