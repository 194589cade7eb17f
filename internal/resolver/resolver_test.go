package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-knowledge-graph/internal/domain"
	"github.com/pgx-knowledge-graph/pkg/external"
)

// newTestResolver wires a resolver over one httptest upstream serving every
// external API, counting the requests that actually reach the wire.
func newTestResolver(t *testing.T, handler http.Handler) (*Resolver, *int64) {
	t.Helper()
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	api := domain.ExternalAPIConfig{
		UniProt:          domain.APIConfig{BaseURL: server.URL},
		UniProtVariation: domain.APIConfig{BaseURL: server.URL},
		ClinVar:          domain.APIConfig{BaseURL: server.URL},
		PharmGKB:         domain.APIConfig{BaseURL: server.URL},
		ChEMBL:           domain.APIConfig{BaseURL: server.URL},
		OpenFDA:          domain.APIConfig{BaseURL: server.URL},
		EuropePMC:        domain.APIConfig{BaseURL: server.URL},
		BioPortal:        domain.APIConfig{BaseURL: server.URL},
		RxNorm:           domain.APIConfig{BaseURL: server.URL},
		ClinicalTables:   domain.APIConfig{BaseURL: server.URL},
	}
	kb, err := external.NewKnowledgeBase(api, domain.CacheConfig{}, logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	res, err := New(kb, Config{}, logrus.New())
	require.NoError(t, err)
	return res, &requests
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}

// A miss is memoised: the repeated lookup answers from the negative cache
// without touching the wire, across every identifier kind.
func TestResolver_MissMemoised(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		lookup func(r *Resolver, term string) error
		first  string
		second string
	}{
		{
			name: "uniprot",
			lookup: func(r *Resolver, term string) error {
				_, err := r.ResolveUniProt(ctx, term)
				return err
			},
			first:  "NOTAGENE",
			second: "notagene",
		},
		{
			name: "snomed",
			lookup: func(r *Resolver, term string) error {
				_, err := r.ResolveSNOMED(ctx, term)
				return err
			},
			first:  "no such finding",
			second: "No Such Finding",
		},
		{
			name: "drug snomed",
			lookup: func(r *Resolver, term string) error {
				_, err := r.ResolveDrugSNOMED(ctx, term)
				return err
			},
			first:  "nosuchdrug",
			second: "NOSUCHDRUG",
		},
		{
			name: "rxnorm",
			lookup: func(r *Resolver, term string) error {
				_, err := r.ResolveRxNorm(ctx, term)
				return err
			},
			first:  "nosuchdrug",
			second: " nosuchdrug ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, requests := newTestResolver(t, notFoundHandler())

			err := tt.lookup(res, tt.first)
			require.Error(t, err)
			assert.True(t, domain.IsNotFound(err))
			onWire := atomic.LoadInt64(requests)
			assert.Positive(t, onWire)

			err = tt.lookup(res, tt.second)
			require.Error(t, err)
			assert.True(t, domain.IsNotFound(err))
			assert.Equal(t, onWire, atomic.LoadInt64(requests))
		})
	}
}

func TestResolver_HitMemoised(t *testing.T) {
	res, requests := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/uniprotkb/search":
			w.Write([]byte("Entry\tOrganism\nP33261\tHomo sapiens (Human)"))
		case "/approximateTerm.json":
			w.Write([]byte(`{"approximateGroup": {"candidate": [
				{"rxcui": "32968", "name": "clopidogrel", "score": "100"}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	accession, err := res.ResolveUniProt(ctx, "CYP2C19")
	require.NoError(t, err)
	assert.Equal(t, "P33261", accession)
	concept, err := res.ResolveRxNorm(ctx, "clopidogrel")
	require.NoError(t, err)
	assert.Equal(t, "32968", concept.CUI)
	onWire := atomic.LoadInt64(requests)

	// Lookups differing only in case serve from the cache.
	accession, err = res.ResolveUniProt(ctx, "cyp2c19")
	require.NoError(t, err)
	assert.Equal(t, "P33261", accession)
	concept, err = res.ResolveRxNorm(ctx, "Clopidogrel")
	require.NoError(t, err)
	assert.Equal(t, "32968", concept.CUI)
	assert.Equal(t, onWire, atomic.LoadInt64(requests))
}

func TestResolver_EmptyTermsRejected(t *testing.T) {
	res, requests := newTestResolver(t, notFoundHandler())
	ctx := context.Background()

	_, err := res.ResolveUniProt(ctx, "  ")
	assert.Equal(t, domain.ErrKindContractViolation, domain.KindOf(err))
	_, err = res.ResolveSNOMED(ctx, "")
	assert.Equal(t, domain.ErrKindContractViolation, domain.KindOf(err))
	_, err = res.ResolveDrugSNOMED(ctx, "")
	assert.Equal(t, domain.ErrKindContractViolation, domain.KindOf(err))
	_, err = res.ResolveRxNorm(ctx, " ")
	assert.Equal(t, domain.ErrKindContractViolation, domain.KindOf(err))
	assert.Zero(t, atomic.LoadInt64(requests))
}
