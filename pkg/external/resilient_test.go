package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Once an evidence block is cached, later lookups keep serving it even when
// the upstream has gone down and the breaker is counting failures.
func TestKnowledgeBase_CachedEvidenceSurvivesUpstreamFailure(t *testing.T) {
	searchXML := `<?xml version="1.0"?>
<eSearchResult>
	<Count>1</Count>
	<IdList><Id>634</Id></IdList>
</eSearchResult>`
	summaryXML := `<?xml version="1.0"?>
<eSummaryResult>
	<DocumentSummarySet>
		<DocumentSummary uid="634">
			<germline_classification>
				<review_status>practice guideline</review_status>
				<description>drug response</description>
				<trait_set>
					<trait><trait_name>Clopidogrel response</trait_name></trait>
				</trait_set>
			</germline_classification>
		</DocumentSummary>
	</DocumentSummarySet>
</eSummaryResult>`

	var healthy atomic.Bool
	healthy.Store(true)
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		if !healthy.Load() {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			w.Write([]byte(searchXML))
		case strings.HasSuffix(r.URL.Path, "/esummary.fcgi"):
			w.Write([]byte(summaryXML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	kb, err := NewKnowledgeBase(domain.ExternalAPIConfig{
		ClinVar: domain.APIConfig{BaseURL: server.URL},
	}, domain.CacheConfig{}, logrus.New())
	require.NoError(t, err)
	defer kb.Close()

	ctx := context.Background()
	first, err := kb.ClinVarEvidence(ctx, "rs4244285")
	require.NoError(t, err)
	assert.Equal(t, 4, first.StarRating)
	assert.Equal(t, "practice guideline", first.ReviewStatus)
	onWire := atomic.LoadInt64(&requests)

	healthy.Store(false)
	for i := 0; i < 5; i++ {
		again, err := kb.ClinVarEvidence(ctx, "rs4244285")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Served entirely from the cache; nothing reached the dead upstream.
	assert.Equal(t, onWire, atomic.LoadInt64(&requests))
}

func TestKnowledgeBase_BreakerStates(t *testing.T) {
	kb, err := NewKnowledgeBase(domain.ExternalAPIConfig{}, domain.CacheConfig{}, logrus.New())
	require.NoError(t, err)
	defer kb.Close()

	states := kb.BreakerStates()
	for _, name := range []string{"clinvar", "pharmgkb", "europepmc", "chembl"} {
		assert.Contains(t, states, name)
	}
}
