package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-knowledge-graph/internal/domain"
)

func TestResultToPublication_FullTextLadder(t *testing.T) {
	tests := []struct {
		name                string
		result              map[string]interface{}
		expectedFullTextURL string
		expectedPDFURL      string
	}{
		{
			name: "open access with pmcid",
			result: map[string]interface{}{
				"pmid": "20083681", "pmcid": "PMC2857962", "isOpenAccess": true,
			},
			expectedFullTextURL: "https://europepmc.org/article/PMC/PMC2857962",
			expectedPDFURL:      "https://europepmc.org/articles/PMC2857962?pdf=render",
		},
		{
			name: "pmcid without open access",
			result: map[string]interface{}{
				"pmid": "20083681", "pmcid": "PMC2857962",
			},
			expectedFullTextURL: "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC2857962/",
		},
		{
			name: "full text flag only",
			result: map[string]interface{}{
				"pmid": "20083681", "fullTextOpenFlag": "Y",
			},
			expectedFullTextURL: "https://europepmc.org/article/MED/20083681",
		},
		{
			name:   "no full text signals",
			result: map[string]interface{}{"pmid": "20083681"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := ResultToPublication(tt.result)
			assert.Equal(t, tt.expectedFullTextURL, pub.FullTextURL)
			assert.Equal(t, tt.expectedPDFURL, pub.PDFURL)
		})
	}
}

func TestResultToPublication_Fields(t *testing.T) {
	pub := ResultToPublication(map[string]interface{}{
		"pmid":         "20083681",
		"doi":          "10.1001/jama.2009.2055",
		"title":        "Cytochrome P450 genetic polymorphisms and clopidogrel response",
		"authorString": "Shuldiner AR, O'Connell JR, Bliden KP.",
		"pubYear":      "2009",
		"citedByCount": float64(1406),
		"journalInfo": map[string]interface{}{
			"journal": map[string]interface{}{"title": "JAMA"},
		},
	})
	assert.Equal(t, "20083681", pub.PMID)
	assert.Equal(t, []string{"Shuldiner AR", "O'Connell JR", "Bliden KP"}, pub.Authors)
	assert.Equal(t, 2009, pub.Year)
	assert.Equal(t, 1406, pub.CitationCount)
	assert.Equal(t, "JAMA", pub.Journal)
}

func TestEuropePMCClient_FetchByPMID(t *testing.T) {
	tests := []struct {
		name           string
		mockJSON       string
		expectError    bool
		expectNotFound bool
		expectedTitle  string
	}{
		{
			name: "hydrated publication",
			mockJSON: `{
				"resultList": {"result": [
					{"pmid": "20083681", "title": "Clopidogrel pharmacogenomics"}
				]}
			}`,
			expectedTitle: "Clopidogrel pharmacogenomics",
		},
		{
			name:           "no results",
			mockJSON:       `{"resultList": {"result": []}}`,
			expectError:    true,
			expectNotFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/search", r.URL.Path)
				assert.Contains(t, r.URL.Query().Get("query"), "EXT_ID:20083681")
				w.Write([]byte(tt.mockJSON))
			}))
			defer server.Close()

			client := NewEuropePMCClient(domain.APIConfig{BaseURL: server.URL}, NewClient(ClientConfig{DefaultRate: 100}, nil), logrus.New())
			pub, err := client.FetchByPMID(context.Background(), "20083681")
			if tt.expectError {
				require.Error(t, err)
				if tt.expectNotFound {
					assert.True(t, domain.IsNotFound(err))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "20083681", pub.PMID)
			assert.Equal(t, tt.expectedTitle, pub.Title)
		})
	}
}

func TestEuropePMCClient_SearchDeduplicatesByPMID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"resultList": {"result": [
				{"pmid": "111", "title": "first"},
				{"pmid": "111", "title": "duplicate"},
				{"pmid": "222", "title": "second"},
				{"title": "no pmid, skipped"}
			]}
		}`))
	}))
	defer server.Close()

	client := NewEuropePMCClient(domain.APIConfig{BaseURL: server.URL}, NewClient(ClientConfig{DefaultRate: 100}, nil), logrus.New())
	pubs, err := client.Search(context.Background(), "rs4244285", 10)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, "111", pubs[0].PMID)
	assert.Equal(t, "222", pubs[1].PMID)
}

func TestPlaceholderPublication(t *testing.T) {
	pub := PlaceholderPublication("12345")
	assert.Equal(t, "12345", pub.PMID)
	assert.Equal(t, "UniProt Evidence (PMID:12345)", pub.Title)
	assert.Empty(t, pub.FullTextURL)
}
