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

func TestRxNormClient_Resolve(t *testing.T) {
	tests := []struct {
		name           string
		drugName       string
		mockJSON       string
		expectError    bool
		expectNotFound bool
		expectedCUI    string
		expectedName   string
	}{
		{
			name:     "approximate match",
			drugName: "clopidogrel",
			mockJSON: `{"approximateGroup": {"candidate": [
				{"rxcui": "32968", "name": "clopidogrel", "score": "100"},
				{"rxcui": "213169", "name": "clopidogrel 75 MG", "score": "50"}
			]}}`,
			expectedCUI:  "32968",
			expectedName: "clopidogrel",
		},
		{
			name:           "no candidates",
			drugName:       "nosuchdrug",
			mockJSON:       `{"approximateGroup": {"candidate": []}}`,
			expectError:    true,
			expectNotFound: true,
		},
		{
			name:           "missing group",
			drugName:       "nosuchdrug",
			mockJSON:       `{}`,
			expectError:    true,
			expectNotFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/approximateTerm.json", r.URL.Path)
				assert.Equal(t, tt.drugName, r.URL.Query().Get("term"))
				w.Write([]byte(tt.mockJSON))
			}))
			defer server.Close()

			client := NewRxNormClient(domain.APIConfig{BaseURL: server.URL}, NewClient(ClientConfig{DefaultRate: 100}, nil), logrus.New())
			concept, err := client.Resolve(context.Background(), tt.drugName)
			if tt.expectError {
				require.Error(t, err)
				if tt.expectNotFound {
					assert.True(t, domain.IsNotFound(err))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCUI, concept.CUI)
			assert.Equal(t, tt.expectedName, concept.Name)
			assert.Equal(t, "http://purl.bioontology.org/ontology/RXNORM/"+tt.expectedCUI, concept.URI)
		})
	}
}

func TestRxNormClient_Resolve_EmptyName(t *testing.T) {
	client := NewRxNormClient(domain.APIConfig{BaseURL: "http://localhost"}, NewClient(ClientConfig{}, nil), logrus.New())
	_, err := client.Resolve(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindContractViolation, domain.KindOf(err))
}
