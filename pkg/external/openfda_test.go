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

func TestMineAdverseTerms(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		expected []string
	}{
		{
			name:     "terms in fixed order regardless of text order",
			label:    "Cases of RASH and severe myopathy were reported. Bleeding risk increases with dose.",
			expected: []string{"myopathy", "bleeding", "rash"},
		},
		{name: "no known terms", label: "Headache and dizziness.", expected: nil},
		{name: "empty label", label: "", expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MineAdverseTerms(tt.label))
		})
	}
}

func TestOpenFDAClient_FetchAdverseReactions(t *testing.T) {
	tests := []struct {
		name           string
		mockJSON       string
		expectError    bool
		expectNotFound bool
		expected       string
	}{
		{
			name: "label with adverse reactions",
			mockJSON: `{"results": [
				{"adverse_reactions": ["6 ADVERSE REACTIONS", "Bleeding, including life-threatening bleeding."]}
			]}`,
			expected: "6 ADVERSE REACTIONS\nBleeding, including life-threatening bleeding.",
		},
		{
			name:           "no matching label",
			mockJSON:       `{"results": []}`,
			expectError:    true,
			expectNotFound: true,
		},
		{
			name:           "label without adverse reactions section",
			mockJSON:       `{"results": [{"indications_and_usage": ["..."]}]}`,
			expectError:    true,
			expectNotFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/drug/label.json", r.URL.Path)
				assert.Contains(t, r.URL.Query().Get("search"), "clopidogrel")
				w.Write([]byte(tt.mockJSON))
			}))
			defer server.Close()

			client := NewOpenFDAClient(domain.APIConfig{BaseURL: server.URL}, NewClient(ClientConfig{DefaultRate: 100}, nil), logrus.New())
			text, err := client.FetchAdverseReactions(context.Background(), "clopidogrel")
			if tt.expectError {
				require.Error(t, err)
				if tt.expectNotFound {
					assert.True(t, domain.IsNotFound(err))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}
