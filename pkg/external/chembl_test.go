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

func TestIsPGxTarget(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		expected bool
	}{
		{"cyp enzyme", "Cytochrome P450 CYP2C19", true},
		{"lowercase cyp", "cyp3a4", true},
		{"transporter", "SLCO1B1 solute carrier", true},
		{"unrelated target", "Dopamine receptor D2", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPGxTarget(tt.target))
		})
	}
}

func TestMoleculeScore(t *testing.T) {
	tests := []struct {
		name     string
		molecule map[string]interface{}
		phase    float64
		expected float64
	}{
		{
			name:     "bare molecule",
			molecule: map[string]interface{}{},
			expected: 0,
		},
		{
			name: "approved drug with indication",
			molecule: map[string]interface{}{
				"max_phase":      float64(4),
				"first_approval": float64(1997),
			},
			phase:    4,
			expected: 4*10 + 4 + 100,
		},
		{
			name: "withdrawn drug penalised",
			molecule: map[string]interface{}{
				"max_phase":      float64(4),
				"first_approval": float64(1985),
				"withdrawn_flag": true,
			},
			phase:    4,
			expected: 4*10 + 4 + 100 - 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MoleculeScore(tt.molecule, tt.phase))
		})
	}
}

func TestSelectMolecule(t *testing.T) {
	experimental := map[string]interface{}{"molecule_chembl_id": "CHEMBL100", "max_phase": float64(1)}
	approved := map[string]interface{}{"molecule_chembl_id": "CHEMBL1771", "max_phase": float64(4), "first_approval": float64(1997)}

	selected := SelectMolecule(
		[]map[string]interface{}{experimental, approved},
		map[string]float64{"CHEMBL1771": 4},
	)
	require.NotNil(t, selected)
	assert.Equal(t, "CHEMBL1771", domain.GetString(selected, "molecule_chembl_id"))

	assert.Nil(t, SelectMolecule(nil, nil))
}

func TestPropFloat_StringSerialisedProperties(t *testing.T) {
	props := map[string]interface{}{
		"alogp": "3.81",
		"hbd":   float64(1),
		"psa":   "not a number",
	}
	v, ok := propFloat(props, "alogp")
	require.True(t, ok)
	assert.Equal(t, 3.81, v)

	n, ok := propInt(props, "hbd")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, ok = propFloat(props, "psa")
	assert.False(t, ok)
	_, ok = propFloat(props, "missing")
	assert.False(t, ok)
}

func TestChEMBLClient_EnrichDrug(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/molecule/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "clopidogrel", r.URL.Query().Get("q"))
		w.Write([]byte(`{
			"molecules": [{
				"molecule_chembl_id": "CHEMBL1771",
				"pref_name": "CLOPIDOGREL",
				"max_phase": 4,
				"first_approval": 1997,
				"molecule_properties": {"alogp": "3.81", "hbd": "0"}
			}]
		}`))
	})
	mux.HandleFunc("/drug_indication", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"drug_indications": [{"max_phase_for_ind": 4}]}`))
	})
	mux.HandleFunc("/mechanism", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"mechanisms": [
				{"target_pref_name": "Cytochrome P450 2C19", "target_chembl_id": "CHEMBL3622", "action_type": "SUBSTRATE", "mechanism_of_action": "P2Y12 receptor antagonist"},
				{"target_pref_name": "Purinergic receptor P2Y12", "mechanism_of_action": "P2Y12 receptor antagonist"}
			]
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewChEMBLClient(domain.APIConfig{BaseURL: server.URL}, NewClient(ClientConfig{DefaultRate: 100}, nil), logrus.New())
	enrichment, err := client.EnrichDrug(context.Background(), "clopidogrel")
	require.NoError(t, err)

	assert.Equal(t, "CHEMBL1771", enrichment.Compound.ChEMBLID)
	assert.Equal(t, "CLOPIDOGREL", enrichment.Compound.PreferredName)
	assert.Equal(t, float64(4), enrichment.Compound.MaxPhase)
	assert.Equal(t, 1997, enrichment.Compound.FirstApproval)
	require.NotNil(t, enrichment.Compound.ALogP)
	assert.Equal(t, 3.81, *enrichment.Compound.ALogP)

	// Only the PGx-relevant target survives the filter.
	require.Len(t, enrichment.Targets, 1)
	assert.Equal(t, "Cytochrome P450 2C19", enrichment.Targets[0].TargetName)
	assert.Equal(t, []string{"P2Y12 receptor antagonist"}, enrichment.Mechanisms)
}

func TestChEMBLClient_EnrichDrug_NoMolecules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"molecules": []}`))
	}))
	defer server.Close()

	client := NewChEMBLClient(domain.APIConfig{BaseURL: server.URL}, NewClient(ClientConfig{DefaultRate: 100}, nil), logrus.New())
	_, err := client.EnrichDrug(context.Background(), "nosuchdrug")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}
