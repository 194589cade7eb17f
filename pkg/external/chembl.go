package external

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// ChEMBLClient enriches drugs with compound, target, and mechanism data from
// the ChEMBL REST API.
type ChEMBLClient struct {
	baseURL string
	client  *Client
	logger  *logrus.Logger
}

// NewChEMBLClient creates a ChEMBL API client.
func NewChEMBLClient(config domain.APIConfig, client *Client, logger *logrus.Logger) *ChEMBLClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.ebi.ac.uk/chembl/api/data"
	}
	if config.RateLimit > 0 {
		if u, err := url.Parse(config.BaseURL); err == nil {
			client.SetHostRate(u.Host, config.RateLimit)
		}
	}
	return &ChEMBLClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// pgxTargets are the pharmacogenomics-relevant target name prefixes kept
// when filtering target interactions.
var pgxTargets = []string{"CYP", "DPYD", "TPMT", "UGT1A1", "SLCO1B1", "ABCB1"}

// IsPGxTarget reports whether a target name is pharmacogenomics-relevant.
func IsPGxTarget(name string) bool {
	upper := strings.ToUpper(name)
	for _, t := range pgxTargets {
		if strings.Contains(upper, t) {
			return true
		}
	}
	return false
}

// CompoundInfo carries the ADMET-relevant molecular properties.
type CompoundInfo struct {
	ChEMBLID          string   `json:"chembl_id"`
	PreferredName     string   `json:"preferred_name,omitempty"`
	MaxPhase          float64  `json:"max_phase,omitempty"`
	FirstApproval     int      `json:"first_approval,omitempty"`
	Withdrawn         bool     `json:"withdrawn,omitempty"`
	ALogP             *float64 `json:"alogp,omitempty"`
	HBondDonors       *int     `json:"hbd,omitempty"`
	HBondAcceptors    *int     `json:"hba,omitempty"`
	PolarSurfaceArea  *float64 `json:"psa,omitempty"`
	RotatableBonds    *int     `json:"rotatable_bonds,omitempty"`
	RO5Violations     *int     `json:"ro5_violations,omitempty"`
}

// TargetInteraction is one activity row against a PGx-relevant target.
type TargetInteraction struct {
	TargetName   string `json:"target_name"`
	TargetChEMBL string `json:"target_chembl_id,omitempty"`
	ActionType   string `json:"action_type,omitempty"`
}

// ChEMBLEnrichment is the full enrichment block for a drug.
type ChEMBLEnrichment struct {
	Compound   CompoundInfo        `json:"compound"`
	Targets    []TargetInteraction `json:"targets,omitempty"`
	Mechanisms []string            `json:"mechanisms,omitempty"`
}

// MoleculeScore ranks a candidate molecule for a drug name by its indication
// fit: phase_for_indication x 10 + overall max phase + 100 when approved
// - 50 when withdrawn. Empirical; reproducibility depends on ChEMBL API
// stability.
func MoleculeScore(molecule map[string]interface{}, phaseForIndication float64) float64 {
	score := phaseForIndication * 10
	if maxPhase, ok := domain.GetFloat(molecule, "max_phase"); ok {
		score += maxPhase
	}
	if approval, ok := domain.GetInt(molecule, "first_approval"); ok && approval > 0 {
		score += 100
	}
	if withdrawn := domain.GetBool(molecule, "withdrawn_flag", "withdrawn"); withdrawn {
		score -= 50
	}
	return score
}

// SelectMolecule picks the single highest-scoring molecule; indications maps
// molecule ChEMBL id to its best phase-for-indication.
func SelectMolecule(molecules []map[string]interface{}, indications map[string]float64) map[string]interface{} {
	var best map[string]interface{}
	bestScore := 0.0
	for _, m := range molecules {
		id := domain.GetString(m, "molecule_chembl_id")
		score := MoleculeScore(m, indications[id])
		if best == nil || score > bestScore {
			best = m
			bestScore = score
		}
	}
	return best
}

// EnrichDrug looks up a drug by name and returns compound info, PGx target
// interactions, and mechanism of action.
func (c *ChEMBLClient) EnrichDrug(ctx context.Context, name string) (*ChEMBLEnrichment, error) {
	molecules, err := c.searchMolecules(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(molecules) == 0 {
		return nil, domain.NewNotFoundError("chembl", "molecule "+name)
	}

	indications := make(map[string]float64)
	for _, m := range molecules {
		id := domain.GetString(m, "molecule_chembl_id")
		if id == "" {
			continue
		}
		phase, err := c.bestIndicationPhase(ctx, id)
		if err != nil {
			// Indication data is a ranking input only; missing data scores zero.
			c.logger.WithField("chembl_id", id).WithError(err).Debug("No indication data")
			continue
		}
		indications[id] = phase
	}

	selected := SelectMolecule(molecules, indications)
	chemblID := domain.GetString(selected, "molecule_chembl_id")

	enrichment := &ChEMBLEnrichment{Compound: moleculeToCompound(selected)}

	if targets, err := c.fetchTargets(ctx, chemblID); err == nil {
		enrichment.Targets = targets
	}
	if mechanisms, err := c.fetchMechanisms(ctx, chemblID); err == nil {
		enrichment.Mechanisms = mechanisms
	}
	return enrichment, nil
}

func (c *ChEMBLClient) searchMolecules(ctx context.Context, name string) ([]map[string]interface{}, error) {
	params := url.Values{
		"q":      {name},
		"format": {"json"},
		"limit":  {"10"},
	}
	var payload map[string]interface{}
	if err := c.client.GetJSON(ctx, c.baseURL+"/molecule/search", params, nil, &payload); err != nil {
		return nil, fmt.Errorf("chembl molecule search for %s: %w", name, err)
	}
	return domain.GetMapSlice(payload, "molecules"), nil
}

func (c *ChEMBLClient) bestIndicationPhase(ctx context.Context, chemblID string) (float64, error) {
	params := url.Values{
		"molecule_chembl_id": {chemblID},
		"format":             {"json"},
		"limit":              {"20"},
	}
	var payload map[string]interface{}
	if err := c.client.GetJSON(ctx, c.baseURL+"/drug_indication", params, nil, &payload); err != nil {
		return 0, err
	}
	best := 0.0
	for _, ind := range domain.GetMapSlice(payload, "drug_indications") {
		if phase, ok := domain.GetFloat(ind, "max_phase_for_ind"); ok && phase > best {
			best = phase
		}
	}
	return best, nil
}

func (c *ChEMBLClient) fetchTargets(ctx context.Context, chemblID string) ([]TargetInteraction, error) {
	params := url.Values{
		"molecule_chembl_id": {chemblID},
		"format":             {"json"},
		"limit":              {"50"},
	}
	var payload map[string]interface{}
	if err := c.client.GetJSON(ctx, c.baseURL+"/mechanism", params, nil, &payload); err != nil {
		return nil, err
	}
	var targets []TargetInteraction
	seen := make(map[string]bool)
	for _, mech := range domain.GetMapSlice(payload, "mechanisms") {
		name := domain.GetString(mech, "target_pref_name", "target_name")
		if name == "" || !IsPGxTarget(name) || seen[name] {
			continue
		}
		seen[name] = true
		targets = append(targets, TargetInteraction{
			TargetName:   name,
			TargetChEMBL: domain.GetString(mech, "target_chembl_id"),
			ActionType:   domain.GetString(mech, "action_type"),
		})
	}
	return targets, nil
}

func (c *ChEMBLClient) fetchMechanisms(ctx context.Context, chemblID string) ([]string, error) {
	params := url.Values{
		"molecule_chembl_id": {chemblID},
		"format":             {"json"},
		"limit":              {"20"},
	}
	var payload map[string]interface{}
	if err := c.client.GetJSON(ctx, c.baseURL+"/mechanism", params, nil, &payload); err != nil {
		return nil, err
	}
	var mechanisms []string
	seen := make(map[string]bool)
	for _, mech := range domain.GetMapSlice(payload, "mechanisms") {
		moa := domain.GetString(mech, "mechanism_of_action")
		if moa == "" || seen[moa] {
			continue
		}
		seen[moa] = true
		mechanisms = append(mechanisms, moa)
	}
	return mechanisms, nil
}

func moleculeToCompound(m map[string]interface{}) CompoundInfo {
	info := CompoundInfo{
		ChEMBLID:      domain.GetString(m, "molecule_chembl_id"),
		PreferredName: domain.GetString(m, "pref_name"),
		Withdrawn:     domain.GetBool(m, "withdrawn_flag", "withdrawn"),
	}
	if phase, ok := domain.GetFloat(m, "max_phase"); ok {
		info.MaxPhase = phase
	}
	if approval, ok := domain.GetInt(m, "first_approval"); ok {
		info.FirstApproval = approval
	}
	if props := domain.GetMap(m, "molecule_properties"); props != nil {
		if v, ok := propFloat(props, "alogp"); ok {
			info.ALogP = &v
		}
		if v, ok := propInt(props, "hbd"); ok {
			info.HBondDonors = &v
		}
		if v, ok := propInt(props, "hba"); ok {
			info.HBondAcceptors = &v
		}
		if v, ok := propFloat(props, "psa"); ok {
			info.PolarSurfaceArea = &v
		}
		if v, ok := propInt(props, "rtb"); ok {
			info.RotatableBonds = &v
		}
		if v, ok := propInt(props, "num_ro5_violations"); ok {
			info.RO5Violations = &v
		}
	}
	return info
}

// ChEMBL serialises molecule properties as strings.
func propFloat(props map[string]interface{}, key string) (float64, bool) {
	if v, ok := domain.GetFloat(props, key); ok {
		return v, true
	}
	if s := domain.GetString(props, key); s != "" {
		var v float64
		if _, err := fmt.Sscanf(s, "%f", &v); err == nil {
			return v, true
		}
	}
	return 0, false
}

func propInt(props map[string]interface{}, key string) (int, bool) {
	if v, ok := propFloat(props, key); ok {
		return int(v), true
	}
	return 0, false
}
