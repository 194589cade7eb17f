package assembler

import (
	"time"

	"github.com/google/uuid"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// PersonURIPrefix is the base of every patient document @id.
const PersonURIPrefix = "http://ugent.be/person/"

// personTypes is the fixed @type of a patient document.
var personTypes = []interface{}{"foaf:Person", "schema:Person", "schema:Patient"}

// clinicalSubtrees are carried verbatim into the canonical path.
var clinicalSubtrees = []string{
	"demographics", "current_conditions", "current_medications",
	"organ_function", "lifestyle_factors",
}

// PatientID picks the document identity: the MRN when present, else the
// carried patient id, else a generated one.
func PatientID(profile map[string]interface{}) string {
	if mrn := domain.GetString(profile, "mrn", "MRN"); mrn != "" {
		return mrn
	}
	if id := domain.GetString(profile, "patient_id", "patientId", "id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// Normalise converts a dashboard-entered or legacy profile into the
// canonical JSON-LD envelope. Applying it to an already-normalised document
// changes nothing but dateCreated.
func Normalise(profile map[string]interface{}) map[string]interface{} {
	patientID := PatientID(profile)

	doc := map[string]interface{}{
		"@context":    domain.JSONLDContext,
		"@id":         PersonURIPrefix + patientID,
		"@type":       personTypes,
		"identifier":  patientID,
		"patient_id":  patientID,
		"dateCreated": time.Now().UTC().Format(time.RFC3339),
	}
	if name := domain.GetString(profile, "name", "foaf:name"); name != "" {
		doc["name"] = name
		doc["foaf:name"] = name
	}
	if description := domain.GetString(profile, "description"); description != "" {
		doc["description"] = description
	}

	legacy := domain.GetString(profile, "patient_id", "patientId", "id")
	if legacy != "" && legacy != patientID {
		doc["other_identifiers"] = map[string]interface{}{"legacy_patient_id": legacy}
	} else if other := domain.GetMap(profile, "other_identifiers"); other != nil {
		doc["other_identifiers"] = other
	}

	clinical := domain.GetMap(profile, "clinical_information")
	if clinical == nil {
		clinical = make(map[string]interface{})
		for _, key := range clinicalSubtrees {
			if value, ok := profile[key]; ok {
				clinical[key] = value
			}
		}
	}
	doc["clinical_information"] = clinical

	normaliseDemographics(doc, clinical)

	// Already-enriched payloads survive re-normalisation.
	for _, key := range []string{"pharmacogenomics_profile", "variants", "publications", "variant_linking", "ethnicity_medication_adjustments", "dataSource"} {
		if value, ok := profile[key]; ok {
			doc[key] = value
		}
	}
	return doc
}

// normaliseDemographics translates shallow demographics into foaf/schema
// properties, wrapping weight and height as QuantitativeValue.
func normaliseDemographics(doc, clinical map[string]interface{}) {
	demographics := domain.GetMap(clinical, "demographics")
	if demographics == nil {
		return
	}
	if first := domain.GetString(demographics, "first_name", "firstName"); first != "" {
		doc["foaf:firstName"] = first
	}
	if last := domain.GetString(demographics, "last_name", "lastName"); last != "" {
		doc["foaf:lastName"] = last
	}
	if birth := domain.GetString(demographics, "birth_date", "birthDate"); birth != "" {
		doc["schema:birthDate"] = birth
	}
	if gender := domain.GetString(demographics, "gender", "sex"); gender != "" {
		doc["schema:gender"] = gender
	}
	if weight, ok := domain.GetFloat(demographics, "weight_kg", "weight"); ok {
		doc["schema:weight"] = quantitativeValue(weight, "kg")
	}
	if height, ok := domain.GetFloat(demographics, "height_cm", "height"); ok {
		doc["schema:height"] = quantitativeValue(height, "cm")
	}
}

func quantitativeValue(value float64, unit string) map[string]interface{} {
	return map[string]interface{}{
		"@type":           "schema:QuantitativeValue",
		"schema:value":    value,
		"schema:unitText": unit,
	}
}

// ProfileFromPatient converts the typed patient model into the map shape
// Normalise accepts.
func ProfileFromPatient(patient *domain.Patient) map[string]interface{} {
	profile := map[string]interface{}{
		"patient_id": patient.PatientID,
	}
	if patient.MRN != "" {
		profile["mrn"] = patient.MRN
	}
	if patient.Name != "" {
		profile["name"] = patient.Name
	}
	clinical := map[string]interface{}{
		"demographics":        demographicsMap(patient.Demographics),
		"current_conditions":  patient.Conditions,
		"current_medications": patient.Medications,
	}
	if patient.OrganFunction != nil {
		clinical["organ_function"] = patient.OrganFunction
	}
	if len(patient.LifestyleFactors) > 0 {
		clinical["lifestyle_factors"] = patient.LifestyleFactors
	}
	profile["clinical_information"] = clinical
	return profile
}

func demographicsMap(d domain.Demographics) map[string]interface{} {
	out := make(map[string]interface{})
	if d.FirstName != "" {
		out["first_name"] = d.FirstName
	}
	if d.LastName != "" {
		out["last_name"] = d.LastName
	}
	if d.BirthDate != "" {
		out["birth_date"] = d.BirthDate
	}
	if d.Gender != "" {
		out["gender"] = d.Gender
	}
	if d.WeightKg > 0 {
		out["weight_kg"] = d.WeightKg
	}
	if d.HeightCm > 0 {
		out["height_cm"] = d.HeightCm
	}
	if len(d.Ethnicities) > 0 {
		out["ethnicity"] = d.Ethnicities
	}
	return out
}
