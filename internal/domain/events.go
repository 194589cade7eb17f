package domain

import "time"

// EventLevel is the advisory level of a pipeline event.
type EventLevel string

const (
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// Canonical stage/substage strings. UI consumers dispatch on these.
const (
	StageLabPrep    = "lab_prep"
	StageNGS        = "ngs"
	StageAnnotation = "annotation"
	StageEnrichment = "enrichment"
	StageReport     = "report"
	StageError      = "error"

	SubstageStart            = "start"
	SubstageInit             = "init"
	SubstageVariantDiscovery = "variant_discovery"
	SubstageClinicalValidation = "clinical_validation"
	SubstageProcessing       = "processing"
	SubstageSingleGene       = "single_gene"
	SubstageMultiGene        = "multi_gene"
	SubstageDrugDiseaseContext = "drug_disease_context"
	SubstageRDFAssembly      = "rdf_assembly"
	SubstageProfileGeneration = "profile_generation"
	SubstageVariantLinking   = "variant_linking"
	SubstageExport           = "export"
	SubstageComplete         = "complete"
	SubstagePipeline         = "pipeline"
)

// Event is one advisory record on the pipeline event stream. Progress is in
// [0,1] when set. Payload is free-form and optional.
type Event struct {
	Stage     string                 `json:"stage"`
	Substage  string                 `json:"substage"`
	Level     EventLevel             `json:"level"`
	Message   string                 `json:"message"`
	Progress  *float64               `json:"progress,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
