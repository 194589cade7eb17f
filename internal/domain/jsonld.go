package domain

// JSONLDContext is the canonical @context of every exported document.
var JSONLDContext = map[string]interface{}{
	"foaf":     "http://xmlns.com/foaf/0.1/",
	"schema":   "https://schema.org/",
	"pgx":      "http://www.ugent.be/pgx/",
	"sdisco":   "http://semanticscience.org/resource/",
	"snomed":   "http://snomed.info/id/",
	"drugbank": "http://bio2rdf.org/drugbank:",
	"ugent":    "http://ugent.be/",
	"dbsnp":    "http://identifiers.org/dbsnp/",
	"ncbigene": "http://identifiers.org/ncbigene/",
	"clinpgx":  "https://www.clinpgx.org/",
	"gn":       "http://generanker.org/",
	"skos":     "http://www.w3.org/2004/02/skos/core#",
	"xsd":      "http://www.w3.org/2001/XMLSchema#",

	"population_frequencies": "pgx:populationFrequencies",
	"metabolizer_phenotype":  "pgx:metabolizerPhenotype",
	"clinical_significance":  "pgx:clinicalSignificance",
	"affected_drugs":         "pgx:affectedDrugs",
	"variant_linking":        "pgx:variantLinking",
}

// DataSources lists the upstream sources feeding the documents.
const DataSources = "UniProt, ClinVar, PharmGKB, ChEMBL, OpenFDA, Europe PMC, BioPortal SNOMED CT, RxNorm"
