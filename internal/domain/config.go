package domain

import "time"

// Config is the complete application configuration.
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	ExternalAPI ExternalAPIConfig `mapstructure:"external_api"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Output      OutputConfig      `mapstructure:"output"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PipelineConfig configures the orchestrator and linker.
type PipelineConfig struct {
	MaxWorkers        int      `mapstructure:"max_workers"`
	EventQueueSize    int      `mapstructure:"event_queue_size"`
	CriticalKeywords  []string `mapstructure:"critical_keywords"`
	WarningKeywords   []string `mapstructure:"warning_keywords"`
	LiteratureSearch  bool     `mapstructure:"literature_search"`
	OpenFDAEnrichment bool     `mapstructure:"openfda_enrichment"`
	ChEMBLEnrichment  bool     `mapstructure:"chembl_enrichment"`
}

// APIConfig is the shared shape for one upstream service.
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"` // requests per second
	RetryCount int           `mapstructure:"retry_count"`
}

// ExternalAPIConfig groups all upstream service configurations.
type ExternalAPIConfig struct {
	UniProt          APIConfig `mapstructure:"uniprot"`
	UniProtVariation APIConfig `mapstructure:"uniprot_variation"`
	ClinVar          APIConfig `mapstructure:"clinvar"`
	PharmGKB         APIConfig `mapstructure:"pharmgkb"`
	ChEMBL           APIConfig `mapstructure:"chembl"`
	OpenFDA          APIConfig `mapstructure:"openfda"`
	EuropePMC        APIConfig `mapstructure:"europepmc"`
	BioPortal        APIConfig `mapstructure:"bioportal"`
	RxNorm           APIConfig `mapstructure:"rxnorm"`
	ClinicalTables   APIConfig `mapstructure:"clinical_tables"`
}

// CacheConfig configures the tier-2 evidence cache. When RedisURL is empty
// the in-process cache is used alone.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// StoreConfig configures the run-history store.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
	Output string `mapstructure:"output"`
}

// OutputConfig configures persisted state layout roots.
type OutputConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	OutputDir string `mapstructure:"output_dir"`
}
