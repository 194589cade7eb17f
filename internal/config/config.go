package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// Manager loads and validates the application configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a configuration manager, loading from an optional file
// path, the working directory, and the environment.
func NewManager(configPath string) (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment, and defaults.
func (m *Manager) loadConfig(configPath string) error {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/pgx-knowledge-graph/")
	}

	viper.SetEnvPrefix("PGX_GRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment variables suffice.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Pipeline defaults
	viper.SetDefault("pipeline.max_workers", 0) // 0 derives from CPU count
	viper.SetDefault("pipeline.event_queue_size", 256)
	viper.SetDefault("pipeline.literature_search", false)
	viper.SetDefault("pipeline.openfda_enrichment", true)
	viper.SetDefault("pipeline.chembl_enrichment", true)

	// External API defaults
	viper.SetDefault("external_api.uniprot.base_url", "https://rest.uniprot.org")
	viper.SetDefault("external_api.uniprot.timeout", "30s")
	viper.SetDefault("external_api.uniprot.rate_limit", 5)
	viper.SetDefault("external_api.uniprot.retry_count", 3)

	viper.SetDefault("external_api.uniprot_variation.base_url", "https://www.ebi.ac.uk/proteins/api")
	viper.SetDefault("external_api.uniprot_variation.timeout", "30s")
	viper.SetDefault("external_api.uniprot_variation.rate_limit", 5)
	viper.SetDefault("external_api.uniprot_variation.retry_count", 3)

	viper.SetDefault("external_api.clinvar.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/")
	viper.SetDefault("external_api.clinvar.timeout", "30s")
	viper.SetDefault("external_api.clinvar.rate_limit", 3)
	viper.SetDefault("external_api.clinvar.retry_count", 3)

	viper.SetDefault("external_api.pharmgkb.base_url", "https://api.pharmgkb.org/v1")
	viper.SetDefault("external_api.pharmgkb.timeout", "30s")
	viper.SetDefault("external_api.pharmgkb.rate_limit", 2)
	viper.SetDefault("external_api.pharmgkb.retry_count", 3)

	viper.SetDefault("external_api.chembl.base_url", "https://www.ebi.ac.uk/chembl/api/data")
	viper.SetDefault("external_api.chembl.timeout", "30s")
	viper.SetDefault("external_api.chembl.rate_limit", 5)
	viper.SetDefault("external_api.chembl.retry_count", 3)

	viper.SetDefault("external_api.openfda.base_url", "https://api.fda.gov")
	viper.SetDefault("external_api.openfda.timeout", "30s")
	viper.SetDefault("external_api.openfda.rate_limit", 4)
	viper.SetDefault("external_api.openfda.retry_count", 3)

	viper.SetDefault("external_api.europepmc.base_url", "https://www.ebi.ac.uk/europepmc/webservices/rest")
	viper.SetDefault("external_api.europepmc.timeout", "30s")
	viper.SetDefault("external_api.europepmc.rate_limit", 5)
	viper.SetDefault("external_api.europepmc.retry_count", 3)

	viper.SetDefault("external_api.bioportal.base_url", "https://data.bioontology.org")
	viper.SetDefault("external_api.bioportal.timeout", "30s")
	viper.SetDefault("external_api.bioportal.rate_limit", 3)
	viper.SetDefault("external_api.bioportal.retry_count", 3)

	viper.SetDefault("external_api.clinical_tables.base_url", "https://clinicaltables.nlm.nih.gov/api/snomedct/v3")
	viper.SetDefault("external_api.clinical_tables.timeout", "30s")
	viper.SetDefault("external_api.clinical_tables.rate_limit", 5)
	viper.SetDefault("external_api.clinical_tables.retry_count", 3)

	viper.SetDefault("external_api.rxnorm.base_url", "https://rxnav.nlm.nih.gov/REST")
	viper.SetDefault("external_api.rxnorm.timeout", "30s")
	viper.SetDefault("external_api.rxnorm.rate_limit", 10)
	viper.SetDefault("external_api.rxnorm.retry_count", 3)

	// Cache defaults; an empty Redis URL selects the in-process tier.
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Store defaults
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.sqlite_path", "data/runs.db")
	viper.SetDefault("store.postgres_url", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Output defaults
	viper.SetDefault("output.data_dir", "data")
	viper.SetDefault("output.output_dir", "output")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetExternalAPIConfig returns the upstream service configuration.
func (m *Manager) GetExternalAPIConfig() *domain.ExternalAPIConfig {
	return &m.config.ExternalAPI
}

// GetServerConfig returns the HTTP server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration from its sources.
func (m *Manager) Reload() error {
	return m.loadConfig(viper.ConfigFileUsed())
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Pipeline.MaxWorkers < 0 {
		return fmt.Errorf("invalid worker count: %d", config.Pipeline.MaxWorkers)
	}

	required := map[string]string{
		"UniProt":    config.ExternalAPI.UniProt.BaseURL,
		"ClinVar":    config.ExternalAPI.ClinVar.BaseURL,
		"PharmGKB":   config.ExternalAPI.PharmGKB.BaseURL,
		"ChEMBL":     config.ExternalAPI.ChEMBL.BaseURL,
		"Europe PMC": config.ExternalAPI.EuropePMC.BaseURL,
		"RxNorm":     config.ExternalAPI.RxNorm.BaseURL,
	}
	for name, baseURL := range required {
		if baseURL == "" {
			return fmt.Errorf("%s base URL is required", name)
		}
	}

	switch config.Store.Driver {
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if config.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required")
		}
	case "":
	default:
		return fmt.Errorf("unknown store driver: %s", config.Store.Driver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction reports whether the process runs in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
