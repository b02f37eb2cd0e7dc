// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_HOST
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or any parent holding go.mod.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "admissions-pipeline"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Workflow.MaxConcurrent == 0 {
		cfg.Workflow.MaxConcurrent = 8
	}
	if cfg.Workflow.StageTimeout == 0 {
		cfg.Workflow.StageTimeout = 60000
	}
	if cfg.Workflow.MaxRetries == 0 {
		cfg.Workflow.MaxRetries = 3
	}
	if cfg.Workflow.RetryBackoff == 0 {
		cfg.Workflow.RetryBackoff = 500
	}
	if cfg.Stages.Classifier.ConfidenceThreshold == 0 {
		cfg.Stages.Classifier.ConfidenceThreshold = 0.5
	}
	if cfg.Stages.Extractor.GenericConfidenceCap == 0 {
		cfg.Stages.Extractor.GenericConfidenceCap = 0.3
	}
	if cfg.Stages.Decision.ReviewThreshold == 0 {
		cfg.Stages.Decision.ReviewThreshold = 0.8
	}
	if cfg.Stages.Decision.RetrievalK == 0 {
		cfg.Stages.Decision.RetrievalK = 5
	}
	if cfg.Stages.Decision.AggregationPolicy == "" {
		cfg.Stages.Decision.AggregationPolicy = "strict-and"
	}
	if cfg.RuleIndex.ChunkSize == 0 {
		cfg.RuleIndex.ChunkSize = 1500
	}
	if cfg.RuleIndex.ChunkOverlap == 0 {
		cfg.RuleIndex.ChunkOverlap = 200
	}
	if cfg.RuleIndex.EmbeddingDim == 0 {
		cfg.RuleIndex.EmbeddingDim = 384
	}
	if cfg.RuleIndex.EmbeddingCacheTTL == 0 {
		cfg.RuleIndex.EmbeddingCacheTTL = 86400
	}
	if cfg.Database.Elasticsearch.ChunkIndex == "" {
		cfg.Database.Elasticsearch.ChunkIndex = "rulebook-chunks"
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Workflow.MaxConcurrent < 1 {
		return fmt.Errorf("workflow.max_concurrent must be positive")
	}
	if cfg.Stages.Decision.ReviewThreshold < 0 || cfg.Stages.Decision.ReviewThreshold > 1 {
		return fmt.Errorf("stages.decision.review_threshold must be within [0,1]")
	}
	if cfg.Stages.Classifier.ConfidenceThreshold < 0 || cfg.Stages.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("stages.classifier.confidence_threshold must be within [0,1]")
	}
	if cfg.Stages.Extractor.GenericConfidenceCap < 0 || cfg.Stages.Extractor.GenericConfidenceCap > 1 {
		return fmt.Errorf("stages.extractor.generic_confidence_cap must be within [0,1]")
	}
	switch cfg.Stages.Decision.AggregationPolicy {
	case "strict-and", "any-pathway":
	default:
		return fmt.Errorf("stages.decision.aggregation_policy must be strict-and or any-pathway")
	}
	if cfg.RuleIndex.ChunkOverlap >= cfg.RuleIndex.ChunkSize {
		return fmt.Errorf("rule_index.chunk_overlap must be smaller than chunk_size")
	}
	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres requires host and database when enabled")
		}
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch requires at least one address when enabled")
	}
	return nil
}
