// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Stages    StagesConfig    `mapstructure:"stages"`
	RuleIndex RuleIndexConfig `mapstructure:"rule_index"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the API endpoint and the operational HTTP endpoint
// (metrics, pprof, health).
type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	ChunkIndex string   `mapstructure:"chunk_index"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkflowConfig bounds the orchestrator.
type WorkflowConfig struct {
	// MaxConcurrent limits how many applications advance in parallel. Stage
	// execution within one application is always sequential.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// StageTimeout is the per-stage execution deadline in milliseconds.
	StageTimeout int `mapstructure:"stage_timeout"`
	// MaxRetries bounds idempotent retries of a failing backing call within a
	// stage. There is no cross-stage retry.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoff is the initial backoff in milliseconds, doubled per attempt.
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// StagesConfig holds per-capability tuning.
type StagesConfig struct {
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Decision   DecisionConfig   `mapstructure:"decision"`
}

type ClassifierConfig struct {
	// ConfidenceThreshold below which a label defaults to "other".
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

type ExtractorConfig struct {
	// GenericConfidenceCap bounds confidence on the best-effort "other" path.
	GenericConfidenceCap float64 `mapstructure:"generic_confidence_cap"`
}

type DecisionConfig struct {
	// ReviewThreshold is T: aggregate confidence below it forces REVIEW_REQUIRED.
	ReviewThreshold float64 `mapstructure:"review_threshold"`
	RetrievalK      int     `mapstructure:"retrieval_k"`
	// AggregationPolicy is "strict-and" or "any-pathway".
	AggregationPolicy string `mapstructure:"aggregation_policy"`
}

type RuleIndexConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	EmbeddingDim int `mapstructure:"embedding_dim"`
	// RulebookPath points at a JSON rulebook to index at startup when no
	// persisted chunk collection exists. Optional.
	RulebookPath string `mapstructure:"rulebook_path"`
	// EmbeddingCacheTTL is the redis embedding cache TTL in seconds.
	EmbeddingCacheTTL int `mapstructure:"embedding_cache_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
