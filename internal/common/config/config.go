// internal/common/config/config.go
package config

import (
	"fmt"
	"time"

	"ace-pipeline/internal/models"
)

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Pipeline    PipelineConfig          `mapstructure:"pipeline"`
	Rubrics     map[string]RubricConfig `mapstructure:"rubrics"`
	Aggregation AggregationConfig       `mapstructure:"aggregation"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Evaluators  EvaluatorsConfig        `mapstructure:"evaluators"`
	Alerts      AlertsConfig            `mapstructure:"alerts"`
	Ingress     IngressConfig           `mapstructure:"ingress"`
	Logging     LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// PipelineConfig drives the coordinator and its worker pools.
type PipelineConfig struct {
	// TimeoutsMS maps task kind to the maximum evaluation duration.
	// Audio gets a much longer budget than mcq/text.
	TimeoutsMS map[string]int `mapstructure:"timeouts_ms"`

	MaxAttempts   int `mapstructure:"max_attempts"`
	BackoffBaseMS int `mapstructure:"backoff_base_ms"`
	BackoffCapMS  int `mapstructure:"backoff_cap_ms"`

	// Worker counts per lane. Audio tasks run on their own lane so long
	// transcriptions cannot starve mcq/text throughput.
	InteractiveWorkers int `mapstructure:"interactive_workers"`
	AudioWorkers       int `mapstructure:"audio_workers"`
}

// Timeout returns the evaluation budget for a task kind.
func (p PipelineConfig) Timeout(kind models.TaskKind) time.Duration {
	if ms, ok := p.TimeoutsMS[string(kind)]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 30 * time.Second
}

// RubricConfig declares applicable dimensions and weights for one rubric_ref.
type RubricConfig struct {
	Weights map[string]float64 `mapstructure:"weights"`
}

// AggregationConfig holds report thresholds and the cross-dimension weights
// used for the overall score.
type AggregationConfig struct {
	PassingScore        float64            `mapstructure:"passing_score"`
	ExcellenceThreshold float64            `mapstructure:"excellence_threshold"`
	DimensionWeights    map[string]float64 `mapstructure:"dimension_weights"`
	ReportIndex         string             `mapstructure:"report_index"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
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
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EvaluatorsConfig holds the upstream model endpoints consumed by the text
// and audio evaluators. Model internals are out of scope; only the HTTP
// contract is configured here.
type EvaluatorsConfig struct {
	Scoring struct {
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		TimeoutMS int    `mapstructure:"timeout_ms"`
	} `mapstructure:"scoring"`

	Transcription struct {
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		TimeoutMS int    `mapstructure:"timeout_ms"`
	} `mapstructure:"transcription"`
}

// AlertsConfig controls dead-letter operator notifications.
type AlertsConfig struct {
	AWSRegion string `mapstructure:"aws_region"`

	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`

	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
}

// IngressConfig controls the optional Zeebe job ingress. Tasks may also be
// submitted directly through the queue; the broker is one delivery path, not
// a requirement.
type IngressConfig struct {
	Zeebe struct {
		Enabled       bool   `mapstructure:"enabled"`
		BrokerAddress string `mapstructure:"broker_address"`
		TaskType      string `mapstructure:"task_type"`
		MaxJobsActive int    `mapstructure:"max_jobs_active"`
	} `mapstructure:"zeebe"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RubricTable resolves rubric_ref strings to rubric declarations. It
// implements the RubricSource interface the evaluators depend on.
type RubricTable struct {
	rubrics map[string]models.Rubric
}

// NewRubricTable builds the lookup from configuration.
func NewRubricTable(cfg map[string]RubricConfig) *RubricTable {
	rubrics := make(map[string]models.Rubric, len(cfg))
	for ref, rc := range cfg {
		weights := make(map[models.Dimension]float64, len(rc.Weights))
		for dim, w := range rc.Weights {
			weights[models.Dimension(dim)] = w
		}
		rubrics[ref] = models.Rubric{Weights: weights}
	}
	return &RubricTable{rubrics: rubrics}
}

// Rubric returns the declaration for a rubric_ref.
func (t *RubricTable) Rubric(ref string) (models.Rubric, bool) {
	r, ok := t.rubrics[ref]
	return r, ok
}
