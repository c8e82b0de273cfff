package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for an ingest run.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database password) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Source and output locations
	InputDir  string `yaml:"input_dir" env:"INGEST_INPUT_DIR" env-default:"./data"`
	OutputDir string `yaml:"output_dir" env:"INGEST_OUTPUT_DIR" env-default:"./out"`

	// ConventionsPath points at the naming-convention YAML. Empty uses the built-in set.
	ConventionsPath string `yaml:"conventions_path" env:"INGEST_CONVENTIONS_PATH" env-default:""`

	// MetricsPath, if set, receives a Prometheus text-format dump of run metrics.
	MetricsPath string `yaml:"metrics_path" env:"INGEST_METRICS_PATH" env-default:""`

	Profiling     ProfilingConfig    `yaml:"profiling"`
	Cache         CacheConfig        `yaml:"cache"`
	Rewrite       RewriteConfig      `yaml:"rewrite"`
	Similarity    SimilarityConfig   `yaml:"similarity"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	SyntheticKeys SyntheticKeyConfig `yaml:"synthetic_keys"`

	// Database is only used when Rewrite.WatermarkStore is "postgres".
	Database DatabaseConfig `yaml:"database"`
}

// ProfilingConfig controls per-file analysis.
type ProfilingConfig struct {
	// SampleRows is the leading row count used for type inference and classification.
	SampleRows int `yaml:"sample_rows" env:"INGEST_SAMPLE_ROWS" env-default:"1000"`
	// SampleValues is the number of distinct values kept on each column profile.
	SampleValues int `yaml:"sample_values" env:"INGEST_SAMPLE_VALUES" env-default:"5"`
	// Workers bounds parallel file analysis.
	Workers int `yaml:"workers" env:"INGEST_WORKERS" env-default:"8"`
}

// CacheConfig controls the on-disk profile cache. Deleting the directory is always safe.
type CacheConfig struct {
	Disabled bool   `yaml:"disabled" env:"INGEST_CACHE_DISABLED" env-default:"false"`
	Dir      string `yaml:"dir" env:"INGEST_CACHE_DIR" env-default:".ingest-cache"`
	TTLHours int    `yaml:"ttl_hours" env:"INGEST_CACHE_TTL_HOURS" env-default:"168"`
}

// RewriteConfig controls chunked foreign key rewriting of fact tables.
type RewriteConfig struct {
	// Disabled skips row rewriting; conflicts are still resolved and reported.
	Disabled  bool `yaml:"disabled" env:"INGEST_REWRITE_DISABLED" env-default:"false"`
	ChunkSize int  `yaml:"chunk_size" env:"INGEST_REWRITE_CHUNK_SIZE" env-default:"50000"`
	// WatermarkStore is "file" (JSON next to the output) or "postgres".
	WatermarkStore string `yaml:"watermark_store" env:"INGEST_WATERMARK_STORE" env-default:"file"`
}

// SimilarityConfig holds the description similarity thresholds used by conflict detection.
type SimilarityConfig struct {
	CharRatio   float64 `yaml:"char_ratio" env:"INGEST_SIMILARITY_CHAR_RATIO" env-default:"0.8"`
	WordOverlap float64 `yaml:"word_overlap" env:"INGEST_SIMILARITY_WORD_OVERLAP" env-default:"0.5"`
}

// ScoringConfig holds relationship archetype scoring weights and confidence thresholds.
type ScoringConfig struct {
	HighScore         float64 `yaml:"high_score" env:"INGEST_SCORING_HIGH_SCORE" env-default:"5"`
	MediumScore       float64 `yaml:"medium_score" env:"INGEST_SCORING_MEDIUM_SCORE" env-default:"3"`
	HighRatio         float64 `yaml:"high_ratio" env:"INGEST_SCORING_HIGH_RATIO" env-default:"2.0"`
	MediumRatio       float64 `yaml:"medium_ratio" env:"INGEST_SCORING_MEDIUM_RATIO" env-default:"1.5"`
	TableWeight       float64 `yaml:"table_weight" env:"INGEST_SCORING_TABLE_WEIGHT" env-default:"2"`
	ItemWeight        float64 `yaml:"item_weight" env:"INGEST_SCORING_ITEM_WEIGHT" env-default:"3"`
	WeakWeight        float64 `yaml:"weak_weight" env:"INGEST_SCORING_WEAK_WEIGHT" env-default:"0.5"`
	BoosterMultiplier float64 `yaml:"booster_multiplier" env:"INGEST_SCORING_BOOSTER" env-default:"1.5"`
	GenericDamping    float64 `yaml:"generic_damping" env:"INGEST_SCORING_GENERIC_DAMPING" env-default:"0.5"`
	GenericBoost      float64 `yaml:"generic_boost" env:"INGEST_SCORING_GENERIC_BOOST" env-default:"3"`
	Workers           int     `yaml:"workers" env:"INGEST_SCORING_WORKERS" env-default:"4"`
}

// SyntheticKeyConfig reserves the surrogate key range.
// Seed sits far above plausible natural codes; Ceiling is the largest key the
// generated schema can store.
type SyntheticKeyConfig struct {
	Seed    int64 `yaml:"seed" env:"INGEST_SYNTHETIC_KEY_SEED" env-default:"1000000000"`
	Ceiling int64 `yaml:"ceiling" env:"INGEST_SYNTHETIC_KEY_CEILING" env-default:"2147483647"`
}

// DatabaseConfig holds PostgreSQL configuration for the watermark store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ingest"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ingest"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"4"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Load reads configuration from the YAML file at path with environment variable overrides.
// A missing file is not an error: the environment and defaults are used alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		} else if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Profiling.SampleRows < 1 {
		return fmt.Errorf("profiling.sample_rows must be positive, got %d", c.Profiling.SampleRows)
	}
	if c.Profiling.Workers < 1 {
		c.Profiling.Workers = 1
	}
	if c.Scoring.Workers < 1 {
		c.Scoring.Workers = 1
	}
	if c.Rewrite.ChunkSize < 1 {
		return fmt.Errorf("rewrite.chunk_size must be positive, got %d", c.Rewrite.ChunkSize)
	}
	switch strings.ToLower(c.Rewrite.WatermarkStore) {
	case "file", "postgres":
		c.Rewrite.WatermarkStore = strings.ToLower(c.Rewrite.WatermarkStore)
	default:
		return fmt.Errorf("rewrite.watermark_store must be file or postgres, got %q", c.Rewrite.WatermarkStore)
	}
	if c.Similarity.CharRatio <= 0 || c.Similarity.CharRatio > 1 {
		return fmt.Errorf("similarity.char_ratio must be in (0, 1], got %v", c.Similarity.CharRatio)
	}
	if c.Similarity.WordOverlap <= 0 || c.Similarity.WordOverlap > 1 {
		return fmt.Errorf("similarity.word_overlap must be in (0, 1], got %v", c.Similarity.WordOverlap)
	}
	if c.SyntheticKeys.Seed <= 0 || c.SyntheticKeys.Seed >= c.SyntheticKeys.Ceiling {
		return fmt.Errorf("synthetic_keys.seed must be positive and below ceiling %d, got %d",
			c.SyntheticKeys.Ceiling, c.SyntheticKeys.Seed)
	}
	return nil
}

// URL returns a PostgreSQL connection URL.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// DefaultScoringConfig returns the scoring defaults without reading the environment.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		HighScore:         5,
		MediumScore:       3,
		HighRatio:         2.0,
		MediumRatio:       1.5,
		TableWeight:       2,
		ItemWeight:        3,
		WeakWeight:        0.5,
		BoosterMultiplier: 1.5,
		GenericDamping:    0.5,
		GenericBoost:      3,
		Workers:           4,
	}
}
