// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Segment     SegmentConfig     `mapstructure:"segment" yaml:"segment"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Index       IndexConfig       `mapstructure:"index" yaml:"index"`
	Limits      LimitsConfig      `mapstructure:"limits" yaml:"limits"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // ollama, openai
	Model     string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"` // documents per batch
}

// SegmentConfig contains segmentation thresholds.
type SegmentConfig struct {
	MaxBlockSize    int      `mapstructure:"max_block_size" yaml:"max_block_size"`       // max chars per block
	MinBlockSize    int      `mapstructure:"min_block_size" yaml:"min_block_size"`       // chars below which a block is skipped
	ToleranceFactor float64  `mapstructure:"tolerance_factor" yaml:"tolerance_factor"`   // oversize threshold multiplier
	MinRemainder    int      `mapstructure:"min_remainder" yaml:"min_remainder"`         // floor for a forced final chunk
	ModuleRoots     []string `mapstructure:"module_roots" yaml:"module_roots"`           // path prefixes stripped from module paths
	MaxEmbedChars   int      `mapstructure:"max_embed_chars" yaml:"max_embed_chars"`     // code chars included in embedding text
}

// SearchConfig contains search configuration.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"` // default result limit
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
}

// IndexConfig contains indexing configuration.
type IndexConfig struct {
	Include  []string      `mapstructure:"include" yaml:"include"`   // glob patterns to include
	Exclude  []string      `mapstructure:"exclude" yaml:"exclude"`   // glob patterns to exclude
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"` // watch-mode reindex delay
}

// LimitsConfig contains resource limits.
type LimitsConfig struct {
	MaxFileSize int64         `mapstructure:"max_file_size" yaml:"max_file_size"` // bytes
	MaxFiles    int           `mapstructure:"max_files" yaml:"max_files"`         // max files to index
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`             // indexing timeout
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		// Endpoint is left empty so each provider applies its own default.
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BatchSize: 32,
		},
		Segment: SegmentConfig{
			MaxBlockSize:    1500,
			MinBlockSize:    50,
			ToleranceFactor: 1.2,
			MinRemainder:    1,
			ModuleRoots:     []string{"src", "lib", "app"},
			MaxEmbedChars:   2000,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlitevec",
		},
		Index: IndexConfig{
			Include: []string{
				"**/*.go", "**/*.py", "**/*.js", "**/*.jsx", "**/*.mjs", "**/*.cjs",
				"**/*.ts", "**/*.mts", "**/*.cts", "**/*.tsx",
				"**/*.rs", "**/*.java", "**/*.rb", "**/*.php", "**/*.cs",
				"**/*.c", "**/*.h", "**/*.cc", "**/*.cpp", "**/*.cxx", "**/*.hpp", "**/*.hh",
			},
			Exclude: []string{
				"**/vendor/**", "**/node_modules/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/target/**", "**/bin/**", "**/obj/**",
				"**/*.min.js", "**/*.generated.*",
			},
			Debounce: 500 * time.Millisecond,
		},
		Limits: LimitsConfig{
			MaxFileSize: 1 << 20,
			MaxFiles:    50000,
			Timeout:     30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .codeseg directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".codeseg")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// IndexDBPath returns the path to index.db.
func IndexDBPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "index.db")
}

// Load loads configuration from file, falling back to defaults.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
		warnings = append(warnings, "Using default embedding provider: ollama")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}

	if cfg.Segment.MaxBlockSize == 0 {
		cfg.Segment.MaxBlockSize = 1500
	}
	if cfg.Segment.MinBlockSize == 0 {
		cfg.Segment.MinBlockSize = 50
	}
	if cfg.Segment.ToleranceFactor == 0 {
		cfg.Segment.ToleranceFactor = 1.2
	}
	if cfg.Segment.MinRemainder == 0 {
		cfg.Segment.MinRemainder = 1
	}
	if cfg.Segment.MaxEmbedChars == 0 {
		cfg.Segment.MaxEmbedChars = 2000
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Index.Debounce == 0 {
		cfg.Index.Debounce = 500 * time.Millisecond
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	configDir := ConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	v.Set("embedding", cfg.Embedding)
	v.Set("segment", cfg.Segment)
	v.Set("search", cfg.Search)
	v.Set("vectorstore", cfg.VectorStore)
	v.Set("index", cfg.Index)
	v.Set("limits", cfg.Limits)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{
		"ollama": true, "openai": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	if cfg.VectorStore.Provider != "" && cfg.VectorStore.Provider != "sqlitevec" {
		errs = append(errs, fmt.Errorf("invalid vector store provider: %s", cfg.VectorStore.Provider))
	}

	if cfg.Segment.MaxBlockSize < 0 || cfg.Segment.MinBlockSize < 0 {
		errs = append(errs, fmt.Errorf("segment sizes must not be negative"))
	}
	if cfg.Segment.MaxBlockSize > 0 && cfg.Segment.MinBlockSize > cfg.Segment.MaxBlockSize {
		errs = append(errs, fmt.Errorf("min_block_size %d exceeds max_block_size %d",
			cfg.Segment.MinBlockSize, cfg.Segment.MaxBlockSize))
	}
	if cfg.Segment.ToleranceFactor < 1.0 {
		errs = append(errs, fmt.Errorf("tolerance_factor must be at least 1.0, got %g", cfg.Segment.ToleranceFactor))
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true, "": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid log format: %s", cfg.Logging.Format))
	}

	return errs
}

// Hash returns a hash of configuration that affects indexing.
// Used for detecting when reindexing is needed.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%d:%d:%g",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Segment.MaxBlockSize,
		c.Segment.MinBlockSize,
		c.Segment.ToleranceFactor,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Copy creates a deep copy of the config.
// Used for runtime modifications without affecting the original.
func (c *Config) Copy() *Config {
	cp := *c

	cp.Segment.ModuleRoots = append([]string(nil), c.Segment.ModuleRoots...)
	cp.Index.Include = append([]string(nil), c.Index.Include...)
	cp.Index.Exclude = append([]string(nil), c.Index.Exclude...)

	return &cp
}
