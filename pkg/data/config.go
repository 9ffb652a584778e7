// Package data provides configuration management, the rated library, storage
// backends and the session runner for the prefrank application. It handles CSV
// import settings, engine parameters, persistence and export options with
// validation and environment variable support.
package data

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pashagolub/prefrank/pkg/rating"
)

// Error types for configuration validation
var (
	ErrInvalidCSVConfig     = errors.New("invalid CSV configuration")
	ErrInvalidEngineConfig  = errors.New("invalid engine configuration")
	ErrInvalidStorageConfig = errors.New("invalid storage configuration")
	ErrInvalidExportConfig  = errors.New("invalid export configuration")
	ErrInvalidLogConfig     = errors.New("invalid logging configuration")
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrConfigParseError     = errors.New("failed to parse configuration file")
)

// Storage backends
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config is the top-level application configuration
type Config struct {
	CSV     CSVConfig     `yaml:"csv" json:"csv"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Journal JournalConfig `yaml:"journal" json:"journal"`
	Export  ExportConfig  `yaml:"export" json:"export"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// CSVConfig defines how to parse consensus score CSV files
type CSVConfig struct {
	IDColumn        string `yaml:"id_column" json:"id_column"`                 // Column name for item ID (required)
	TitleColumn     string `yaml:"title_column" json:"title_column"`           // Column name for title (required)
	ScoreColumn     string `yaml:"score_column" json:"score_column"`           // Column name for consensus score (optional)
	MediaTypeColumn string `yaml:"media_type_column" json:"media_type_column"` // Column name for movie/tv (optional)
	HasHeader       bool   `yaml:"has_header" json:"has_header"`               // Whether CSV has header row
	Delimiter       string `yaml:"delimiter" json:"delimiter"`                 // CSV field separator (default comma)
}

// EngineConfig mirrors rating.Config with file and environment friendly names
type EngineConfig struct {
	Model              string  `yaml:"model" json:"model"`
	Alpha              float64 `yaml:"alpha" json:"alpha"`
	StepSize           float64 `yaml:"step_size" json:"step_size"`
	ConfidenceLevel    float64 `yaml:"confidence_level" json:"confidence_level"`
	StopThreshold      float64 `yaml:"stop_threshold" json:"stop_threshold"`
	MinComparisons     float64 `yaml:"min_comparisons" json:"min_comparisons"`
	MaxComparisons     float64 `yaml:"max_comparisons" json:"max_comparisons"`
	EloK               int     `yaml:"elo_k" json:"elo_k"`
	EloKDecayThreshold int     `yaml:"elo_k_decay_threshold" json:"elo_k_decay_threshold"`
	EloScale           float64 `yaml:"elo_scale" json:"elo_scale"`
	EloMinRating       float64 `yaml:"elo_min_rating" json:"elo_min_rating"`
	EloMaxRating       float64 `yaml:"elo_max_rating" json:"elo_max_rating"`
}

// StorageConfig selects and tunes the library backend
type StorageConfig struct {
	Backend      string `yaml:"backend" json:"backend"`             // file or badger
	Path         string `yaml:"path" json:"path"`                   // JSON file or Badger directory
	AtomicWrites bool   `yaml:"atomic_writes" json:"atomic_writes"` // Write to temp file then rename (file backend)
	Backups      int    `yaml:"backups" json:"backups"`             // Rotated copies kept by the file backend
}

// JournalConfig controls the outcome journal
type JournalConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// ExportConfig holds output format settings
type ExportConfig struct {
	Format        string `yaml:"format" json:"format"`                 // Output format (csv/json/yaml)
	SortOrder     string `yaml:"sort_order" json:"sort_order"`         // Sort direction (asc/desc)
	RoundDecimals int    `yaml:"round_decimals" json:"round_decimals"` // Decimal places for output
}

// LoggingConfig holds log level and output format
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" json:"format"` // console or json
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"` // Empty disables the export
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		CSV:     DefaultCSVConfig(),
		Engine:  DefaultEngineConfig(),
		Storage: DefaultStorageConfig(),
		Journal: DefaultJournalConfig(),
		Export:  DefaultExportConfig(),
		Logging: DefaultLoggingConfig(),
		Metrics: MetricsConfig{},
	}
}

// DefaultCSVConfig returns CSV parsing defaults
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		IDColumn:        "id",
		TitleColumn:     "title",
		ScoreColumn:     "score",
		MediaTypeColumn: "media_type",
		HasHeader:       true,
		Delimiter:       ",",
	}
}

// DefaultEngineConfig returns the rating engine defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFrom(rating.DefaultConfig())
}

// EngineConfigFrom converts engine parameters into their configuration form
func EngineConfigFrom(c rating.Config) EngineConfig {
	return EngineConfig{
		Model:              string(c.Model),
		Alpha:              c.Alpha,
		StepSize:           c.StepSize,
		ConfidenceLevel:    c.ConfidenceLevel,
		StopThreshold:      c.StopThreshold,
		MinComparisons:     c.MinComparisons,
		MaxComparisons:     c.MaxComparisons,
		EloK:               c.EloKFactor,
		EloKDecayThreshold: c.EloDecayThreshold,
		EloScale:           c.EloScale,
		EloMinRating:       c.EloMinRating,
		EloMaxRating:       c.EloMaxRating,
	}
}

// DefaultStorageConfig returns storage defaults
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:      BackendFile,
		Path:         "library.json",
		AtomicWrites: true,
		Backups:      3,
	}
}

// DefaultJournalConfig returns journal defaults
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:   true,
		Directory: "journal",
	}
}

// DefaultExportConfig returns export format defaults
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Format:        "csv",
		SortOrder:     "desc",
		RoundDecimals: 2,
	}
}

// DefaultLoggingConfig returns logging defaults
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
	}
}

// Rating converts the engine section into rating engine parameters
func (e EngineConfig) Rating() rating.Config {
	return rating.Config{
		Model:             rating.ModelKind(e.Model),
		Alpha:             e.Alpha,
		StepSize:          e.StepSize,
		ConfidenceLevel:   e.ConfidenceLevel,
		StopThreshold:     e.StopThreshold,
		MinComparisons:    e.MinComparisons,
		MaxComparisons:    e.MaxComparisons,
		EloKFactor:        e.EloK,
		EloDecayThreshold: e.EloKDecayThreshold,
		EloScale:          e.EloScale,
		EloMinRating:      e.EloMinRating,
		EloMaxRating:      e.EloMaxRating,
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.CSV.Validate(); err != nil {
		return fmt.Errorf("CSV config validation failed: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config validation failed: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config validation failed: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	return nil
}

// Validate checks that CSV configuration is valid
func (c *CSVConfig) Validate() error {
	if strings.TrimSpace(c.IDColumn) == "" {
		return fmt.Errorf("%w: id_column is required", ErrInvalidCSVConfig)
	}

	if strings.TrimSpace(c.TitleColumn) == "" {
		return fmt.Errorf("%w: title_column is required", ErrInvalidCSVConfig)
	}

	// Check for duplicate column names (only for non-empty columns)
	columns := make(map[string]bool)
	columnNames := []struct {
		name  string
		field string
	}{
		{c.IDColumn, "id_column"},
		{c.TitleColumn, "title_column"},
		{c.ScoreColumn, "score_column"},
		{c.MediaTypeColumn, "media_type_column"},
	}

	for _, col := range columnNames {
		if col.name != "" {
			if columns[col.name] {
				return fmt.Errorf("%w: duplicate column name '%s' in field %s", ErrInvalidCSVConfig, col.name, col.field)
			}
			columns[col.name] = true
		}
	}

	if c.Delimiter == "" {
		return fmt.Errorf("%w: delimiter cannot be empty", ErrInvalidCSVConfig)
	}

	validDelimiters := map[string]bool{
		",": true, ";": true, "\t": true, "|": true,
	}

	if !validDelimiters[c.Delimiter] {
		return fmt.Errorf("%w: delimiter '%s' is not a common CSV separator", ErrInvalidCSVConfig, c.Delimiter)
	}

	return nil
}

// Validate checks the engine section using the engine's own rules
func (e *EngineConfig) Validate() error {
	if err := e.Rating().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEngineConfig, err)
	}
	return nil
}

// Validate checks that storage configuration is valid
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case BackendFile, BackendBadger:
	default:
		return fmt.Errorf("%w: backend '%s' must be one of: file, badger", ErrInvalidStorageConfig, s.Backend)
	}

	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidStorageConfig)
	}

	if s.Backups < 0 || s.Backups > 100 {
		return fmt.Errorf("%w: backups %d must be between 0 and 100", ErrInvalidStorageConfig, s.Backups)
	}

	return nil
}

// Validate checks that export configuration is valid
func (e *ExportConfig) Validate() error {
	validFormats := map[string]bool{
		"csv":  true,
		"json": true,
		"yaml": true,
	}

	if !validFormats[e.Format] {
		return fmt.Errorf("%w: format '%s' must be one of: csv, json, yaml", ErrInvalidExportConfig, e.Format)
	}

	validOrder := map[string]bool{
		"asc":  true,
		"desc": true,
	}

	if !validOrder[e.SortOrder] {
		return fmt.Errorf("%w: sort_order '%s' must be 'asc' or 'desc'", ErrInvalidExportConfig, e.SortOrder)
	}

	if e.RoundDecimals < 0 || e.RoundDecimals > 10 {
		return fmt.Errorf("%w: round_decimals %d must be between 0 and 10", ErrInvalidExportConfig, e.RoundDecimals)
	}

	return nil
}

// Validate checks that logging configuration is valid
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: level '%s' must be one of: trace, debug, info, warn, error", ErrInvalidLogConfig, l.Level)
	}

	switch l.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: format '%s' must be 'console' or 'json'", ErrInvalidLogConfig, l.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filename, err)
	}

	return &config, nil
}

// LoadWithEnvironment loads configuration from file and applies environment variable overrides
func LoadWithEnvironment(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		fileConfig, err := LoadFromFile(filename)
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			return nil, err
		}
		if err == nil {
			config = *fileConfig
		}
	}

	applyEnvironmentOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid final configuration: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}

func envString(key string, target *string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func envFloat(key string, target *float64) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			*target = parsed
		}
	}
}

func envInt(key string, target *int) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*target = parsed
		}
	}
}

func envBool(key string, target *bool) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*target = parsed
		}
	}
}

// applyEnvironmentOverrides applies PREFRANK_* environment variable overrides.
// Unparseable values are ignored.
func applyEnvironmentOverrides(config *Config) {
	envString("PREFRANK_CSV_ID_COLUMN", &config.CSV.IDColumn)
	envString("PREFRANK_CSV_TITLE_COLUMN", &config.CSV.TitleColumn)
	envString("PREFRANK_CSV_SCORE_COLUMN", &config.CSV.ScoreColumn)
	envString("PREFRANK_CSV_MEDIA_TYPE_COLUMN", &config.CSV.MediaTypeColumn)
	envString("PREFRANK_CSV_DELIMITER", &config.CSV.Delimiter)
	envBool("PREFRANK_CSV_HAS_HEADER", &config.CSV.HasHeader)

	envString("PREFRANK_ENGINE_MODEL", &config.Engine.Model)
	envFloat("PREFRANK_ENGINE_ALPHA", &config.Engine.Alpha)
	envFloat("PREFRANK_ENGINE_STEP_SIZE", &config.Engine.StepSize)
	envFloat("PREFRANK_ENGINE_CONFIDENCE_LEVEL", &config.Engine.ConfidenceLevel)
	envFloat("PREFRANK_ENGINE_STOP_THRESHOLD", &config.Engine.StopThreshold)
	envFloat("PREFRANK_ENGINE_MIN_COMPARISONS", &config.Engine.MinComparisons)
	envFloat("PREFRANK_ENGINE_MAX_COMPARISONS", &config.Engine.MaxComparisons)
	envInt("PREFRANK_ENGINE_ELO_K", &config.Engine.EloK)
	envInt("PREFRANK_ENGINE_ELO_K_DECAY_THRESHOLD", &config.Engine.EloKDecayThreshold)
	envFloat("PREFRANK_ENGINE_ELO_SCALE", &config.Engine.EloScale)
	envFloat("PREFRANK_ENGINE_ELO_MIN_RATING", &config.Engine.EloMinRating)
	envFloat("PREFRANK_ENGINE_ELO_MAX_RATING", &config.Engine.EloMaxRating)

	envString("PREFRANK_STORAGE_BACKEND", &config.Storage.Backend)
	envString("PREFRANK_STORAGE_PATH", &config.Storage.Path)
	envBool("PREFRANK_STORAGE_ATOMIC_WRITES", &config.Storage.AtomicWrites)
	envInt("PREFRANK_STORAGE_BACKUPS", &config.Storage.Backups)

	envBool("PREFRANK_JOURNAL_ENABLED", &config.Journal.Enabled)
	envString("PREFRANK_JOURNAL_DIRECTORY", &config.Journal.Directory)

	envString("PREFRANK_EXPORT_FORMAT", &config.Export.Format)
	envString("PREFRANK_EXPORT_SORT_ORDER", &config.Export.SortOrder)
	envInt("PREFRANK_EXPORT_ROUND_DECIMALS", &config.Export.RoundDecimals)

	envString("PREFRANK_LOG_LEVEL", &config.Logging.Level)
	envString("PREFRANK_LOG_FORMAT", &config.Logging.Format)

	envString("PREFRANK_METRICS_TEXTFILE", &config.Metrics.TextfilePath)
}
