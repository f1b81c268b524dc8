package config

// Config represents the full application configuration.
type Config struct {
	Ingest        IngestConfig        `yaml:"ingest"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Store         StoreConfig         `yaml:"store"`
	Output        OutputConfig        `yaml:"output"`
	Redaction     RedactionConfig     `yaml:"redaction"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// IngestConfig locates the artifacts handed to the pipeline.
type IngestConfig struct {
	// RepositoryDir is the git repository used when source trees are
	// addressed by ref instead of by directory.
	RepositoryDir string `yaml:"repositoryDir"`
}

// ExtractionConfig bounds the per-artifact extraction walks.
type ExtractionConfig struct {
	Binary BinaryExtractionConfig `yaml:"binary"`
	Logs   LogExtractionConfig    `yaml:"logs"`
}

// BinaryExtractionConfig tunes the binary string/symbol walk.
type BinaryExtractionConfig struct {
	MinStringLength int `yaml:"minStringLength"`
	MaxStrings      int `yaml:"maxStrings"`
}

// LogExtractionConfig caps log template extraction.
type LogExtractionConfig struct {
	MaxTemplates  int `yaml:"maxTemplates"`
	MaxLineLength int `yaml:"maxLineLength"`
	MaxSamples    int `yaml:"maxSamples"`
}

// ScoringConfig overrides rule contributions; keys are rule ids.
type ScoringConfig struct {
	Weights map[string]float64 `yaml:"weights"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OutputConfig directs report artifacts.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// RedactionConfig toggles log-line secret scrubbing.
type RedactionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures pipeline logging.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`  // debug, info, error
	Format  string `yaml:"format"` // json, human
}
