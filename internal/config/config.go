package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	InputDir   string `toml:"input_dir"`
	OutputDir  string `toml:"output_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Ingest contains configuration for the session driver.
type Ingest struct {
	// SubjectPattern selects source session folders under input_dir (glob).
	SubjectPattern string `toml:"subject_pattern"`
	// Jobs bounds how many source folders are processed concurrently.
	Jobs int `toml:"jobs"`
	// Modalities lists the modality folders materialized for every session.
	Modalities []string `toml:"modalities"`
	// BackupCountMode selects how ledger backup columns are computed: "max" or "groups".
	BackupCountMode string `toml:"backup_count_mode"`
	// StaleStagingHours removes leftover staging directories older than this.
	StaleStagingHours int `toml:"stale_staging_hours"`
}

// Dcm2niix contains configuration for the external DICOM converter.
type Dcm2niix struct {
	Binary           string `toml:"binary"`
	Compress         bool   `toml:"compress"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	FilenameTemplate string `toml:"filename_template"`
}

// Criteria contains inclusion/exclusion thresholds.
type Criteria struct {
	DiffusionDenylist    []string `toml:"diffusion_denylist"`
	MinFunctionalVolumes int      `toml:"min_functional_volumes"`
	MinAnatomical        int      `toml:"min_anatomical"`
	ScoutPatterns        []string `toml:"scout_patterns"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bidsort.
//
// Configuration sections by subsystem:
//   - Paths: source, dataset, staging, and log directories
//   - Ingest: folder selection, parallelism, and ledger semantics
//   - Dcm2niix: converter invocation
//   - Criteria: inclusion thresholds and scout detection
//   - Logging: log format and level
//   - Mapping: identity corrections, sessions, protocols, and codes
type Config struct {
	Paths    Paths    `toml:"paths"`
	Ingest   Ingest   `toml:"ingest"`
	Dcm2niix Dcm2niix `toml:"dcm2niix"`
	Criteria Criteria `toml:"criteria"`
	Logging  Logging  `toml:"logging"`
	Mapping  Mapping  `toml:"mapping"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bidsort/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bidsort.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the ingest pipeline writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ConverterBinary returns the dcm2niix executable name or path.
func (c *Config) ConverterBinary() string {
	if b := strings.TrimSpace(c.Dcm2niix.Binary); b != "" {
		return b
	}
	return defaultConverterBinary
}

// HistoryPath returns the run history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Resolve normalizes and validates a config built in code rather than loaded
// from disk.
func (c *Config) Resolve() error {
	if err := c.normalize(""); err != nil {
		return err
	}
	return c.Validate()
}
