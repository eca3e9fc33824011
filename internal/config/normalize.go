package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize(configDir string) error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeDcm2niix()
	c.normalizeCriteria()
	c.normalizeLogging()
	return c.normalizeMapping(configDir)
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("BIDSORT_INPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.InputDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("BIDSORT_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.InputDir, err = expandPath(strings.TrimSpace(c.Paths.InputDir)); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(strings.TrimSpace(c.Paths.StagingDir)); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIngest() {
	c.Ingest.SubjectPattern = strings.TrimSpace(c.Ingest.SubjectPattern)
	if c.Ingest.SubjectPattern == "" {
		c.Ingest.SubjectPattern = defaultSubjectPattern
	}
	c.Ingest.BackupCountMode = strings.ToLower(strings.TrimSpace(c.Ingest.BackupCountMode))
	if c.Ingest.BackupCountMode == "" {
		c.Ingest.BackupCountMode = defaultBackupCountMode
	}
	modalities := make([]string, 0, len(c.Ingest.Modalities))
	for _, m := range c.Ingest.Modalities {
		if m = strings.TrimSpace(m); m != "" {
			modalities = append(modalities, m)
		}
	}
	c.Ingest.Modalities = modalities
}

func (c *Config) normalizeDcm2niix() {
	c.Dcm2niix.Binary = strings.TrimSpace(c.Dcm2niix.Binary)
	if c.Dcm2niix.Binary == "" {
		c.Dcm2niix.Binary = defaultConverterBinary
	}
	c.Dcm2niix.FilenameTemplate = strings.TrimSpace(c.Dcm2niix.FilenameTemplate)
	if c.Dcm2niix.FilenameTemplate == "" {
		c.Dcm2niix.FilenameTemplate = defaultFilenameTemplate
	}
}

func (c *Config) normalizeCriteria() {
	c.Criteria.DiffusionDenylist = trimAll(c.Criteria.DiffusionDenylist)
	patterns := trimAll(c.Criteria.ScoutPatterns)
	for i := range patterns {
		patterns[i] = strings.ToLower(patterns[i])
	}
	c.Criteria.ScoutPatterns = patterns
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMapping(configDir string) error {
	file := strings.TrimSpace(c.Mapping.File)
	if file != "" {
		if !strings.HasPrefix(file, "~") && !filepath.IsAbs(file) && configDir != "" {
			file = filepath.Join(configDir, file)
		}
		expanded, err := expandPath(file)
		if err != nil {
			return fmt.Errorf("mapping.file: %w", err)
		}
		c.Mapping.File = expanded
		if err := c.Mapping.loadLegacyFile(expanded); err != nil {
			return err
		}
	}
	return c.Mapping.compile()
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
