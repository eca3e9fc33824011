package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateDcm2niix(); err != nil {
		return err
	}
	if err := c.validateCriteria(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateMapping()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.StagingDir == c.Paths.OutputDir {
		return errors.New("paths.staging_dir must differ from paths.output_dir")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Jobs <= 0 {
		return errors.New("ingest.jobs must be positive")
	}
	if c.Ingest.StaleStagingHours < 0 {
		return errors.New("ingest.stale_staging_hours must be >= 0")
	}
	if len(c.Ingest.Modalities) == 0 {
		return errors.New("ingest.modalities must include at least one modality folder")
	}
	for _, m := range c.Ingest.Modalities {
		switch m {
		case "anat", "dwi", "func":
		default:
			return fmt.Errorf("ingest.modalities: unsupported modality %q (expected anat, dwi, func)", m)
		}
	}
	switch c.Ingest.BackupCountMode {
	case BackupCountMax, BackupCountGroups:
	default:
		return fmt.Errorf("ingest.backup_count_mode: unsupported value %q (expected %s or %s)", c.Ingest.BackupCountMode, BackupCountMax, BackupCountGroups)
	}
	return nil
}

func (c *Config) validateDcm2niix() error {
	if c.Dcm2niix.TimeoutSeconds <= 0 {
		return errors.New("dcm2niix.timeout_seconds must be positive")
	}
	if strings.Count(c.Dcm2niix.FilenameTemplate, "--") != 2 {
		return errors.New("dcm2niix.filename_template must produce <id>--<protocol>--<timestamp> names")
	}
	return nil
}

func (c *Config) validateCriteria() error {
	if c.Criteria.MinFunctionalVolumes <= 0 {
		return errors.New("criteria.min_functional_volumes must be positive")
	}
	if c.Criteria.MinAnatomical < 0 {
		return errors.New("criteria.min_anatomical must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}

func (c *Config) validateMapping() error {
	if c.Mapping.protocolPattern == nil {
		return errors.New("mapping.protocols must include at least one pattern")
	}
	for token, class := range c.Mapping.Classes {
		if !IsKnownClass(class) {
			return fmt.Errorf("mapping.classes.%s: unsupported class %q (expected dwi, T1w, T2w, bold)", token, class)
		}
	}
	for tag, code := range c.Mapping.Sessions {
		if strings.TrimSpace(code.ID) == "" || strings.TrimSpace(code.Session) == "" {
			return fmt.Errorf("mapping.sessions.%s: id and session must both be set", tag)
		}
	}
	for dir, code := range c.Mapping.Directions {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("mapping.directions.%s: code must not be empty", dir)
		}
	}
	return nil
}
