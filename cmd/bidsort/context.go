package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bidsort/internal/config"
	"bidsort/internal/logging"
	"bidsort/internal/services/dcm2niix"
)

// converterFactory builds the DICOM converter for a run.
type converterFactory func(cfg *config.Config, logger *slog.Logger) (dcm2niix.Converter, error)

// defaultConverterFactory is swapped in tests.
var defaultConverterFactory converterFactory = newDcm2niixConverter

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	newConverter converterFactory
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		newConverter: defaultConverterFactory,
	}
}

func (c *commandContext) configArg() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configArg())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(console io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, console)
}

func newDcm2niixConverter(cfg *config.Config, logger *slog.Logger) (dcm2niix.Converter, error) {
	client, err := dcm2niix.New(
		cfg.ConverterBinary(),
		cfg.Dcm2niix.FilenameTemplate,
		cfg.Dcm2niix.Compress,
		cfg.Dcm2niix.TimeoutSeconds,
		dcm2niix.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
