package dcm2niix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"bidsort/internal/fileutil"
	"bidsort/internal/logging"
	"bidsort/internal/services"
)

// tailLines bounds how much converter output is kept for error messages.
const tailLines = 20

// Converter converts one DICOM series folder into NIfTI volumes plus JSON
// sidecars.
type Converter interface {
	Convert(ctx context.Context, sourceDir, outputDir string) ([]string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger for converter output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "dcm2niix")
	}
}

// Client wraps dcm2niix CLI invocations.
type Client struct {
	binary   string
	template string
	compress bool
	timeout  time.Duration
	exec     Executor
	logger   *slog.Logger
}

// New constructs a dcm2niix client. template is the dcm2niix -f filename
// template; it must yield <id>--<protocol>--<timestamp> base names.
func New(binary, template string, compress bool, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("dcm2niix binary required")
	}
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, errors.New("dcm2niix filename template required")
	}
	client := &Client{
		binary:   binary,
		template: template,
		compress: compress,
		timeout:  time.Duration(timeoutSeconds) * time.Second,
		exec:     commandExecutor{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Args returns the dcm2niix command line for one conversion.
func (c *Client) Args(sourceDir, outputDir string) []string {
	compress := "n"
	if c.compress {
		compress = "y"
	}
	return []string{"-b", "y", "-z", compress, "-f", c.template, "-o", outputDir, sourceDir}
}

// Convert runs dcm2niix on sourceDir, writing into outputDir (created if
// needed), and returns the files produced, sorted by name. Converter failures
// and empty output are reported as services.ErrExternalTool.
func (c *Client) Convert(ctx context.Context, sourceDir, outputDir string) ([]string, error) {
	if strings.TrimSpace(sourceDir) == "" || strings.TrimSpace(outputDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "convert", "prepare", "source and output directories required", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "convert", "prepare", "create output directory", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		mu   sync.Mutex
		tail []string
	)
	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()
	err := c.exec.Run(runCtx, c.binary, c.Args(sourceDir, outputDir), func(line string) {
		logger.Debug("dcm2niix output", logging.String("line", line))
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[len(tail)-tailLines:]
		}
		mu.Unlock()
	})
	if err != nil {
		msg := fmt.Sprintf("dcm2niix failed on %s", sourceDir)
		if len(tail) > 0 {
			msg += ": " + strings.Join(tail, " | ")
		}
		return nil, services.Wrap(services.ErrExternalTool, "convert", "run", msg, err)
	}

	outputs, err := fileutil.ListEntries(outputDir, fileutil.KindFile, "")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "convert", "list outputs", outputDir, err)
	}
	outputs = filterOutputs(outputs)
	if len(outputs) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "convert", "outputs", fmt.Sprintf("dcm2niix produced no output for %s", sourceDir), nil)
	}
	logger.Info("dcm2niix conversion complete",
		logging.String("source", sourceDir),
		logging.Int("outputs", len(outputs)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return outputs, nil
}

// filterOutputs drops auxiliary files that never belong to an image group.
func filterOutputs(paths []string) []string {
	kept := paths[:0]
	for _, p := range paths {
		switch fileutil.Ext(p) {
		case "tsv", "txt":
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	scanErrs := make(chan error, 2)
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			scanErrs <- err
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()
	close(scanErrs)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return err
	}
	if err := <-scanErrs; err != nil {
		return fmt.Errorf("scan output: %w", err)
	}
	return nil
}
