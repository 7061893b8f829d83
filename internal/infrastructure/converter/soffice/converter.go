package soffice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/resilience"
)

const (
	maxDiagnosticBytes = 4096
	// soffice exits with 81 after initializing a fresh user profile and must be rerun.
	exitProfileRestart = 81
)

// Converter renders word-processor documents to PDF with a headless office suite.
type Converter struct {
	binary   string
	timeout  time.Duration
	executor *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(binary string, options Options) *Converter {
	if strings.TrimSpace(binary) == "" {
		binary = "soffice"
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Converter{
		binary:   binary,
		timeout:  timeout,
		executor: options.ResilienceExecutor,
	}
}

// HealthCheck fails when the engine binary cannot be found on PATH.
func (c *Converter) HealthCheck() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("conversion engine %q unavailable: %w", c.binary, err)
	}
	return nil
}

// Convert writes <stem>.pdf next to inputPath and returns its path.
func (c *Converter) Convert(ctx context.Context, inputPath string) (string, error) {
	outDir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	outPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")

	// Separate profiles let conversions of different submissions run in parallel.
	// The profile outlives retries: a first run that exits 81 has just initialized it.
	profile, err := os.MkdirTemp("", "soffice-profile-*")
	if err != nil {
		return "", fmt.Errorf("create engine profile: %w", err)
	}
	defer os.RemoveAll(profile)

	call := func(ctx context.Context) error {
		return c.run(ctx, inputPath, outDir, profile)
	}
	if c.executor != nil {
		err = c.executor.Execute(ctx, "soffice.convert", call, classifyConversionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return "", &domain.ConversionFailedError{
			Source:      base,
			Diagnostics: "engine exited cleanly but produced no pdf",
			Err:         err,
		}
	}
	return outPath, nil
}

func (c *Converter) run(ctx context.Context, inputPath, outDir, profile string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.binary,
		"-env:UserInstallation="+fileURL(profile),
		"--headless",
		"--invisible",
		"--nologo",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err := cmd.Run()
	source := filepath.Base(inputPath)
	if err == nil {
		slog.Info("soffice_convert",
			"source", source,
			"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
		)
		return nil
	}

	diagnostics := diagnosticsOf(&stderr, &stdout)
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return &domain.ConversionFailedError{
			Source:      source,
			ExitCode:    -1,
			Diagnostics: joinDiagnostics(fmt.Sprintf("timed out after %s", c.timeout), diagnostics),
			Err:         context.DeadlineExceeded,
		}
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		return &domain.ConversionFailedError{
			Source:      source,
			ExitCode:    -1,
			Diagnostics: fmt.Sprintf("conversion engine %q not found", c.binary),
			Err:         err,
		}
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &domain.ConversionFailedError{
		Source:      source,
		ExitCode:    exitCode,
		Diagnostics: diagnostics,
		Err:         err,
	}
}

func classifyConversionError(err error) resilience.ErrorClassification {
	var convErr *domain.ConversionFailedError
	if errors.As(err, &convErr) && convErr.ExitCode == exitProfileRestart {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
	}
	// Document errors do not trip the breaker.
	if errors.As(err, &convErr) && convErr.ExitCode > 0 {
		return resilience.ErrorClassification{}
	}
	return resilience.TransientClassifier()(err)
}

func diagnosticsOf(stderr, stdout *bytes.Buffer) string {
	out := strings.TrimSpace(stderr.String())
	if out == "" {
		out = strings.TrimSpace(stdout.String())
	}
	if len(out) > maxDiagnosticBytes {
		out = out[len(out)-maxDiagnosticBytes:]
	}
	return out
}

func joinDiagnostics(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ": ")
}

func fileURL(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
