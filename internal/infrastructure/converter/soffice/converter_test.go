package soffice

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/resilience"
)

// fakeEngine writes an executable that mimics the soffice CLI. The script sees
// $outdir, $stem and $profile (the -env:UserInstallation directory).
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-soffice")
	script := "#!/bin/sh\n" +
		"for last; do :; done\n" +
		"for arg; do case \"$arg\" in -env:UserInstallation=file://*) profile=\"${arg#-env:UserInstallation=file://}\";; esac; done\n" +
		"while [ $# -gt 1 ]; do if [ \"$1\" = \"--outdir\" ]; then outdir=\"$2\"; fi; shift; done\n" +
		"stem=$(basename \"$last\"); stem=${stem%.*}\n" +
		body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func writeInput(t *testing.T) string {
	t.Helper()
	input := filepath.Join(t.TempDir(), "3.docx")
	if err := os.WriteFile(input, []byte("docx"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return input
}

func TestConvertWritesPDFNextToInput(t *testing.T) {
	engine := fakeEngine(t, `printf '%%PDF-1.4 fake' > "$outdir/$stem.pdf"`)
	input := writeInput(t)

	out, err := New(engine, Options{}).Convert(context.Background(), input)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out != filepath.Join(filepath.Dir(input), "3.pdf") {
		t.Fatalf("unexpected output path %s", out)
	}
	raw, _ := os.ReadFile(out)
	if !strings.HasPrefix(string(raw), "%PDF") {
		t.Fatalf("unexpected output %q", raw)
	}
}

func TestConvertReportsExitCodeAndStderr(t *testing.T) {
	engine := fakeEngine(t, `echo "Error: source file could not be loaded" >&2; exit 1`)

	_, err := New(engine, Options{}).Convert(context.Background(), writeInput(t))
	if !domain.IsKind(err, domain.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	convErr := err.(*domain.ConversionFailedError)
	if convErr.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", convErr.ExitCode)
	}
	if convErr.Diagnostics != "Error: source file could not be loaded" {
		t.Fatalf("unexpected diagnostics %q", convErr.Diagnostics)
	}
}

func TestConvertFailsWhenEngineProducesNothing(t *testing.T) {
	engine := fakeEngine(t, `exit 0`)

	_, err := New(engine, Options{}).Convert(context.Background(), writeInput(t))
	if !domain.IsKind(err, domain.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
}

func TestConvertTimesOut(t *testing.T) {
	engine := fakeEngine(t, `exec sleep 5`)

	started := time.Now()
	_, err := New(engine, Options{Timeout: 100 * time.Millisecond}).Convert(context.Background(), writeInput(t))
	if !domain.IsKind(err, domain.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout diagnostics, got %v", err)
	}
	if time.Since(started) > 4*time.Second {
		t.Fatalf("engine was not killed on timeout")
	}
}

func TestConvertRetriesProfileRestart(t *testing.T) {
	runs := filepath.Join(t.TempDir(), "runs")
	// Like the real engine, the first run against a fresh profile initializes it and exits 81.
	engine := fakeEngine(t, `echo "$profile" >> "`+runs+`"
if [ ! -f "$profile/initialized" ]; then touch "$profile/initialized"; exit 81; fi
printf '%%PDF-1.4' > "$outdir/$stem.pdf"`)
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		BreakerEnabled:      false,
	})

	if _, err := New(engine, Options{ResilienceExecutor: executor}).Convert(context.Background(), writeInput(t)); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	raw, err := os.ReadFile(runs)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	profiles := strings.Fields(string(raw))
	if len(profiles) != 2 || profiles[0] != profiles[1] {
		t.Fatalf("expected two runs on one profile, got %v", profiles)
	}
	if _, err := os.Stat(profiles[0]); !os.IsNotExist(err) {
		t.Fatalf("expected profile %s removed after conversion, stat err = %v", profiles[0], err)
	}
}

func TestConvertMissingBinary(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "no-such-soffice"), Options{})
	if err := c.HealthCheck(); err == nil {
		t.Fatalf("expected HealthCheck error")
	}
	_, err := c.Convert(context.Background(), writeInput(t))
	if !domain.IsKind(err, domain.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
}

func TestFileURL(t *testing.T) {
	got := fileURL("/tmp/profile dir")
	if got != "file:///tmp/profile%20dir" {
		t.Fatalf("unexpected url %q", got)
	}
}
