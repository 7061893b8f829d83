package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
)

// Status writes after a conversion must land even when the worker is shutting down,
// or the submission would stay pending with no job behind it.
const finalWriteTimeout = 10 * time.Second

type ConversionUseCase struct {
	subs      ports.SubmissionRepository
	versions  ports.VersionRepository
	storage   ports.ObjectStorage
	converter ports.DocumentConverter
	inspector ports.PDFInspector
	locker    ports.Locker
	workDir   string
}

func NewConversionUseCase(
	subs ports.SubmissionRepository,
	versions ports.VersionRepository,
	storage ports.ObjectStorage,
	converter ports.DocumentConverter,
	inspector ports.PDFInspector,
	locker ports.Locker,
	workDir string,
) *ConversionUseCase {
	return &ConversionUseCase{
		subs:      subs,
		versions:  versions,
		storage:   storage,
		converter: converter,
		inspector: inspector,
		locker:    locker,
		workDir:   workDir,
	}
}

// ProcessConversion renders the latest version of a print-ready submission and
// attaches the PDF. Jobs for the same submission run one at a time.
func (uc *ConversionUseCase) ProcessConversion(ctx context.Context, submissionID int64) error {
	release, err := uc.locker.Acquire(ctx, conversionLockKey(submissionID))
	if err != nil {
		return fmt.Errorf("acquire conversion lease: %w", err)
	}
	defer release()

	sub, err := uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("fetch submission: %w", err)
	}
	if sub.Status != domain.StatusReadyForPrint ||
		(sub.ConversionState != domain.ConversionPending && sub.ConversionState != domain.ConversionFailed) {
		slog.Info("conversion_skipped",
			"submission_id", submissionID,
			"status", string(sub.Status),
			"conversion_state", string(sub.ConversionState),
		)
		return nil
	}

	finalKey, err := uc.convertLatest(ctx, submissionID)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err != nil {
		if markErr := uc.markFailed(writeCtx, submissionID, err); markErr != nil {
			return fmt.Errorf("%w; mark conversion failed: %v", err, markErr)
		}
		return err
	}

	if err := uc.subs.MarkConverted(writeCtx, submissionID, finalKey); err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			slog.Warn("conversion_discarded", "submission_id", submissionID, "reason", "left ready_for_print during conversion")
			return nil
		}
		return fmt.Errorf("attach final file: %w", err)
	}
	slog.Info("conversion_done", "submission_id", submissionID, "final_file", finalKey)
	return nil
}

func (uc *ConversionUseCase) convertLatest(ctx context.Context, submissionID int64) (string, error) {
	latest, err := uc.versions.Latest(ctx, submissionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return "", domain.WrapError(domain.ErrNoVersions, "convert", fmt.Errorf("submission %d", submissionID))
		}
		return "", fmt.Errorf("fetch latest version: %w", err)
	}

	workspace, err := os.MkdirTemp(uc.workDir, fmt.Sprintf("convert-%d-*", submissionID))
	if err != nil {
		return "", fmt.Errorf("create conversion workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	inputPath := filepath.Join(workspace, path.Base(latest.SourceFile))
	if err := uc.fetchSource(ctx, submissionID, latest.SourceFile, inputPath); err != nil {
		return "", err
	}

	pdfPath, err := uc.converter.Convert(ctx, inputPath)
	if err != nil {
		return "", fmt.Errorf("convert version %d: %w", latest.Number, err)
	}
	if err := uc.checkRendering(pdfPath, latest.SourceFile); err != nil {
		return "", err
	}

	out, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open rendered pdf: %w", err)
	}
	defer out.Close()

	finalKey := FinalKey(latest.SourceFile)
	if err := uc.storage.Save(ctx, finalKey, out); err != nil {
		return "", fmt.Errorf("publish rendered pdf: %w", err)
	}
	return finalKey, nil
}

func (uc *ConversionUseCase) fetchSource(ctx context.Context, submissionID int64, key, dst string) error {
	src, err := uc.storage.Open(ctx, key)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return &domain.MissingStoredFileError{SubmissionID: submissionID, Key: key}
		}
		return fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create local source copy: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("copy source file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close local source copy: %w", err)
	}
	return nil
}

// checkRendering rejects engine output that is not a readable, non-empty PDF.
func (uc *ConversionUseCase) checkRendering(pdfPath, source string) error {
	f, err := os.Open(pdfPath)
	if err != nil {
		return &domain.ConversionFailedError{Source: source, Diagnostics: "engine produced no output", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat rendered pdf: %w", err)
	}
	pages, err := uc.inspector.PageCount(f, info.Size())
	if err != nil {
		return &domain.ConversionFailedError{Source: source, Diagnostics: "rendered pdf is unreadable", Err: err}
	}
	if pages == 0 {
		return &domain.ConversionFailedError{Source: source, Diagnostics: "rendered pdf has no pages"}
	}
	return nil
}

func (uc *ConversionUseCase) markFailed(ctx context.Context, submissionID int64, cause error) error {
	diagnostics := cause.Error()
	var convErr *domain.ConversionFailedError
	if errors.As(cause, &convErr) && convErr.Diagnostics != "" {
		diagnostics = convErr.Diagnostics
	}
	slog.Error("conversion_failed", "submission_id", submissionID, "error", cause)
	return uc.subs.MarkConversionFailed(ctx, submissionID, diagnostics)
}
