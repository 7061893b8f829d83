package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
)

type ProceedingsUseCase struct {
	subs        ports.SubmissionRepository
	proceedings ports.ProceedingsRepository
	conferences ports.ConferenceDirectory
	storage     ports.ObjectStorage
	merger      ports.PDFMerger
	inspector   ports.PDFInspector
	locker      ports.Locker
	timeout     time.Duration
	now         ports.Clock
}

func NewProceedingsUseCase(
	subs ports.SubmissionRepository,
	proceedings ports.ProceedingsRepository,
	conferences ports.ConferenceDirectory,
	storage ports.ObjectStorage,
	merger ports.PDFMerger,
	inspector ports.PDFInspector,
	locker ports.Locker,
	timeout time.Duration,
) *ProceedingsUseCase {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ProceedingsUseCase{
		subs:        subs,
		proceedings: proceedings,
		conferences: conferences,
		storage:     storage,
		merger:      merger,
		inspector:   inspector,
		locker:      locker,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Compile merges the final PDFs of all print-ready submissions, in submission id
// order, into the conference archive. Missing stored files are skipped.
func (uc *ProceedingsUseCase) Compile(
	ctx context.Context,
	grant domain.OrganizerGrant,
	conferenceID int64,
	regenerate bool,
) (*domain.CompileOutcome, error) {
	if err := domain.RequireGrant(grant, "compile proceedings"); err != nil {
		return nil, err
	}
	conference, err := uc.conferences.Get(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("resolve conference: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	release, err := uc.locker.Acquire(ctx, proceedingsLockKey(conferenceID))
	if err != nil {
		return nil, fmt.Errorf("acquire proceedings lease: %w", err)
	}
	defer release()

	existing, err := uc.proceedings.GetByConference(ctx, conferenceID)
	switch {
	case err == nil && existing != nil && !regenerate:
		return nil, domain.WrapError(domain.ErrConflict, "compile proceedings", fmt.Errorf("proceedings for conference %d already exist", conferenceID))
	case err != nil && !domain.IsKind(err, domain.ErrNotFound):
		return nil, fmt.Errorf("fetch existing proceedings: %w", err)
	}

	eligible, err := uc.subs.ListPrintable(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("list print-ready submissions: %w", err)
	}
	if len(eligible) == 0 {
		slog.Info("proceedings_nothing_to_compile", "conference_id", conferenceID)
		return &domain.CompileOutcome{Status: domain.CompileNothingToCompile}, nil
	}

	docs, included, skipped, err := uc.collect(ctx, eligible)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		slog.Warn("proceedings_nothing_to_compile", "conference_id", conferenceID, "skipped", len(skipped))
		return &domain.CompileOutcome{Status: domain.CompileNothingToCompile, Skipped: skipped}, nil
	}

	var merged bytes.Buffer
	if err := uc.merger.Merge(ctx, docs, &merged); err != nil {
		return nil, fmt.Errorf("merge documents: %w", err)
	}
	pages, err := uc.inspector.PageCount(bytes.NewReader(merged.Bytes()), int64(merged.Len()))
	if err != nil {
		return nil, fmt.Errorf("inspect merged archive: %w", err)
	}

	key := ProceedingsKey(conference.Slug, conference.ID)
	if err := uc.storage.Save(ctx, key, &merged); err != nil {
		return nil, fmt.Errorf("publish proceedings archive: %w", err)
	}

	record := &domain.Proceedings{
		ConferenceID:  conferenceID,
		File:          key,
		SubmissionIDs: included,
		PageCount:     pages,
		CreatedAt:     uc.now(),
	}
	if err := uc.proceedings.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("persist proceedings: %w", err)
	}

	slog.Info("proceedings_compiled",
		"conference_id", conferenceID,
		"documents", len(included),
		"skipped", len(skipped),
		"pages", pages,
		"file", key,
	)
	return &domain.CompileOutcome{
		Status:      domain.CompileCreated,
		Proceedings: record,
		Skipped:     skipped,
	}, nil
}

func (uc *ProceedingsUseCase) collect(
	ctx context.Context,
	eligible []domain.Submission,
) ([]io.ReadSeeker, []int64, []domain.MissingStoredFileError, error) {
	docs := make([]io.ReadSeeker, 0, len(eligible))
	included := make([]int64, 0, len(eligible))
	var skipped []domain.MissingStoredFileError

	for _, sub := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("compile interrupted: %w", err)
		}
		data, err := uc.readFinal(ctx, sub)
		if err != nil {
			var missing *domain.MissingStoredFileError
			if errors.As(err, &missing) {
				slog.Warn("proceedings_file_missing", "submission_id", sub.ID, "key", sub.FinalFile)
				skipped = append(skipped, *missing)
				continue
			}
			return nil, nil, nil, err
		}
		docs = append(docs, bytes.NewReader(data))
		included = append(included, sub.ID)
	}
	return docs, included, skipped, nil
}

func (uc *ProceedingsUseCase) readFinal(ctx context.Context, sub domain.Submission) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, sub.FinalFile)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, &domain.MissingStoredFileError{SubmissionID: sub.ID, Key: sub.FinalFile}
		}
		return nil, fmt.Errorf("open final file of submission %d: %w", sub.ID, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read final file of submission %d: %w", sub.ID, err)
	}
	return data, nil
}

// Open returns the archive. Non-organizers see it only once results are released.
func (uc *ProceedingsUseCase) Open(ctx context.Context, who domain.Identity, conferenceID int64) (io.ReadCloser, *domain.Proceedings, error) {
	conference, err := uc.conferences.Get(ctx, conferenceID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve conference: %w", err)
	}
	if who.Role != domain.RoleOrganizer && !conference.ResultsReleased(uc.now()) {
		return nil, nil, domain.WrapError(domain.ErrForbidden, "open proceedings", fmt.Errorf("results for %s are released on %s", conference.Slug, conference.NotificationDate.Format(time.DateOnly)))
	}
	record, err := uc.proceedings.GetByConference(ctx, conferenceID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch proceedings: %w", err)
	}
	rc, err := uc.storage.Open(ctx, record.File)
	if err != nil {
		return nil, nil, fmt.Errorf("open proceedings archive: %w", err)
	}
	return rc, record, nil
}
