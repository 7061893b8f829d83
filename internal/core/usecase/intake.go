package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
)

type SubmissionIntakeUseCase struct {
	subs        ports.SubmissionRepository
	versions    ports.VersionRepository
	storage     ports.ObjectStorage
	conferences ports.ConferenceDirectory
	locker      ports.Locker
	maxBytes    int64
	now         ports.Clock
}

func NewSubmissionIntakeUseCase(
	subs ports.SubmissionRepository,
	versions ports.VersionRepository,
	storage ports.ObjectStorage,
	conferences ports.ConferenceDirectory,
	locker ports.Locker,
	maxBytes int64,
) *SubmissionIntakeUseCase {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	return &SubmissionIntakeUseCase{
		subs:        subs,
		versions:    versions,
		storage:     storage,
		conferences: conferences,
		locker:      locker,
		maxBytes:    maxBytes,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SubmissionIntakeUseCase) Submit(
	ctx context.Context,
	author domain.Identity,
	conferenceID int64,
	meta domain.SubmissionMetadata,
	upload domain.Upload,
	comment string,
) (*domain.SubmissionDetail, error) {
	if author.UserID == 0 {
		return nil, domain.WrapError(domain.ErrUnauthorized, "submit", errors.New("anonymous identity"))
	}
	if author.Role != domain.RoleAuthor {
		return nil, domain.WrapError(domain.ErrForbidden, "submit", fmt.Errorf("role %q cannot submit papers", author.Role))
	}
	conference, err := uc.conferences.Get(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("resolve conference: %w", err)
	}
	if !conference.AcceptsSubmissions(uc.now()) {
		return nil, domain.WrapError(domain.ErrDeadlinePassed, "submit", fmt.Errorf("conference %s closed at %s", conference.Slug, conference.RegistrationDeadline.Format(time.RFC3339)))
	}

	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit", errors.New("title is required"))
	}
	ext, err := validateUpload(upload, uc.maxBytes)
	if err != nil {
		return nil, err
	}

	existing, err := uc.subs.FindByAuthor(ctx, author.UserID, conferenceID)
	switch {
	case err == nil && existing != nil:
		return nil, domain.WrapError(domain.ErrDuplicateSubmission, "submit", fmt.Errorf("author %d already submitted to conference %d", author.UserID, conferenceID))
	case err != nil && !domain.IsKind(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check existing submission: %w", err)
	}

	now := uc.now()
	sub := &domain.Submission{
		AuthorID:        author.UserID,
		ConferenceID:    conferenceID,
		Title:           meta.Title,
		Authors:         strings.TrimSpace(meta.Authors),
		Abstract:        strings.TrimSpace(meta.Abstract),
		Keywords:        strings.TrimSpace(meta.Keywords),
		Status:          domain.StatusUnderReview,
		ConversionState: domain.ConversionNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := uc.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	version, err := uc.appendFirstVersion(ctx, sub.ID, ext, upload, comment)
	if err != nil {
		if delErr := uc.subs.Delete(ctx, sub.ID); delErr != nil {
			return nil, fmt.Errorf("%w; rollback submission: %v", err, delErr)
		}
		return nil, err
	}

	slog.Info("submission_created",
		"submission_id", sub.ID,
		"conference_id", conferenceID,
		"author_id", author.UserID,
		"version", version.Number,
	)
	return &domain.SubmissionDetail{Submission: *sub, Versions: []domain.Version{*version}}, nil
}

func (uc *SubmissionIntakeUseCase) Resubmit(
	ctx context.Context,
	author domain.Identity,
	submissionID int64,
	upload domain.Upload,
	comment string,
) (*domain.Version, error) {
	sub, err := uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}
	if author.UserID == 0 || sub.AuthorID != author.UserID {
		return nil, domain.WrapError(domain.ErrForbidden, "resubmit", fmt.Errorf("submission %d belongs to another author", submissionID))
	}
	if sub.Status != domain.StatusRevision {
		return nil, domain.WrapError(domain.ErrConflict, "resubmit", fmt.Errorf("submission %d is %s, not %s", submissionID, sub.Status, domain.StatusRevision))
	}
	ext, err := validateUpload(upload, uc.maxBytes)
	if err != nil {
		return nil, err
	}

	release, err := uc.locker.Acquire(ctx, submissionLockKey(submissionID))
	if err != nil {
		return nil, fmt.Errorf("acquire submission lease: %w", err)
	}
	defer release()

	// An organizer may have moved the submission while the lease was awaited.
	sub, err = uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("refetch submission: %w", err)
	}
	if sub.Status != domain.StatusRevision {
		return nil, domain.WrapError(domain.ErrConflict, "resubmit", fmt.Errorf("submission %d is %s, not %s", submissionID, sub.Status, domain.StatusRevision))
	}

	version, err := uc.appendVersion(ctx, sub.ID, ext, upload, comment)
	if err != nil {
		return nil, err
	}
	if err := uc.subs.UpdateStatus(ctx, sub.ID, domain.StatusUnderReview, domain.ConversionNone); err != nil {
		return nil, fmt.Errorf("reset status to %s: %w", domain.StatusUnderReview, err)
	}

	slog.Info("version_added", "submission_id", sub.ID, "version", version.Number)
	return version, nil
}

func (uc *SubmissionIntakeUseCase) appendFirstVersion(
	ctx context.Context,
	submissionID int64,
	ext string,
	upload domain.Upload,
	comment string,
) (*domain.Version, error) {
	release, err := uc.locker.Acquire(ctx, submissionLockKey(submissionID))
	if err != nil {
		return nil, fmt.Errorf("acquire submission lease: %w", err)
	}
	defer release()
	return uc.appendVersion(ctx, submissionID, ext, upload, comment)
}

// appendVersion stores the file under the next version number. Callers hold the
// submission lease, so concurrent uploads never share a number.
func (uc *SubmissionIntakeUseCase) appendVersion(
	ctx context.Context,
	submissionID int64,
	ext string,
	upload domain.Upload,
	comment string,
) (*domain.Version, error) {
	number, err := uc.versions.NextNumber(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	key := SourceKey(submissionID, number, ext)
	body := newLimitReader(upload.Body, uc.maxBytes)
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save source file: %w", err)
	}

	version := &domain.Version{
		SubmissionID:     submissionID,
		Number:           number,
		SourceFile:       key,
		OriginalFilename: upload.Filename,
		SizeBytes:        body.n,
		AuthorComment:    strings.TrimSpace(comment),
		CreatedAt:        uc.now(),
	}
	if err := uc.versions.Append(ctx, version); err != nil {
		if delErr := uc.storage.Delete(ctx, key); delErr != nil {
			slog.Warn("orphan_source_file", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("append version: %w", err)
	}
	return version, nil
}
