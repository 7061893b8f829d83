package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
)

type LifecycleUseCase struct {
	subs     ports.SubmissionRepository
	versions ports.VersionRepository
	queue    ports.ConversionQueue
	locker   ports.Locker
}

func NewLifecycleUseCase(
	subs ports.SubmissionRepository,
	versions ports.VersionRepository,
	queue ports.ConversionQueue,
	locker ports.Locker,
) *LifecycleUseCase {
	return &LifecycleUseCase{
		subs:     subs,
		versions: versions,
		queue:    queue,
		locker:   locker,
	}
}

// Transition moves a submission to any status. Entering ready_for_print requires a
// version and enqueues exactly one conversion job for that edge.
func (uc *LifecycleUseCase) Transition(
	ctx context.Context,
	grant domain.OrganizerGrant,
	submissionID int64,
	status domain.SubmissionStatus,
	comment string,
) (*domain.Submission, error) {
	if err := domain.RequireGrant(grant, "transition"); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("unknown status %q", status))
	}

	// The old status decides whether this call owns the ready_for_print edge.
	release, err := uc.locker.Acquire(ctx, submissionLockKey(submissionID))
	if err != nil {
		return nil, fmt.Errorf("acquire submission lease: %w", err)
	}
	defer release()

	sub, err := uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}
	oldStatus := sub.Status
	entersPrint := oldStatus != domain.StatusReadyForPrint && status == domain.StatusReadyForPrint

	if entersPrint {
		if _, err := uc.latestVersion(ctx, submissionID); err != nil {
			return nil, err
		}
	}

	conversion := domain.ConversionNone
	switch {
	case entersPrint:
		conversion = domain.ConversionPending
	case status == domain.StatusReadyForPrint:
		conversion = sub.ConversionState
	}
	if err := uc.subs.UpdateStatus(ctx, submissionID, status, conversion); err != nil {
		return nil, fmt.Errorf("persist status: %w", err)
	}

	comment = strings.TrimSpace(comment)
	if comment != "" && status == domain.StatusRevision {
		if err := uc.commentLatest(ctx, submissionID, comment); err != nil {
			return nil, err
		}
	}

	slog.Info("status_changed",
		"submission_id", submissionID,
		"from", string(oldStatus),
		"to", string(status),
		"organizer_id", grant.UserID(),
	)

	if entersPrint {
		if err := uc.enqueue(ctx, submissionID); err != nil {
			return nil, err
		}
	}

	updated, err := uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("reload submission: %w", err)
	}
	return updated, nil
}

// CommentVersion sets the organizer comment of one specific version.
func (uc *LifecycleUseCase) CommentVersion(
	ctx context.Context,
	grant domain.OrganizerGrant,
	submissionID int64,
	number int,
	comment string,
) (*domain.Version, error) {
	if err := domain.RequireGrant(grant, "comment version"); err != nil {
		return nil, err
	}
	version, err := uc.versions.GetByNumber(ctx, submissionID, number)
	if err != nil {
		return nil, fmt.Errorf("fetch version: %w", err)
	}
	comment = strings.TrimSpace(comment)
	if err := uc.versions.UpdateOrganizerComment(ctx, version.ID, comment); err != nil {
		return nil, fmt.Errorf("update organizer comment: %w", err)
	}
	version.OrganizerComment = comment
	return version, nil
}

// RetryConversion re-enqueues conversion for a print-ready submission whose
// rendering failed or never finished.
func (uc *LifecycleUseCase) RetryConversion(
	ctx context.Context,
	grant domain.OrganizerGrant,
	submissionID int64,
) (*domain.Submission, error) {
	if err := domain.RequireGrant(grant, "retry conversion"); err != nil {
		return nil, err
	}
	release, err := uc.locker.Acquire(ctx, submissionLockKey(submissionID))
	if err != nil {
		return nil, fmt.Errorf("acquire submission lease: %w", err)
	}
	defer release()

	sub, err := uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}
	if sub.Status != domain.StatusReadyForPrint {
		return nil, domain.WrapError(domain.ErrConflict, "retry conversion", fmt.Errorf("submission %d is %s", submissionID, sub.Status))
	}
	if sub.ConversionState == domain.ConversionDone {
		return nil, domain.WrapError(domain.ErrConflict, "retry conversion", fmt.Errorf("submission %d already converted", submissionID))
	}
	if _, err := uc.latestVersion(ctx, submissionID); err != nil {
		return nil, err
	}
	if err := uc.subs.UpdateStatus(ctx, submissionID, domain.StatusReadyForPrint, domain.ConversionPending); err != nil {
		return nil, fmt.Errorf("mark conversion pending: %w", err)
	}
	if err := uc.enqueue(ctx, submissionID); err != nil {
		return nil, err
	}
	return uc.subs.GetByID(ctx, submissionID)
}

func (uc *LifecycleUseCase) latestVersion(ctx context.Context, submissionID int64) (*domain.Version, error) {
	latest, err := uc.versions.Latest(ctx, submissionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrNoVersions, "ready for print", fmt.Errorf("submission %d", submissionID))
		}
		return nil, fmt.Errorf("fetch latest version: %w", err)
	}
	return latest, nil
}

func (uc *LifecycleUseCase) commentLatest(ctx context.Context, submissionID int64, comment string) error {
	latest, err := uc.versions.Latest(ctx, submissionID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fetch latest version: %w", err)
	}
	if err := uc.versions.UpdateOrganizerComment(ctx, latest.ID, comment); err != nil {
		return fmt.Errorf("attach revision comment: %w", err)
	}
	return nil
}

// enqueue publishes the conversion job. A failed publish is recorded on the
// submission so the organizer can retry it.
func (uc *LifecycleUseCase) enqueue(ctx context.Context, submissionID int64) error {
	if err := uc.queue.PublishConversionRequested(ctx, submissionID); err != nil {
		if markErr := uc.subs.MarkConversionFailed(ctx, submissionID, "enqueue conversion: "+err.Error()); markErr != nil {
			return fmt.Errorf("publish conversion job: %w; mark failed: %v", err, markErr)
		}
		return fmt.Errorf("publish conversion job: %w", err)
	}
	slog.Info("conversion_requested", "submission_id", submissionID)
	return nil
}
