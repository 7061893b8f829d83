package ports

import (
	"context"
	"io"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

// SubmissionIntake is the inbound contract for author uploads.
type SubmissionIntake interface {
	Submit(ctx context.Context, author domain.Identity, conferenceID int64, meta domain.SubmissionMetadata, upload domain.Upload, comment string) (*domain.SubmissionDetail, error)
	Resubmit(ctx context.Context, author domain.Identity, submissionID int64, upload domain.Upload, comment string) (*domain.Version, error)
}

// SubmissionReader is the read model for submissions and their stored files.
type SubmissionReader interface {
	Get(ctx context.Context, who domain.Identity, submissionID int64) (*domain.SubmissionDetail, error)
	OpenSource(ctx context.Context, who domain.Identity, submissionID int64, number int) (io.ReadCloser, *domain.Version, error)
	OpenFinal(ctx context.Context, who domain.Identity, submissionID int64) (io.ReadCloser, *domain.Submission, error)
	List(ctx context.Context, grant domain.OrganizerGrant, conferenceID int64, status domain.SubmissionStatus) (*domain.SubmissionListing, error)
	Export(ctx context.Context, grant domain.OrganizerGrant, conferenceID int64, w io.Writer) error
	ListOwn(ctx context.Context, who domain.Identity) ([]domain.Submission, error)
	ListPublished(ctx context.Context, who domain.Identity, conferenceID int64) ([]domain.PublishedPaper, error)
}

// SubmissionLifecycle is the inbound contract for organizer status changes.
type SubmissionLifecycle interface {
	Transition(ctx context.Context, grant domain.OrganizerGrant, submissionID int64, status domain.SubmissionStatus, comment string) (*domain.Submission, error)
	CommentVersion(ctx context.Context, grant domain.OrganizerGrant, submissionID int64, number int, comment string) (*domain.Version, error)
	RetryConversion(ctx context.Context, grant domain.OrganizerGrant, submissionID int64) (*domain.Submission, error)
}

// ConversionProcessor is the inbound contract for asynchronous conversion jobs.
type ConversionProcessor interface {
	ProcessConversion(ctx context.Context, submissionID int64) error
}

// ProceedingsService compiles and serves conference proceedings.
type ProceedingsService interface {
	Compile(ctx context.Context, grant domain.OrganizerGrant, conferenceID int64, regenerate bool) (*domain.CompileOutcome, error)
	Open(ctx context.Context, who domain.Identity, conferenceID int64) (io.ReadCloser, *domain.Proceedings, error)
}
