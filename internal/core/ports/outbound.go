package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

// SubmissionRepository persists submission rows.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.Submission, error)
	FindByAuthor(ctx context.Context, authorID, conferenceID int64) (*domain.Submission, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]domain.Submission, error)
	ListByConference(ctx context.Context, conferenceID int64, status domain.SubmissionStatus) ([]domain.Submission, error)
	CountByStatus(ctx context.Context, conferenceID int64) (map[domain.SubmissionStatus]int, error)
	ListPrintable(ctx context.Context, conferenceID int64) ([]domain.Submission, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SubmissionStatus, conversion domain.ConversionState) error
	MarkConverted(ctx context.Context, id int64, finalFile string) error
	MarkConversionFailed(ctx context.Context, id int64, diagnostics string) error
}

// VersionRepository is the append-only record of uploaded source revisions.
type VersionRepository interface {
	NextNumber(ctx context.Context, submissionID int64) (int, error)
	Append(ctx context.Context, v *domain.Version) error
	Latest(ctx context.Context, submissionID int64) (*domain.Version, error)
	GetByNumber(ctx context.Context, submissionID int64, number int) (*domain.Version, error)
	List(ctx context.Context, submissionID int64) ([]domain.Version, error)
	CountBySubmission(ctx context.Context, conferenceID int64) (map[int64]int, error)
	UpdateOrganizerComment(ctx context.Context, versionID int64, comment string) error
}

// ProceedingsRepository keeps one proceedings record per conference.
type ProceedingsRepository interface {
	Upsert(ctx context.Context, p *domain.Proceedings) error
	GetByConference(ctx context.Context, conferenceID int64) (*domain.Proceedings, error)
}

// ConferenceDirectory resolves conference metadata owned by another system.
type ConferenceDirectory interface {
	Get(ctx context.Context, id int64) (*domain.Conference, error)
}

// ObjectStorage stores source, converted and compiled files.
// Save publishes atomically: readers never observe a partial object.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// DocumentConverter renders a word-processor file into a PDF next to it.
type DocumentConverter interface {
	Convert(ctx context.Context, inputPath string) (string, error)
}

// PDFMerger concatenates PDF documents in order.
type PDFMerger interface {
	Merge(ctx context.Context, docs []io.ReadSeeker, w io.Writer) error
}

// PDFInspector reads structural facts from a rendered PDF.
type PDFInspector interface {
	PageCount(r io.ReaderAt, size int64) (int, error)
}

// ConversionQueue publishes/consumes conversion jobs.
type ConversionQueue interface {
	PublishConversionRequested(ctx context.Context, submissionID int64) error
	SubscribeConversionRequested(ctx context.Context, handler func(context.Context, int64) error) error
}

// Locker grants exclusive leases keyed by name across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ReportWriter renders the organizer listing as a spreadsheet.
type ReportWriter interface {
	WriteSubmissions(w io.Writer, conference *domain.Conference, rows []domain.Submission, versionCounts map[int64]int) error
}

// Clock is injected so deadline checks are testable.
type Clock func() time.Time
