package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
)

type SubmissionQueryUseCase struct {
	subs        ports.SubmissionRepository
	versions    ports.VersionRepository
	storage     ports.ObjectStorage
	conferences ports.ConferenceDirectory
	report      ports.ReportWriter
	now         ports.Clock
}

func NewSubmissionQueryUseCase(
	subs ports.SubmissionRepository,
	versions ports.VersionRepository,
	storage ports.ObjectStorage,
	conferences ports.ConferenceDirectory,
	report ports.ReportWriter,
) *SubmissionQueryUseCase {
	return &SubmissionQueryUseCase{
		subs:        subs,
		versions:    versions,
		storage:     storage,
		conferences: conferences,
		report:      report,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SubmissionQueryUseCase) Get(ctx context.Context, who domain.Identity, submissionID int64) (*domain.SubmissionDetail, error) {
	sub, err := uc.readable(ctx, who, submissionID)
	if err != nil {
		return nil, err
	}
	versions, err := uc.versions.List(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return &domain.SubmissionDetail{Submission: *sub, Versions: versions}, nil
}

// OpenSource streams a version's stored file exactly as it was uploaded.
func (uc *SubmissionQueryUseCase) OpenSource(ctx context.Context, who domain.Identity, submissionID int64, number int) (io.ReadCloser, *domain.Version, error) {
	if _, err := uc.readable(ctx, who, submissionID); err != nil {
		return nil, nil, err
	}
	version, err := uc.versions.GetByNumber(ctx, submissionID, number)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch version: %w", err)
	}
	rc, err := uc.storage.Open(ctx, version.SourceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open source file: %w", err)
	}
	return rc, version, nil
}

func (uc *SubmissionQueryUseCase) OpenFinal(ctx context.Context, who domain.Identity, submissionID int64) (io.ReadCloser, *domain.Submission, error) {
	sub, err := uc.readable(ctx, who, submissionID)
	if err != nil {
		return nil, nil, err
	}
	if sub.FinalFile == "" {
		return nil, nil, domain.WrapError(domain.ErrNotFound, "open final file", fmt.Errorf("submission %d has no final file (conversion %s)", submissionID, sub.ConversionState))
	}
	rc, err := uc.storage.Open(ctx, sub.FinalFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open final file: %w", err)
	}
	return rc, sub, nil
}

// List returns a conference's submissions, optionally filtered, with per-status counts.
func (uc *SubmissionQueryUseCase) List(ctx context.Context, grant domain.OrganizerGrant, conferenceID int64, status domain.SubmissionStatus) (*domain.SubmissionListing, error) {
	if err := domain.RequireGrant(grant, "list submissions"); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list submissions", fmt.Errorf("unknown status %q", status))
	}
	if _, err := uc.conferences.Get(ctx, conferenceID); err != nil {
		return nil, fmt.Errorf("resolve conference: %w", err)
	}

	subs, err := uc.subs.ListByConference(ctx, conferenceID, status)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	counts, err := uc.subs.CountByStatus(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}

	listing := &domain.SubmissionListing{
		Submissions: subs,
		Counts:      make(map[domain.SubmissionStatus]int, len(domain.Statuses)),
	}
	for _, s := range domain.Statuses {
		listing.Counts[s] = counts[s]
		listing.Total += counts[s]
	}
	return listing, nil
}

// Export writes every submission of the conference as a spreadsheet.
func (uc *SubmissionQueryUseCase) Export(ctx context.Context, grant domain.OrganizerGrant, conferenceID int64, w io.Writer) error {
	if err := domain.RequireGrant(grant, "export submissions"); err != nil {
		return err
	}
	conference, err := uc.conferences.Get(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("resolve conference: %w", err)
	}
	subs, err := uc.subs.ListByConference(ctx, conferenceID, "")
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	counts, err := uc.versions.CountBySubmission(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("count versions: %w", err)
	}
	if err := uc.report.WriteSubmissions(w, conference, subs, counts); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ListOwn returns the caller's own submissions across conferences.
func (uc *SubmissionQueryUseCase) ListOwn(ctx context.Context, who domain.Identity) ([]domain.Submission, error) {
	if who.UserID == 0 {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list own submissions", fmt.Errorf("anonymous identity"))
	}
	subs, err := uc.subs.ListByAuthor(ctx, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("list own submissions: %w", err)
	}
	return subs, nil
}

// ListPublished is the public programme: print-ready papers ordered by title,
// visible to everyone but organizers only once results are released.
func (uc *SubmissionQueryUseCase) ListPublished(ctx context.Context, who domain.Identity, conferenceID int64) ([]domain.PublishedPaper, error) {
	conference, err := uc.conferences.Get(ctx, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("resolve conference: %w", err)
	}
	if who.Role != domain.RoleOrganizer && !conference.ResultsReleased(uc.now()) {
		return nil, domain.WrapError(domain.ErrForbidden, "list published papers", fmt.Errorf("results for %s are released on %s", conference.Slug, conference.NotificationDate.Format(time.DateOnly)))
	}

	subs, err := uc.subs.ListByConference(ctx, conferenceID, domain.StatusReadyForPrint)
	if err != nil {
		return nil, fmt.Errorf("list print-ready submissions: %w", err)
	}
	sort.SliceStable(subs, func(i, j int) bool {
		a, b := strings.ToLower(subs[i].Title), strings.ToLower(subs[j].Title)
		if a != b {
			return a < b
		}
		return subs[i].ID < subs[j].ID
	})

	papers := make([]domain.PublishedPaper, 0, len(subs))
	for _, sub := range subs {
		papers = append(papers, sub.Published())
	}
	return papers, nil
}

func (uc *SubmissionQueryUseCase) readable(ctx context.Context, who domain.Identity, submissionID int64) (*domain.Submission, error) {
	if who.UserID == 0 {
		return nil, domain.WrapError(domain.ErrUnauthorized, "read submission", fmt.Errorf("anonymous identity"))
	}
	sub, err := uc.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}
	if !who.CanRead(sub) {
		return nil, domain.WrapError(domain.ErrForbidden, "read submission", fmt.Errorf("submission %d", submissionID))
	}
	return sub, nil
}
