package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/config"
	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

var fixedTime = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

type intakeFake struct {
	err       error
	gotAuthor domain.Identity
	gotMeta   domain.SubmissionMetadata
	gotBody   []byte
	gotName   string
	gotNote   string
}

func (f *intakeFake) Submit(_ context.Context, author domain.Identity, conferenceID int64, meta domain.SubmissionMetadata, upload domain.Upload, comment string) (*domain.SubmissionDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(upload.Body)
	if err != nil {
		return nil, err
	}
	f.gotAuthor, f.gotMeta, f.gotBody, f.gotName, f.gotNote = author, meta, raw, upload.Filename, comment
	return &domain.SubmissionDetail{
		Submission: domain.Submission{
			ID:              11,
			AuthorID:        author.UserID,
			ConferenceID:    conferenceID,
			Title:           meta.Title,
			Status:          domain.StatusUnderReview,
			ConversionState: domain.ConversionNone,
			CreatedAt:       fixedTime,
			UpdatedAt:       fixedTime,
		},
		Versions: []domain.Version{{ID: 1, SubmissionID: 11, Number: 1, SourceFile: "submissions/11/1.docx", OriginalFilename: upload.Filename}},
	}, nil
}

func (f *intakeFake) Resubmit(_ context.Context, author domain.Identity, submissionID int64, upload domain.Upload, comment string) (*domain.Version, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := io.ReadAll(upload.Body)
	f.gotAuthor, f.gotBody, f.gotName, f.gotNote = author, raw, upload.Filename, comment
	return &domain.Version{ID: 2, SubmissionID: submissionID, Number: 2, SourceFile: "submissions/11/2.docx", OriginalFilename: upload.Filename, AuthorComment: comment}, nil
}

type readerFake struct {
	err       error
	gotStatus domain.SubmissionStatus
	gotWho    domain.Identity
}

func (f *readerFake) Get(_ context.Context, _ domain.Identity, submissionID int64) (*domain.SubmissionDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SubmissionDetail{Submission: domain.Submission{ID: submissionID, Status: domain.StatusRevision}}, nil
}

func (f *readerFake) OpenSource(_ context.Context, _ domain.Identity, submissionID int64, number int) (io.ReadCloser, *domain.Version, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return io.NopCloser(bytes.NewReader([]byte("docx-bytes"))), &domain.Version{
		SubmissionID:     submissionID,
		Number:           number,
		SourceFile:       "submissions/11/2.docx",
		OriginalFilename: "Paper v2.docx",
	}, nil
}

func (f *readerFake) OpenFinal(_ context.Context, _ domain.Identity, submissionID int64) (io.ReadCloser, *domain.Submission, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return io.NopCloser(bytes.NewReader([]byte("%PDF-1.4"))), &domain.Submission{ID: submissionID, FinalFile: "submissions/11/2.pdf"}, nil
}

func (f *readerFake) List(_ context.Context, _ domain.OrganizerGrant, _ int64, status domain.SubmissionStatus) (*domain.SubmissionListing, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotStatus = status
	return &domain.SubmissionListing{
		Submissions: []domain.Submission{{ID: 1, Status: domain.StatusAccepted}},
		Counts:      map[domain.SubmissionStatus]int{domain.StatusAccepted: 1},
		Total:       1,
	}, nil
}

func (f *readerFake) Export(_ context.Context, _ domain.OrganizerGrant, _ int64, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK-xlsx"))
	return err
}

func (f *readerFake) ListOwn(_ context.Context, who domain.Identity) ([]domain.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotWho = who
	return []domain.Submission{{ID: 12, AuthorID: who.UserID, Status: domain.StatusRevision}}, nil
}

func (f *readerFake) ListPublished(_ context.Context, who domain.Identity, _ int64) ([]domain.PublishedPaper, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotWho = who
	return []domain.PublishedPaper{{SubmissionID: 3, Title: "Aquifer recharge", Keywords: []string{"water"}}}, nil
}

type lifecycleFake struct {
	err        error
	gotStatus  domain.SubmissionStatus
	gotComment string
	gotGrant   domain.OrganizerGrant
}

func (f *lifecycleFake) Transition(_ context.Context, grant domain.OrganizerGrant, submissionID int64, status domain.SubmissionStatus, comment string) (*domain.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotGrant, f.gotStatus, f.gotComment = grant, status, comment
	return &domain.Submission{ID: submissionID, Status: status}, nil
}

func (f *lifecycleFake) CommentVersion(_ context.Context, grant domain.OrganizerGrant, submissionID int64, number int, comment string) (*domain.Version, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotGrant, f.gotComment = grant, comment
	return &domain.Version{SubmissionID: submissionID, Number: number, OrganizerComment: comment}, nil
}

func (f *lifecycleFake) RetryConversion(_ context.Context, grant domain.OrganizerGrant, submissionID int64) (*domain.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotGrant = grant
	return &domain.Submission{ID: submissionID, Status: domain.StatusReadyForPrint, ConversionState: domain.ConversionPending}, nil
}

type proceedingsFake struct {
	err           error
	nothing       bool
	gotRegenerate bool
	gotWho        domain.Identity
}

func (f *proceedingsFake) Compile(_ context.Context, _ domain.OrganizerGrant, conferenceID int64, regenerate bool) (*domain.CompileOutcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotRegenerate = regenerate
	if f.nothing {
		return &domain.CompileOutcome{Status: domain.CompileNothingToCompile}, nil
	}
	return &domain.CompileOutcome{
		Status: domain.CompileCreated,
		Proceedings: &domain.Proceedings{
			ID:            1,
			ConferenceID:  conferenceID,
			File:          "proceedings/ecology-2026_7.pdf",
			SubmissionIDs: []int64{3, 5},
			PageCount:     12,
		},
	}, nil
}

func (f *proceedingsFake) Open(_ context.Context, who domain.Identity, conferenceID int64) (io.ReadCloser, *domain.Proceedings, error) {
	f.gotWho = who
	if f.err != nil {
		return nil, nil, f.err
	}
	return io.NopCloser(bytes.NewReader([]byte("%PDF-1.7"))), &domain.Proceedings{ConferenceID: conferenceID, File: "proceedings/ecology-2026_7.pdf"}, nil
}

type routerFixture struct {
	intake      *intakeFake
	reader      *readerFake
	lifecycle   *lifecycleFake
	proceedings *proceedingsFake
	handler     http.Handler
}

func newRouterFixture(cfg config.Config) *routerFixture {
	f := &routerFixture{
		intake:      &intakeFake{},
		reader:      &readerFake{},
		lifecycle:   &lifecycleFake{},
		proceedings: &proceedingsFake{},
	}
	f.handler = NewRouter(cfg, Services{
		Intake:      f.intake,
		Reader:      f.reader,
		Lifecycle:   f.lifecycle,
		Proceedings: f.proceedings,
	}).Handler()
	return f
}

func asAuthor(r *http.Request, id string) *http.Request {
	r.Header.Set(userIDHeader, id)
	r.Header.Set(userRoleHeader, "author")
	return r
}

func asOrganizer(r *http.Request) *http.Request {
	r.Header.Set(userIDHeader, "900")
	r.Header.Set(userRoleHeader, "organizer")
	return r
}

var errBoom = errors.New("boom")
