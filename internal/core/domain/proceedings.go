package domain

import "time"

// Conference is the slice of conference metadata the core depends on.
type Conference struct {
	ID                   int64     `json:"id" yaml:"id"`
	Slug                 string    `json:"slug" yaml:"slug"`
	Title                string    `json:"title" yaml:"title"`
	RegistrationDeadline time.Time `json:"registration_deadline" yaml:"registration_deadline"`
	NotificationDate     time.Time `json:"notification_date" yaml:"notification_date"`
}

func (c Conference) AcceptsSubmissions(now time.Time) bool {
	return c.RegistrationDeadline.IsZero() || now.Before(c.RegistrationDeadline)
}

func (c Conference) ResultsReleased(now time.Time) bool {
	return !now.Before(c.NotificationDate)
}

type Proceedings struct {
	ID            int64     `json:"id"`
	ConferenceID  int64     `json:"conference_id"`
	File          string    `json:"file"`
	SubmissionIDs []int64   `json:"submission_ids"`
	PageCount     int       `json:"page_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type CompileStatus string

const (
	CompileCreated          CompileStatus = "created"
	CompileNothingToCompile CompileStatus = "nothing_to_compile"
)

// CompileOutcome reports a compile run. Proceedings is nil unless Status is CompileCreated.
type CompileOutcome struct {
	Status      CompileStatus           `json:"status"`
	Proceedings *Proceedings            `json:"proceedings,omitempty"`
	Skipped     []MissingStoredFileError `json:"skipped,omitempty"`
}
