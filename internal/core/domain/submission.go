package domain

import (
	"io"
	"strings"
	"time"
)

type SubmissionStatus string

const (
	StatusUnderReview   SubmissionStatus = "under_review"
	StatusRevision      SubmissionStatus = "revision"
	StatusAccepted      SubmissionStatus = "accepted"
	StatusRejected      SubmissionStatus = "rejected"
	StatusReadyForPrint SubmissionStatus = "ready_for_print"
)

// Statuses lists every submission status in display order.
var Statuses = []SubmissionStatus{
	StatusUnderReview,
	StatusRevision,
	StatusAccepted,
	StatusRejected,
	StatusReadyForPrint,
}

func (s SubmissionStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func ParseSubmissionStatus(raw string) (SubmissionStatus, bool) {
	status := SubmissionStatus(strings.TrimSpace(raw))
	return status, status.Valid()
}

// ConversionState tracks the fixed-layout rendering of a print-ready submission.
type ConversionState string

const (
	ConversionNone    ConversionState = "none"
	ConversionPending ConversionState = "pending"
	ConversionDone    ConversionState = "done"
	ConversionFailed  ConversionState = "failed"
)

type Submission struct {
	ID              int64            `json:"id"`
	AuthorID        int64            `json:"author_id"`
	ConferenceID    int64            `json:"conference_id"`
	Title           string           `json:"title"`
	Authors         string           `json:"authors"`
	Abstract        string           `json:"abstract"`
	Keywords        string           `json:"keywords"`
	Status          SubmissionStatus `json:"status"`
	FinalFile       string           `json:"final_file,omitempty"`
	ConversionState ConversionState  `json:"conversion_state"`
	ConversionError string           `json:"conversion_error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// KeywordList splits the free-text keywords on commas and whitespace.
func (s Submission) KeywordList() []string {
	fields := strings.FieldsFunc(s.Keywords, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Printable reports whether the submission is eligible for the proceedings.
func (s Submission) Printable() bool {
	return s.Status == StatusReadyForPrint && s.FinalFile != ""
}

// PublishedPaper is the public entry of a print-ready paper in a conference programme.
type PublishedPaper struct {
	SubmissionID int64    `json:"submission_id"`
	Title        string   `json:"title"`
	Authors      string   `json:"authors"`
	Abstract     string   `json:"abstract"`
	Keywords     []string `json:"keywords"`
}

func (s Submission) Published() PublishedPaper {
	return PublishedPaper{
		SubmissionID: s.ID,
		Title:        s.Title,
		Authors:      s.Authors,
		Abstract:     s.Abstract,
		Keywords:     s.KeywordList(),
	}
}

// SubmissionMetadata is the author-supplied part of a submission.
type SubmissionMetadata struct {
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Abstract string `json:"abstract"`
	Keywords string `json:"keywords"`
}

// Upload is a validated byte stream handed over by the transport layer.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type SubmissionDetail struct {
	Submission
	Versions []Version `json:"versions"`
}

type SubmissionListing struct {
	Submissions []Submission             `json:"submissions"`
	Counts      map[SubmissionStatus]int `json:"counts"`
	Total       int                      `json:"total"`
}
