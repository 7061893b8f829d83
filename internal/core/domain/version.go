package domain

import (
	"path"
	"strings"
	"time"
)

// Version is one uploaded source revision of a submission.
type Version struct {
	ID               int64     `json:"id"`
	SubmissionID     int64     `json:"submission_id"`
	Number           int       `json:"number"`
	SourceFile       string    `json:"source_file"`
	OriginalFilename string    `json:"original_filename"`
	SizeBytes        int64     `json:"size_bytes"`
	AuthorComment    string    `json:"author_comment,omitempty"`
	OrganizerComment string    `json:"organizer_comment,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Extension returns the lower-cased extension of the stored source file without the dot.
func (v Version) Extension() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(v.SourceFile)), ".")
}
