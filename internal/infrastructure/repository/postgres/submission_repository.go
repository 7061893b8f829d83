package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, author_id, conference_id, title, authors, abstract, keywords, status,
	final_file, conversion_state, conversion_error, created_at, updated_at`

func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	err := r.db.QueryRowContext(ctx, `
INSERT INTO submissions (
	author_id, conference_id, title, authors, abstract, keywords, status, conversion_state, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id
`,
		sub.AuthorID, sub.ConferenceID, sub.Title, sub.Authors, sub.Abstract, sub.Keywords,
		string(sub.Status), string(sub.ConversionState), sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateSubmission, "insert submission", err)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get submission", fmt.Errorf("id=%d", id))
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return &sub, nil
}

func (r *SubmissionRepository) FindByAuthor(ctx context.Context, authorID, conferenceID int64) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+`
FROM submissions
WHERE author_id = $1 AND conference_id = $2
`, authorID, conferenceID)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "find submission", fmt.Errorf("author=%d conference=%d", authorID, conferenceID))
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return &sub, nil
}

// ListByAuthor returns an author's submissions across conferences, newest first.
func (r *SubmissionRepository) ListByAuthor(ctx context.Context, authorID int64) ([]domain.Submission, error) {
	return r.list(ctx, "list author submissions", `SELECT `+submissionColumns+`
FROM submissions
WHERE author_id = $1
ORDER BY created_at DESC, id DESC
`, authorID)
}

func (r *SubmissionRepository) ListByConference(ctx context.Context, conferenceID int64, status domain.SubmissionStatus) ([]domain.Submission, error) {
	query := `SELECT ` + submissionColumns + `
FROM submissions
WHERE conference_id = $1
`
	args := []any{conferenceID}
	if status != "" {
		query += "AND status = $2\n"
		args = append(args, string(status))
	}
	query += "ORDER BY id"
	return r.list(ctx, "list submissions", query, args...)
}

// ListPrintable returns converted print-ready submissions in ascending id order.
func (r *SubmissionRepository) ListPrintable(ctx context.Context, conferenceID int64) ([]domain.Submission, error) {
	return r.list(ctx, "list printable submissions", `SELECT `+submissionColumns+`
FROM submissions
WHERE conference_id = $1 AND status = $2 AND final_file <> ''
ORDER BY id
`, conferenceID, string(domain.StatusReadyForPrint))
}

func (r *SubmissionRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) CountByStatus(ctx context.Context, conferenceID int64) (map[domain.SubmissionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT status, COUNT(*)
FROM submissions
WHERE conference_id = $1
GROUP BY status
`, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.SubmissionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[domain.SubmissionStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}

// UpdateStatus sets status and conversion state. Resetting conversion to none or
// pending drops the previous final file and diagnostics.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id int64, status domain.SubmissionStatus, conversion domain.ConversionState) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET status = $2,
	conversion_state = $3,
	final_file = CASE WHEN $3 IN ('none', 'pending') THEN '' ELSE final_file END,
	conversion_error = CASE WHEN $3 IN ('none', 'pending') THEN '' ELSE conversion_error END,
	updated_at = $4
WHERE id = $1
`, id, string(status), string(conversion), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	return expectAffected(result, domain.ErrNotFound, "update submission status", id)
}

// MarkConverted attaches the final file only while the submission is still ready_for_print.
func (r *SubmissionRepository) MarkConverted(ctx context.Context, id int64, finalFile string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET final_file = $2, conversion_state = $3, conversion_error = '', updated_at = $4
WHERE id = $1 AND status = $5
`, id, finalFile, string(domain.ConversionDone), time.Now().UTC(), string(domain.StatusReadyForPrint))
	if err != nil {
		return fmt.Errorf("mark submission converted: %w", err)
	}
	return expectAffected(result, domain.ErrConflict, "mark submission converted", id)
}

func (r *SubmissionRepository) MarkConversionFailed(ctx context.Context, id int64, diagnostics string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET conversion_state = $2, conversion_error = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.ConversionFailed), diagnostics, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark conversion failed: %w", err)
	}
	return expectAffected(result, domain.ErrNotFound, "mark conversion failed", id)
}

func expectAffected(result sql.Result, kind error, op string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(kind, op, fmt.Errorf("id=%d", id))
	}
	return nil
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var sub domain.Submission
	var status, conversion string
	err := row.Scan(
		&sub.ID,
		&sub.AuthorID,
		&sub.ConferenceID,
		&sub.Title,
		&sub.Authors,
		&sub.Abstract,
		&sub.Keywords,
		&status,
		&sub.FinalFile,
		&conversion,
		&sub.ConversionError,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return domain.Submission{}, err
	}
	sub.Status = domain.SubmissionStatus(status)
	sub.ConversionState = domain.ConversionState(conversion)
	return sub, nil
}
