package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

type VersionRepository struct {
	db *sql.DB
}

func NewVersionRepository(db *sql.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

const versionColumns = `id, submission_id, number, source_file, original_filename, size_bytes,
	author_comment, organizer_comment, created_at`

// NextNumber must be called under the submission lease; the unique index on
// (submission_id, number) rejects any racing insert.
func (r *VersionRepository) NextNumber(ctx context.Context, submissionID int64) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(number), 0) + 1
FROM submission_versions
WHERE submission_id = $1
`, submissionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return next, nil
}

func (r *VersionRepository) Append(ctx context.Context, v *domain.Version) error {
	err := r.db.QueryRowContext(ctx, `
INSERT INTO submission_versions (
	submission_id, number, source_file, original_filename, size_bytes, author_comment, organizer_comment, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		v.SubmissionID, v.Number, v.SourceFile, v.OriginalFilename, v.SizeBytes,
		v.AuthorComment, v.OrganizerComment, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert version", fmt.Errorf("submission=%d number=%d: %w", v.SubmissionID, v.Number, err))
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// Latest picks the most recently created version; id breaks timestamp ties.
func (r *VersionRepository) Latest(ctx context.Context, submissionID int64) (*domain.Version, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+`
FROM submission_versions
WHERE submission_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`, submissionID)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "latest version", fmt.Errorf("submission=%d", submissionID))
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}
	return &v, nil
}

func (r *VersionRepository) GetByNumber(ctx context.Context, submissionID int64, number int) (*domain.Version, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+`
FROM submission_versions
WHERE submission_id = $1 AND number = $2
`, submissionID, number)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get version", fmt.Errorf("submission=%d number=%d", submissionID, number))
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}
	return &v, nil
}

func (r *VersionRepository) List(ctx context.Context, submissionID int64) ([]domain.Version, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+versionColumns+`
FROM submission_versions
WHERE submission_id = $1
ORDER BY number
`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (r *VersionRepository) CountBySubmission(ctx context.Context, conferenceID int64) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, COUNT(v.id)
FROM submissions s
LEFT JOIN submission_versions v ON v.submission_id = s.id
WHERE s.conference_id = $1
GROUP BY s.id
`, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan version count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version counts: %w", err)
	}
	return out, nil
}

func (r *VersionRepository) UpdateOrganizerComment(ctx context.Context, versionID int64, comment string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE submission_versions
SET organizer_comment = $2
WHERE id = $1
`, versionID, comment)
	if err != nil {
		return fmt.Errorf("update organizer comment: %w", err)
	}
	return expectAffected(result, domain.ErrNotFound, "update organizer comment", versionID)
}

func scanVersion(row rowScanner) (domain.Version, error) {
	var v domain.Version
	err := row.Scan(
		&v.ID,
		&v.SubmissionID,
		&v.Number,
		&v.SourceFile,
		&v.OriginalFilename,
		&v.SizeBytes,
		&v.AuthorComment,
		&v.OrganizerComment,
		&v.CreatedAt,
	)
	return v, err
}
