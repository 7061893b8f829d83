package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

type ProceedingsRepository struct {
	db *sql.DB
}

func NewProceedingsRepository(db *sql.DB) *ProceedingsRepository {
	return &ProceedingsRepository{db: db}
}

// Upsert keeps a single row per conference; a regenerated archive replaces the previous one.
func (r *ProceedingsRepository) Upsert(ctx context.Context, p *domain.Proceedings) error {
	idsJSON, err := json.Marshal(p.SubmissionIDs)
	if err != nil {
		return fmt.Errorf("marshal submission ids: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
INSERT INTO proceedings (conference_id, file, submission_ids, page_count, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (conference_id) DO UPDATE
SET file = EXCLUDED.file,
	submission_ids = EXCLUDED.submission_ids,
	page_count = EXCLUDED.page_count,
	created_at = EXCLUDED.created_at
RETURNING id
`, p.ConferenceID, p.File, idsJSON, p.PageCount, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert proceedings: %w", err)
	}
	return nil
}

func (r *ProceedingsRepository) GetByConference(ctx context.Context, conferenceID int64) (*domain.Proceedings, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, conference_id, file, submission_ids, page_count, created_at
FROM proceedings
WHERE conference_id = $1
`, conferenceID)

	var p domain.Proceedings
	var idsRaw []byte
	if err := row.Scan(&p.ID, &p.ConferenceID, &p.File, &idsRaw, &p.PageCount, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get proceedings", fmt.Errorf("conference=%d", conferenceID))
		}
		return nil, fmt.Errorf("scan proceedings: %w", err)
	}
	if err := json.Unmarshal(idsRaw, &p.SubmissionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal submission ids: %w", err)
	}
	return &p, nil
}
