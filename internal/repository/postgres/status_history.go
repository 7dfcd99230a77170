package postgres

import (
	"context"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/repository"
)

type statusHistoryRepository struct {
	db DBTX
}

func NewStatusHistoryRepository(db DBTX) repository.StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

func (r *statusHistoryRepository) Record(ctx context.Context, h *domain.StatusHistory) error {
	query := `
		INSERT INTO status_history (entity_type, entity_id, status, actor, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, h.EntityType, h.EntityID, h.Status, h.Actor, time.Now()).Scan(&h.ID, &h.CreatedAt)
	return mapError(err, "record status history")
}

func (r *statusHistoryRepository) ListByEntity(ctx context.Context, entity domain.EntityType, entityID int64) ([]domain.StatusHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, status, actor, created_at
		FROM status_history WHERE entity_type = $1 AND entity_id = $2 ORDER BY id`, entity, entityID)
	if err != nil {
		return nil, mapError(err, "list status history")
	}
	defer rows.Close()

	var out []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.EntityType, &h.EntityID, &h.Status, &h.Actor, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
