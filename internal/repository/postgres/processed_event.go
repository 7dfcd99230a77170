package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

type processedEventRepository struct {
	db DBTX
}

func NewProcessedEventRepository(db DBTX) repository.ProcessedEventRepository {
	return &processedEventRepository{db: db}
}

// Claim relies on the primary key: exactly one concurrent caller gets a row back.
// A processing claim older than staleBefore belongs to a worker that died
// mid-flight and is taken over in the same statement.
func (r *processedEventRepository) Claim(ctx context.Context, eventID, eventType string, staleBefore time.Time) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, event_type, status, claimed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE SET claimed_at = EXCLUDED.claimed_at
			WHERE processed_events.status = $3 AND processed_events.claimed_at < $5
		RETURNING event_id
	`
	logger.DatabaseCall("INSERT", "processed_events claim", "eventID", eventID)
	var claimed string
	err := r.db.QueryRowContext(ctx, query, eventID, eventType, domain.ProcessedEventProcessing, time.Now(), staleBefore).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("INSERT", 0, nil)
		return false, nil
	}
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		return false, mapError(err, "claim event")
	}
	logger.DatabaseResult("INSERT", 1, nil)
	return true, nil
}

func (r *processedEventRepository) MarkDone(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE processed_events SET status = $1, processed_at = $2 WHERE event_id = $3`,
		domain.ProcessedEventDone, time.Now(), eventID)
	return mapError(err, "mark event done")
}

func (r *processedEventRepository) Release(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM processed_events WHERE event_id = $1 AND status = $2`,
		eventID, domain.ProcessedEventProcessing)
	return mapError(err, "release event")
}
