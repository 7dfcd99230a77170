package postgres

import (
	"context"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

type settlementRepository struct {
	db DBTX
}

func NewSettlementRepository(db DBTX) repository.SettlementRepository {
	return &settlementRepository{db: db}
}

const settlementColumns = `id, load_id, nauvus_fee_percent, nauvus_fees_in_cents, terms_accepted, terms_accepted_at, created_at, updated_at`

func (r *settlementRepository) Create(ctx context.Context, s *domain.LoadSettlement) error {
	logger.EnterMethod("settlementRepository.Create", "loadID", s.LoadID)

	query := `
		INSERT INTO load_settlements (load_id, nauvus_fee_percent, nauvus_fees_in_cents, terms_accepted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		s.LoadID, s.NauvusFeePercent, s.NauvusFeesInCents, s.TermsAccepted, now, now,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		logger.ExitMethodWithError("settlementRepository.Create", err, "loadID", s.LoadID)
		return mapError(err, fmt.Sprintf("create settlement for load %d", s.LoadID))
	}

	logger.ExitMethod("settlementRepository.Create", "settlementID", s.ID)
	return nil
}

func (r *settlementRepository) scanOne(ctx context.Context, where string, arg any) (*domain.LoadSettlement, error) {
	s := &domain.LoadSettlement{}
	err := r.db.QueryRowContext(ctx, `SELECT `+settlementColumns+` FROM load_settlements WHERE `+where, arg).Scan(
		&s.ID, &s.LoadID, &s.NauvusFeePercent, &s.NauvusFeesInCents, &s.TermsAccepted, &s.TermsAcceptedAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *settlementRepository) GetByID(ctx context.Context, id int64) (*domain.LoadSettlement, error) {
	s, err := r.scanOne(ctx, "id = $1", id)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("settlement %d", id))
	}
	return s, nil
}

func (r *settlementRepository) GetByLoadID(ctx context.Context, loadID int64) (*domain.LoadSettlement, error) {
	s, err := r.scanOne(ctx, "load_id = $1", loadID)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("settlement for load %d", loadID))
	}
	return s, nil
}

func (r *settlementRepository) UpdateTerms(ctx context.Context, s *domain.LoadSettlement) error {
	query := `UPDATE load_settlements SET terms_accepted = $1, terms_accepted_at = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, s.TermsAccepted, s.TermsAcceptedAt, time.Now(), s.ID)
	return mapError(err, fmt.Sprintf("update settlement %d", s.ID))
}
