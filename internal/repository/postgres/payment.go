package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	logger.EnterMethod("paymentRepository.Create", "settlementID", p.LoadSettlementID, "type", p.Type, "amount", p.AmountInCents)

	query := `
		INSERT INTO payments (load_settlement_id, amount_in_cents, type, external_ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.LoadSettlementID, p.AmountInCents, p.Type, p.ExternalRefID, time.Now(),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.Create", err, "settlementID", p.LoadSettlementID, "type", p.Type)
		return mapError(err, fmt.Sprintf("create %s payment", p.Type))
	}

	logger.ExitMethod("paymentRepository.Create", "paymentID", p.ID)
	return nil
}

func (r *paymentRepository) FindBySettlementAndType(ctx context.Context, settlementID int64, t domain.PaymentType) (*domain.Payment, error) {
	query := `
		SELECT id, load_settlement_id, amount_in_cents, type, external_ref_id, created_at
		FROM payments WHERE load_settlement_id = $1 AND type = $2
		ORDER BY id LIMIT 1
	`
	p := &domain.Payment{}
	err := r.db.QueryRowContext(ctx, query, settlementID, t).Scan(
		&p.ID, &p.LoadSettlementID, &p.AmountInCents, &p.Type, &p.ExternalRefID, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("find %s payment", t))
	}
	return p, nil
}

func (r *paymentRepository) list(ctx context.Context, query string, arg int64) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapError(err, "list payments")
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.LoadSettlementID, &p.AmountInCents, &p.Type, &p.ExternalRefID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *paymentRepository) ListBySettlement(ctx context.Context, settlementID int64) ([]domain.Payment, error) {
	return r.list(ctx, `
		SELECT id, load_settlement_id, amount_in_cents, type, external_ref_id, created_at
		FROM payments WHERE load_settlement_id = $1 ORDER BY id`, settlementID)
}

func (r *paymentRepository) ListByCarrier(ctx context.Context, carrierID int64) ([]domain.Payment, error) {
	return r.list(ctx, `
		SELECT p.id, p.load_settlement_id, p.amount_in_cents, p.type, p.external_ref_id, p.created_at
		FROM payments p
		JOIN invoices i ON i.load_settlement_id = p.load_settlement_id
		WHERE i.carrier_id = $1
		ORDER BY p.id`, carrierID)
}
