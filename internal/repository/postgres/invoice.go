package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

type invoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) repository.InvoiceRepository {
	return &invoiceRepository{db: db}
}

const invoiceColumns = `
	i.id, i.uid, i.load_settlement_id, i.broker_id, i.carrier_id, i.amount_due_in_cents, i.amount_paid_in_cents,
	i.status, i.description, i.payment_link_url, i.payment_link_id, i.document_key, i.due_date, i.paid_date,
	i.created_at, i.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.UID, &inv.LoadSettlementID, &inv.BrokerID, &inv.CarrierID, &inv.AmountDueInCents, &inv.AmountPaidInCents,
		&inv.Status, &inv.Description, &inv.PaymentLinkURL, &inv.PaymentLinkID, &inv.DocumentKey, &inv.DueDate, &inv.PaidDate,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func collectInvoices(rows *sql.Rows) ([]domain.Invoice, error) {
	defer rows.Close()
	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	logger.EnterMethod("invoiceRepository.Create", "settlementID", inv.LoadSettlementID, "amountDue", inv.AmountDueInCents)

	query := `
		INSERT INTO invoices (
			uid, load_settlement_id, broker_id, carrier_id, amount_due_in_cents, amount_paid_in_cents,
			status, description, payment_link_url, payment_link_id, due_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		inv.UID, inv.LoadSettlementID, inv.BrokerID, inv.CarrierID, inv.AmountDueInCents, inv.AmountPaidInCents,
		inv.Status, inv.Description, inv.PaymentLinkURL, inv.PaymentLinkID, inv.DueDate, now, now,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		logger.ExitMethodWithError("invoiceRepository.Create", err, "settlementID", inv.LoadSettlementID)
		return mapError(err, "create invoice")
	}

	logger.ExitMethod("invoiceRepository.Create", "invoiceID", inv.ID)
	return nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("invoice %d", id))
	}
	return inv, nil
}

func (r *invoiceRepository) GetBySettlementID(ctx context.Context, settlementID int64) (*domain.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.load_settlement_id = $1`, settlementID))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("invoice for settlement %d", settlementID))
	}
	return inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *domain.Invoice) error {
	logger.EnterMethod("invoiceRepository.Update", "invoiceID", inv.ID, "status", inv.Status)

	query := `
		UPDATE invoices SET
			amount_paid_in_cents = $1,
			status = $2,
			paid_date = $3,
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, inv.AmountPaidInCents, inv.Status, inv.PaidDate, time.Now(), inv.ID)
	if err != nil {
		logger.ExitMethodWithError("invoiceRepository.Update", err, "invoiceID", inv.ID)
		return mapError(err, fmt.Sprintf("update invoice %d", inv.ID))
	}

	logger.ExitMethod("invoiceRepository.Update", "invoiceID", inv.ID)
	return nil
}

func (r *invoiceRepository) SetDocumentKey(ctx context.Context, id int64, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE invoices SET document_key = $1, updated_at = $2 WHERE id = $3`, key, time.Now(), id)
	return mapError(err, fmt.Sprintf("set document key on invoice %d", id))
}

func (r *invoiceRepository) ListByCarrier(ctx context.Context, carrierID int64) ([]domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.carrier_id = $1 ORDER BY i.created_at DESC`, carrierID)
	if err != nil {
		return nil, mapError(err, "list invoices by carrier")
	}
	return collectInvoices(rows)
}

func (r *invoiceRepository) ListUnpaidExposure(ctx context.Context, carrierID int64) ([]domain.UnpaidExposure, error) {
	logger.EnterMethod("invoiceRepository.ListUnpaidExposure", "carrierID", carrierID)

	// Loans still in offered were never funded and add neither principal nor
	// fee to the balance (DESIGN.md open question decision 4).
	query := `
		SELECT i.id, i.amount_due_in_cents, s.nauvus_fees_in_cents,
		       COALESCE(l.principal_amount_in_cents, 0), COALESCE(l.fee_amount_in_cents, 0)
		FROM invoices i
		JOIN load_settlements s ON s.id = i.load_settlement_id
		LEFT JOIN loans l ON l.invoice_id = i.id AND l.status <> $3
		WHERE i.carrier_id = $1 AND i.status <> $2
		ORDER BY i.id
	`
	rows, err := r.db.QueryContext(ctx, query, carrierID, domain.InvoiceStatusPaid, domain.LoanStatusOffered)
	if err != nil {
		logger.ExitMethodWithError("invoiceRepository.ListUnpaidExposure", err, "carrierID", carrierID)
		return nil, mapError(err, "list unpaid exposure")
	}
	defer rows.Close()

	var out []domain.UnpaidExposure
	for rows.Next() {
		var e domain.UnpaidExposure
		if err := rows.Scan(&e.InvoiceID, &e.AmountDueInCents, &e.FeeInCents, &e.LoanPrincipalCents, &e.LoanFeeCents); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	logger.ExitMethod("invoiceRepository.ListUnpaidExposure", "carrierID", carrierID, "count", len(out))
	return out, rows.Err()
}

func (r *invoiceRepository) ListUnpaid(ctx context.Context, limit int) ([]domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.status <> $1 ORDER BY i.id LIMIT $2`,
		domain.InvoiceStatusPaid, limit)
	if err != nil {
		return nil, mapError(err, "list unpaid invoices")
	}
	return collectInvoices(rows)
}

func (r *invoiceRepository) ListPaidWithOpenLoad(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices i
		JOIN load_settlements s ON s.id = i.load_settlement_id
		JOIN loads ld ON ld.id = s.load_id
		WHERE i.status = $1 AND i.paid_date < $2 AND ld.current_status <> $3
		ORDER BY i.paid_date
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, domain.InvoiceStatusPaid, paidBefore, domain.LoadStatusCompleted, limit)
	if err != nil {
		return nil, mapError(err, "list paid invoices with open load")
	}
	return collectInvoices(rows)
}
