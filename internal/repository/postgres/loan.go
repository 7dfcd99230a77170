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

type loanRepository struct {
	db DBTX
}

func NewLoanRepository(db DBTX) repository.LoanRepository {
	return &loanRepository{db: db}
}

const loanColumns = `
	ln.id, ln.uid, ln.invoice_id, ln.principal_amount_in_cents, ln.fee_amount_in_cents, ln.status, ln.lender,
	ln.lender_loan_id, ln.terms, ln.terms_accepted, ln.terms_accepted_at, ln.created_at, ln.updated_at`

func scanLoan(row rowScanner) (*domain.Loan, error) {
	l := &domain.Loan{}
	err := row.Scan(
		&l.ID, &l.UID, &l.InvoiceID, &l.PrincipalAmountInCents, &l.FeeAmountInCents, &l.Status, &l.Lender,
		&l.LenderLoanID, &l.Terms, &l.TermsAccepted, &l.TermsAcceptedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	logger.EnterMethod("loanRepository.Create", "invoiceID", loan.InvoiceID)

	query := `
		INSERT INTO loans (
			uid, invoice_id, principal_amount_in_cents, fee_amount_in_cents, status, lender,
			lender_loan_id, terms, terms_accepted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		loan.UID, loan.InvoiceID, loan.PrincipalAmountInCents, loan.FeeAmountInCents, loan.Status, loan.Lender,
		loan.LenderLoanID, loan.Terms, loan.TermsAccepted, now, now,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		logger.ExitMethodWithError("loanRepository.Create", err, "invoiceID", loan.InvoiceID)
		return mapError(err, "create loan")
	}

	logger.ExitMethod("loanRepository.Create", "loanID", loan.ID)
	return nil
}

func (r *loanRepository) FindForInvoice(ctx context.Context, invoiceID int64) (*domain.Loan, error) {
	l, err := scanLoan(r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans ln WHERE ln.invoice_id = $1`, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("loan for invoice %d", invoiceID))
	}
	return l, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans SET
			principal_amount_in_cents = $1,
			fee_amount_in_cents = $2,
			status = $3,
			lender_loan_id = $4,
			terms = $5,
			terms_accepted = $6,
			terms_accepted_at = $7,
			updated_at = $8
		WHERE id = $9
	`
	_, err := r.db.ExecContext(ctx, query,
		loan.PrincipalAmountInCents, loan.FeeAmountInCents, loan.Status, loan.LenderLoanID, loan.Terms,
		loan.TermsAccepted, loan.TermsAcceptedAt, time.Now(), loan.ID,
	)
	return mapError(err, fmt.Sprintf("update loan %d", loan.ID))
}

func (r *loanRepository) ListOutstandingPastDue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans ln
		JOIN invoices i ON i.id = ln.invoice_id
		WHERE ln.status = $1 AND i.status <> $2 AND i.due_date < $3
		ORDER BY ln.id
	`
	rows, err := r.db.QueryContext(ctx, query, domain.LoanStatusOutstanding, domain.InvoiceStatusPaid, now)
	if err != nil {
		return nil, mapError(err, "list past due loans")
	}
	defer rows.Close()

	var out []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
