package service

import (
	"context"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

const reconcileActor = "reconciler"

type reconciliationService struct {
	store   Store
	payouts PayoutDistributor
	credit  CreditProvider
}

func NewReconciliationService(store Store, payouts PayoutDistributor, creditProvider CreditProvider) ReconciliationService {
	return &reconciliationService{store: store, payouts: payouts, credit: creditProvider}
}

// ReconcileStalledPayouts re-runs distribution for invoices that were paid but
// whose load never completed, e.g. after a transfer failed mid-way. Ledger
// guards make each re-run move only the legs that are still missing.
func (s *reconciliationService) ReconcileStalledPayouts(ctx context.Context, paidBefore time.Time, limit int) (int, error) {
	repos := s.store.Repositories()
	invoices, err := repos.Invoices.ListPaidWithOpenLoad(ctx, paidBefore, limit)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for i := range invoices {
		invoice := &invoices[i]
		payment, err := repos.Payments.FindBySettlementAndType(ctx, invoice.LoadSettlementID, domain.PaymentTypeFromBroker)
		if err != nil {
			return resumed, err
		}
		if payment == nil {
			logger.Warn("Paid invoice has no broker payment row", "invoiceID", invoice.ID)
			continue
		}
		if err := s.payouts.ProcessBrokerPayment(ctx, invoice, payment); err != nil {
			logger.Error("Payout still stalled", "invoiceID", invoice.ID, "error", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// MarkLateLoans flags funded loans whose invoice is past due.
func (s *reconciliationService) MarkLateLoans(ctx context.Context, now time.Time) (int, error) {
	loans, err := s.store.Repositories().Loans.ListOutstandingPastDue(ctx, now)
	if err != nil {
		return 0, err
	}
	marked := 0
	for i := range loans {
		loan := loans[i]
		loan.Status = domain.LoanStatusLate
		err := s.store.WithTx(ctx, func(tx *repository.Repos) error {
			if err := tx.Loans.Update(ctx, &loan); err != nil {
				return err
			}
			return recordHistory(ctx, tx, domain.EntityLoan, loan.ID, string(loan.Status), reconcileActor)
		})
		if err != nil {
			return marked, fmt.Errorf("mark loan %s late: %w", loan.UID, err)
		}
		marked++
	}
	return marked, nil
}

// SyncUnpaidInvoices pushes unpaid invoices to the credit provider so its view
// of the carrier's receivables stays current.
func (s *reconciliationService) SyncUnpaidInvoices(ctx context.Context, limit int) (int, error) {
	invoices, err := s.store.Repositories().Invoices.ListUnpaid(ctx, limit)
	if err != nil {
		return 0, err
	}
	synced := 0
	for i := range invoices {
		if err := s.credit.SendInvoice(ctx, &invoices[i]); err != nil {
			logger.Warn("Failed to sync invoice", "invoiceID", invoices[i].ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}
