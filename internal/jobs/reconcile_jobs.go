package jobs

import (
	"context"

	"nauvus-backend/internal/logger"
)

// ReconcileStalledPayouts finishes distribution for invoices that were paid
// but whose load never reached completed.
func (jr *JobRunner) ReconcileStalledPayouts() {
	jr.runWithRecovery("ReconcileStalledPayouts", func(ctx context.Context) error {
		cutoff := jr.now().Add(-stalledPayoutGrace)
		resumed, err := jr.services.Reconciliation.ReconcileStalledPayouts(ctx, cutoff, reconcileBatchSize)
		if err != nil {
			return err
		}
		logger.Info("Resumed stalled payouts", "count", resumed, "paidBefore", cutoff)
		return nil
	})
}

// MarkLateLoans flags outstanding loans whose invoice is past its due date.
func (jr *JobRunner) MarkLateLoans() {
	jr.runWithRecovery("MarkLateLoans", func(ctx context.Context) error {
		marked, err := jr.services.Reconciliation.MarkLateLoans(ctx, jr.now())
		if err != nil {
			return err
		}
		logger.Info("Marked loans as late", "count", marked)
		return nil
	})
}

// SyncUnpaidInvoices refreshes the credit provider's copy of unpaid invoices.
func (jr *JobRunner) SyncUnpaidInvoices() {
	jr.runWithRecovery("SyncUnpaidInvoices", func(ctx context.Context) error {
		synced, err := jr.services.Reconciliation.SyncUnpaidInvoices(ctx, reconcileBatchSize)
		if err != nil {
			return err
		}
		logger.Info("Synced unpaid invoices", "count", synced)
		return nil
	})
}
