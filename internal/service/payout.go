package service

import (
	"context"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository"
)

const payoutActor = "payout"

type payoutDistributor struct {
	store      Store
	gateway    gateway.Gateway
	credit     CreditProvider
	loads      LoadStateMachine
	alerter    Alerter
	notifier   Notifier
	feeAccount string
}

func NewPayoutDistributor(
	store Store,
	gw gateway.Gateway,
	creditProvider CreditProvider,
	loads LoadStateMachine,
	alerter Alerter,
	notifier Notifier,
	feeAccount string,
) PayoutDistributor {
	return &payoutDistributor{
		store:      store,
		gateway:    gw,
		credit:     creditProvider,
		loads:      loads,
		alerter:    alerter,
		notifier:   notifier,
		feeAccount: feeAccount,
	}
}

// ProcessBrokerPayment splits a broker payment between the lender, the platform
// fee account and the carrier, then completes the load. Every outgoing leg is
// skipped when its ledger row already exists, so the call is safe to repeat.
// A payment short of the amount due moves no money and leaves the invoice
// unpaid until an operator reconciles it.
func (d *payoutDistributor) ProcessBrokerPayment(ctx context.Context, invoice *domain.Invoice, brokerPayment *domain.Payment) (err error) {
	start := time.Now()
	held := false
	defer func() {
		result := metrics.ResultOf(err)
		if held {
			result = metrics.ResultSkipped
		}
		metrics.ObservePayout(result, time.Since(start))
	}()

	repos := d.store.Repositories()
	settlement, err := repos.Settlements.GetByID(ctx, invoice.LoadSettlementID)
	if err != nil {
		return err
	}
	log := logger.WithLoad(settlement.LoadID).With("invoice_id", invoice.ID)

	if shortfall := invoice.AmountDueInCents - brokerPayment.AmountInCents; shortfall > 0 {
		held = true
		return d.holdShortPayment(ctx, invoice, brokerPayment, settlement.LoadID, shortfall)
	}

	if err := d.markPaid(ctx, invoice, brokerPayment); err != nil {
		return err
	}

	if err := d.credit.SendInvoice(ctx, invoice); err != nil {
		log.Warn("Failed to update invoice with credit provider", "error", err)
	}

	carrierPayout, err := d.distribute(ctx, repos, invoice, settlement)
	if err != nil {
		d.alerter.Alert(ctx, AlertPayoutFailed, err, "load_id", settlement.LoadID, "invoice_id", invoice.ID)
		return err
	}

	load, err := repos.Loads.GetByID(ctx, settlement.LoadID)
	if err != nil {
		return err
	}
	if load.CurrentStatus != domain.LoadStatusCompleted {
		err = d.store.WithTx(ctx, func(tx *repository.Repos) error {
			return d.loads.Transition(ctx, tx, load, domain.LoadStatusCompleted, payoutActor)
		})
		if err != nil {
			d.alerter.Alert(ctx, AlertPayoutFailed, err, "load_id", settlement.LoadID, "invoice_id", invoice.ID)
			return err
		}
	}

	d.notify(ctx, invoice, settlement.LoadID, carrierPayout.AmountInCents)
	log.Info("Broker payment distributed", "carrierAmount", carrierPayout.AmountInCents, "duration", time.Since(start))
	return nil
}

// holdShortPayment records what the broker actually paid and raises an alert.
// No lender, fee or carrier leg runs and the load keeps its status.
func (d *payoutDistributor) holdShortPayment(ctx context.Context, invoice *domain.Invoice, brokerPayment *domain.Payment, loadID, shortfall int64) error {
	d.alerter.Alert(ctx, AlertInconsistentState,
		domain.InconsistentState("invoice %d underpaid: received %d, due %d", invoice.ID, brokerPayment.AmountInCents, invoice.AmountDueInCents),
		"load_id", loadID, "invoice_id", invoice.ID, "payment_ref", brokerPayment.ExternalRefID, "shortfall", shortfall)
	logger.WithLoad(loadID).Warn("Broker payment short of amount due, payouts held",
		"invoice_id", invoice.ID, "received", brokerPayment.AmountInCents, "due", invoice.AmountDueInCents)

	if invoice.AmountPaidInCents == brokerPayment.AmountInCents {
		return nil
	}
	partial := *invoice
	partial.AmountPaidInCents = brokerPayment.AmountInCents
	if err := d.store.Repositories().Invoices.Update(ctx, &partial); err != nil {
		return err
	}
	*invoice = partial
	return nil
}

func (d *payoutDistributor) markPaid(ctx context.Context, invoice *domain.Invoice, brokerPayment *domain.Payment) error {
	if invoice.IsPaid() {
		return nil
	}
	paid := *invoice
	paid.Status = domain.InvoiceStatusPaid
	paid.AmountPaidInCents = min(brokerPayment.AmountInCents, invoice.AmountDueInCents)
	now := time.Now()
	paid.PaidDate = &now

	err := d.store.WithTx(ctx, func(tx *repository.Repos) error {
		if err := tx.Invoices.Update(ctx, &paid); err != nil {
			return err
		}
		return recordHistory(ctx, tx, domain.EntityInvoice, paid.ID, string(paid.Status), payoutActor)
	})
	if err != nil {
		return err
	}
	*invoice = paid
	return nil
}

// distribute runs the lender, fee and carrier legs and returns the carrier row.
func (d *payoutDistributor) distribute(ctx context.Context, repos *repository.Repos, invoice *domain.Invoice, settlement *domain.LoadSettlement) (*domain.Payment, error) {
	var repaid int64
	loan, err := repos.Loans.FindForInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if loan != nil && loan.Status != domain.LoanStatusOffered {
		repayment, err := d.credit.RepayLoan(ctx, loan)
		if err != nil {
			return nil, fmt.Errorf("repay loan %s: %w", loan.UID, err)
		}
		repaid = repayment.AmountInCents
	}

	fee, err := d.transferOnce(ctx, repos, settlement, domain.PaymentTypeFee, settlement.NauvusFeesInCents,
		d.feeAccount, fmt.Sprintf("Nauvus fee for load %d", settlement.LoadID))
	if err != nil {
		return nil, err
	}
	var feeAmount int64
	if fee != nil {
		feeAmount = fee.AmountInCents
	}

	balance := invoice.AmountDueInCents - repaid - feeAmount
	if balance < 0 {
		err := domain.InconsistentState("carrier balance for invoice %d is negative: due %d, repaid %d, fee %d",
			invoice.ID, invoice.AmountDueInCents, repaid, feeAmount)
		return nil, err
	}

	carrier, err := repos.Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		return nil, err
	}
	payout, err := d.transferOnce(ctx, repos, settlement, domain.PaymentTypeToCarrier, balance,
		carrier.PayoutAccountID, fmt.Sprintf("Remaining payout for load %d", settlement.LoadID))
	if err != nil {
		return nil, err
	}
	if payout == nil {
		// Nothing left for the carrier. The zero row still marks the leg as done
		// and satisfies the completion prerequisite.
		payout, err = createOrReload(ctx, repos, &domain.Payment{
			LoadSettlementID: settlement.ID,
			AmountInCents:    0,
			Type:             domain.PaymentTypeToCarrier,
		})
		if err != nil {
			return nil, err
		}
	}
	return payout, nil
}

// transferOnce moves amount to destination unless the settlement already has a
// row of type t. It returns the existing or new row, or nil when amount is zero.
func (d *payoutDistributor) transferOnce(
	ctx context.Context,
	repos *repository.Repos,
	settlement *domain.LoadSettlement,
	t domain.PaymentType,
	amount int64,
	destination, description string,
) (*domain.Payment, error) {
	existing, err := repos.Payments.FindBySettlementAndType(ctx, settlement.ID, t)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Debug("Transfer already recorded", "settlementID", settlement.ID, "type", t, "ref", existing.ExternalRefID)
		return existing, nil
	}
	if amount == 0 {
		metrics.ObserveTransfer(string(t), metrics.ResultSkipped, 0)
		return nil, nil
	}

	logger.ExternalServiceCall("stripe", "CreateTransfer", "settlementID", settlement.ID, "type", t, "amount", amount)
	transfer, err := d.gateway.CreateTransfer(ctx, gateway.TransferRequest{
		AmountInCents:  amount,
		Destination:    destination,
		Description:    description,
		IdempotencyKey: transferKey(settlement.ID, t),
	})
	logger.ExternalServiceResult("stripe", "CreateTransfer", err, "settlementID", settlement.ID, "type", t)
	metrics.ObserveTransfer(string(t), metrics.ResultOf(err), amount)
	if err != nil {
		return nil, fmt.Errorf("transfer %s for settlement %d: %w", t, settlement.ID, err)
	}

	return createOrReload(ctx, repos, &domain.Payment{
		LoadSettlementID: settlement.ID,
		AmountInCents:    amount,
		Type:             t,
		ExternalRefID:    transfer.ID,
	})
}

func (d *payoutDistributor) notify(ctx context.Context, invoice *domain.Invoice, loadID, amount int64) {
	if d.notifier == nil {
		return
	}
	carrier, err := d.store.Repositories().Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		logger.Warn("Skipping payout notification", "invoiceID", invoice.ID, "error", err)
		return
	}
	if err := d.notifier.NotifyPayout(ctx, carrier, loadID, amount); err != nil {
		logger.Warn("Failed to send payout notification", "invoiceID", invoice.ID, "error", err)
	}
}
