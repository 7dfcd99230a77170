package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

const (
	deliveryActor        = "carrier"
	invoicePublishBudget = 2 * time.Minute
)

var hundred = decimal.NewFromInt(100)

type settlementBuilder struct {
	store      Store
	gateway    gateway.Gateway
	credit     CreditProvider
	documents  InvoiceDocumentService
	loads      LoadStateMachine
	feePercent decimal.Decimal
	dueDays    int
}

// NewSettlementBuilder wires the delivery flow. documents may be nil, in which
// case no invoice document is rendered or emailed.
func NewSettlementBuilder(
	store Store,
	gw gateway.Gateway,
	creditProvider CreditProvider,
	documents InvoiceDocumentService,
	loads LoadStateMachine,
	feePercent decimal.Decimal,
	dueDays int,
) SettlementBuilder {
	return &settlementBuilder{
		store:      store,
		gateway:    gw,
		credit:     creditProvider,
		documents:  documents,
		loads:      loads,
		feePercent: feePercent,
		dueDays:    dueDays,
	}
}

// AmountDueInCents converts a dollar rate to cents. Fractions of a cent are
// rejected rather than rounded.
func AmountDueInCents(finalRate decimal.Decimal) (int64, error) {
	if !finalRate.IsPositive() {
		return 0, domain.NewValidationError("final_rate", "must be greater than zero")
	}
	cents := finalRate.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, domain.NewValidationError("final_rate", "must not have fractions of a cent")
	}
	return cents.IntPart(), nil
}

// FeeInCents applies a percentage fee to an amount, rounding half to even.
func FeeInCents(amountInCents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amountInCents).Mul(percent).Div(hundred).RoundBank(0).IntPart()
}

// retire archives the link and its price after a failed delivery. Failures are
// logged only; the delivery error is what the caller sees.
func (b *settlementBuilder) retire(ctx context.Context, link *gateway.PaymentLink) {
	log := logger.WithMethod("settlementBuilder.retire").With("linkID", link.ID)
	if err := b.gateway.ArchivePaymentLink(ctx, link.ID); err != nil {
		log.Warn("Failed to archive orphaned payment link", "error", err)
	}
	if link.PriceID == "" {
		return
	}
	if err := b.gateway.ArchivePrice(ctx, link.PriceID); err != nil {
		log.Warn("Failed to archive orphaned price", "priceID", link.PriceID, "error", err)
	}
}

func (b *settlementBuilder) DeliverLoad(ctx context.Context, loadID int64, deliveredAt time.Time) (*domain.Invoice, error) {
	log := logger.WithLoad(loadID)
	repos := b.store.Repositories()

	load, err := repos.Loads.GetByID(ctx, loadID)
	if err != nil {
		return nil, err
	}
	docs, err := repos.Loads.CountDeliveryDocuments(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if docs == 0 {
		return nil, fmt.Errorf("%w: cannot deliver load %d without delivery documents", domain.ErrMissingPrerequisite, loadID)
	}
	amountDue, err := AmountDueInCents(load.FinalRate)
	if err != nil {
		return nil, err
	}
	carrier, err := repos.Parties.GetCarrier(ctx, load.CarrierID)
	if err != nil {
		return nil, err
	}
	// Checked again inside the transaction. A load in the wrong status must not
	// create gateway objects.
	if !CanTransition(load.CurrentStatus, domain.LoadStatusDelivered) {
		return nil, &domain.TransitionError{From: load.CurrentStatus, To: domain.LoadStatusDelivered}
	}

	link, err := b.gateway.CreatePaymentLink(ctx, amountDue, loadID)
	if err != nil {
		return nil, fmt.Errorf("create payment link for load %d: %w", loadID, err)
	}

	settlement := &domain.LoadSettlement{
		LoadID:            loadID,
		NauvusFeePercent:  b.feePercent,
		NauvusFeesInCents: FeeInCents(amountDue, b.feePercent),
	}
	invoice := &domain.Invoice{
		UID:              uuid.New(),
		BrokerID:         load.BrokerID,
		CarrierID:        load.CarrierID,
		AmountDueInCents: amountDue,
		Status:           domain.InvoiceStatusUnpaid,
		Description: fmt.Sprintf("Delivery of load %d from %s to %s on %s by %s",
			loadID, load.OriginCity, load.DestinationCity, deliveredAt.Format("2006-01-02"), carrier.OrganizationName),
		PaymentLinkURL: link.URL,
		PaymentLinkID:  link.ID,
		DueDate:        time.Now().AddDate(0, 0, b.dueDays),
	}

	delivered := *load
	delivered.DeliveredDate = &deliveredAt
	err = b.store.WithTx(ctx, func(tx *repository.Repos) error {
		if err := tx.Settlements.Create(ctx, settlement); err != nil {
			return err
		}
		invoice.LoadSettlementID = settlement.ID
		if err := tx.Invoices.Create(ctx, invoice); err != nil {
			return err
		}
		if err := recordHistory(ctx, tx, domain.EntityInvoice, invoice.ID, string(invoice.Status), deliveryActor); err != nil {
			return err
		}
		return b.loads.Transition(ctx, tx, &delivered, domain.LoadStatusDelivered, deliveryActor)
	})
	if err != nil {
		log.Error("Load was not marked as delivered", "error", err)
		b.retire(context.WithoutCancel(ctx), link)
		return nil, err
	}
	*load = delivered

	if err := b.credit.SendInvoice(ctx, invoice); err != nil {
		log.Warn("Failed to register invoice with credit provider", "invoiceUID", invoice.UID, "error", err)
	}

	if b.documents != nil {
		go b.publish(context.WithoutCancel(ctx), invoice.ID)
	}

	log.Info("Load delivered", "settlementID", settlement.ID, "invoiceID", invoice.ID,
		"amountDue", amountDue, "fee", settlement.NauvusFeesInCents)
	return invoice, nil
}

func (b *settlementBuilder) publish(ctx context.Context, invoiceID int64) {
	ctx, cancel := context.WithTimeout(ctx, invoicePublishBudget)
	defer cancel()
	if err := b.documents.Publish(ctx, invoiceID); err != nil {
		logger.Warn("Failed to publish invoice document", "invoiceID", invoiceID, "error", err)
	}
}
