package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository"
)

const webhookActor = "stripe_webhook"

// EventHandler acts on one verified gateway event.
type EventHandler func(ctx context.Context, event *gateway.Event) error

type paymentEventProcessor struct {
	verifier   gateway.SignatureVerifier
	store      Store
	handlers   map[string]EventHandler
	alerter    Alerter
	staleAfter time.Duration
}

func NewPaymentEventProcessor(
	verifier gateway.SignatureVerifier,
	store Store,
	gw gateway.Gateway,
	payouts PayoutDistributor,
	alerter Alerter,
	staleAfter time.Duration,
) PaymentEventProcessor {
	h := &checkoutHandlers{store: store, gateway: gw, payouts: payouts, alerter: alerter}
	return &paymentEventProcessor{
		verifier: verifier,
		store:    store,
		handlers: map[string]EventHandler{
			gateway.EventCheckoutSessionCompleted:             h.CheckoutCompleted,
			gateway.EventCheckoutSessionAsyncPaymentSucceeded: h.PaymentSucceeded,
		},
		alerter:    alerter,
		staleAfter: staleAfter,
	}
}

// Handle verifies, claims and dispatches one webhook delivery. A returned error
// wrapping domain.ErrInvalidSignature means the payload was rejected before any
// state was touched. Any other error means the claim was released so the
// provider's retry will be processed.
func (p *paymentEventProcessor) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := p.verifier.Verify(payload, signatureHeader)
	if err != nil {
		return err
	}

	log := logger.WithEvent(event.ID, event.Type)
	start := time.Now()
	events := p.store.Repositories().Events

	claimed, err := events.Claim(ctx, event.ID, event.Type, time.Now().Add(-p.staleAfter))
	if err != nil {
		return fmt.Errorf("claim event %s: %w", event.ID, err)
	}
	if !claimed {
		log.Debug("Event already processed, skipping")
		metrics.ObserveWebhookEvent(event.Type, metrics.ResultSkipped, time.Since(start))
		return nil
	}

	handler, ok := p.handlers[event.Type]
	if !ok {
		log.Info("Ignoring unhandled event type")
		if err := events.MarkDone(ctx, event.ID); err != nil {
			log.Warn("Failed to mark event done", "error", err)
		}
		metrics.ObserveWebhookEvent(event.Type, metrics.ResultSkipped, time.Since(start))
		return nil
	}

	if herr := handler(ctx, event); herr != nil {
		log.Error("Event handler failed", "error", herr)
		if err := events.Release(ctx, event.ID); err != nil {
			log.Error("Failed to release event claim", "error", err)
		}
		p.alerter.Alert(ctx, AlertWebhookFailed, herr, "event_id", event.ID, "event_type", event.Type)
		metrics.ObserveWebhookEvent(event.Type, metrics.ResultError, time.Since(start))
		return herr
	}

	if err := events.MarkDone(ctx, event.ID); err != nil {
		// The handler's effects are guarded by the ledger, so a replay after a
		// lost marker is harmless.
		log.Warn("Failed to mark event done", "error", err)
	}
	metrics.ObserveWebhookEvent(event.Type, metrics.ResultSuccess, time.Since(start))
	log.Info("Event processed", "duration", time.Since(start))
	return nil
}

type checkoutHandlers struct {
	store   Store
	gateway gateway.Gateway
	payouts PayoutDistributor
	alerter Alerter
}

// resolve loads the invoice a checkout session pays for.
func (h *checkoutHandlers) resolve(ctx context.Context, event *gateway.Event) (*gateway.CheckoutSession, *domain.Invoice, error) {
	session, err := gateway.ParseCheckoutSession(event.Object)
	if err != nil {
		return nil, nil, err
	}
	loadID, err := session.LoadID()
	if err != nil {
		return nil, nil, err
	}

	repos := h.store.Repositories()
	settlement, err := repos.Settlements.GetByLoadID(ctx, loadID)
	if err != nil {
		return nil, nil, fmt.Errorf("settlement for load %d: %w", loadID, err)
	}
	invoice, err := repos.Invoices.GetBySettlementID(ctx, settlement.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("invoice for settlement %d: %w", settlement.ID, err)
	}
	return session, invoice, nil
}

// CheckoutCompleted retires the payment link so the broker cannot pay twice and
// records that checkout finished. It never moves an invoice back from paid.
func (h *checkoutHandlers) CheckoutCompleted(ctx context.Context, event *gateway.Event) error {
	session, invoice, err := h.resolve(ctx, event)
	if err != nil {
		return err
	}

	priceID, err := h.gateway.PriceIDForCheckoutSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if priceID != "" {
		if err := h.gateway.ArchivePrice(ctx, priceID); err != nil {
			return err
		}
	}
	linkID := session.PaymentLinkID
	if linkID == "" {
		linkID = invoice.PaymentLinkID
	}
	if err := h.gateway.ArchivePaymentLink(ctx, linkID); err != nil {
		return err
	}

	if invoice.IsPaid() || invoice.Status == domain.InvoiceStatusCheckoutComplete {
		return nil
	}
	invoice.Status = domain.InvoiceStatusCheckoutComplete
	return h.store.WithTx(ctx, func(tx *repository.Repos) error {
		if err := tx.Invoices.Update(ctx, invoice); err != nil {
			return err
		}
		return recordHistory(ctx, tx, domain.EntityInvoice, invoice.ID, string(invoice.Status), webhookActor)
	})
}

// PaymentSucceeded records the broker payment and hands it to the payout
// distributor. Replays resume from the ledger rows already written.
func (h *checkoutHandlers) PaymentSucceeded(ctx context.Context, event *gateway.Event) error {
	session, invoice, err := h.resolve(ctx, event)
	if err != nil {
		return err
	}
	log := logger.WithEvent(event.ID, event.Type).With("invoice_id", invoice.ID)
	repos := h.store.Repositories()

	ref := session.PaymentIntentID
	if ref == "" {
		ref = session.ID
	}

	amount := session.AmountTotal
	if amount > invoice.AmountDueInCents {
		h.alerter.Alert(ctx, AlertInconsistentState,
			domain.InconsistentState("invoice %d overpaid: received %d, due %d", invoice.ID, amount, invoice.AmountDueInCents),
			"event_id", event.ID)
		amount = invoice.AmountDueInCents
	}

	existing, err := repos.Payments.FindBySettlementAndType(ctx, invoice.LoadSettlementID, domain.PaymentTypeFromBroker)
	if err != nil {
		return err
	}

	var payment *domain.Payment
	switch {
	case existing != nil && existing.ExternalRefID != ref:
		h.alerter.Alert(ctx, AlertInconsistentState,
			domain.InconsistentState("invoice %d already paid by %s, got second payment %s", invoice.ID, existing.ExternalRefID, ref),
			"event_id", event.ID)
		return nil
	case existing != nil:
		done, err := h.settled(ctx, invoice)
		if err != nil {
			return err
		}
		if done {
			h.alerter.Alert(ctx, AlertInconsistentState,
				domain.InconsistentState("payment %s for invoice %d delivered again after settlement", ref, invoice.ID),
				"event_id", event.ID)
			return nil
		}
		log.Info("Resuming distribution of recorded broker payment", "ref", ref)
		payment = existing
	default:
		payment = &domain.Payment{
			LoadSettlementID: invoice.LoadSettlementID,
			AmountInCents:    amount,
			Type:             domain.PaymentTypeFromBroker,
			ExternalRefID:    ref,
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			if !errors.Is(err, domain.ErrDuplicate) {
				return err
			}
			// A concurrent delivery of the same payment won the insert.
			payment, err = repos.Payments.FindBySettlementAndType(ctx, invoice.LoadSettlementID, domain.PaymentTypeFromBroker)
			if err != nil {
				return err
			}
			if payment == nil || payment.ExternalRefID != ref {
				return domain.InconsistentState("broker payment %s for invoice %d conflicts with ledger", ref, invoice.ID)
			}
		}
	}

	return h.payouts.ProcessBrokerPayment(ctx, invoice, payment)
}

// settled reports whether the invoice is paid and its load completed.
func (h *checkoutHandlers) settled(ctx context.Context, invoice *domain.Invoice) (bool, error) {
	if !invoice.IsPaid() {
		return false, nil
	}
	repos := h.store.Repositories()
	settlement, err := repos.Settlements.GetByID(ctx, invoice.LoadSettlementID)
	if err != nil {
		return false, err
	}
	load, err := repos.Loads.GetByID(ctx, settlement.LoadID)
	if err != nil {
		return false, err
	}
	return load.CurrentStatus == domain.LoadStatusCompleted, nil
}
