package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
)

func TestHandle_RejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, testLoadID)
	payload := checkoutPayload("evt_bad", gateway.EventCheckoutSessionAsyncPaymentSucceeded, testLoadID, 100000, "pi_1")

	err := h.events.Handle(context.Background(), payload, "forged")

	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
	assert.Equal(t, 0, h.store.eventCount("evt_bad"))
	assert.Empty(t, h.store.paymentsOf(h.settlementFor(t, testLoadID).ID))
}

func TestHandle_IgnoresUnknownEventType(t *testing.T) {
	h := newHarness(t)
	payload := checkoutPayload("evt_other", "customer.created", testLoadID, 0, "")

	require.NoError(t, h.events.Handle(context.Background(), payload, "valid"))
	require.NoError(t, h.events.Handle(context.Background(), payload, "valid"))

	assert.Equal(t, 1, h.store.eventCount("evt_other"))
	assert.Zero(t, h.alerts.count(AlertWebhookFailed))
}

func TestCheckoutCompleted_RetiresPaymentLink(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)

	require.NoError(t, h.checkout("evt_1", testLoadID))

	assert.Equal(t, domain.InvoiceStatusCheckoutComplete, h.store.invoiceByID(invoice.ID).Status)
	assert.Equal(t, []string{"price_cs_evt_1"}, h.gw.archivedPrices)
	assert.Equal(t, []string{"plink_10"}, h.gw.archivedLinks)
	assert.Equal(t, domain.LoadStatusDelivered, h.store.load(testLoadID).CurrentStatus)
}

func TestCheckoutCompleted_AfterPaymentKeepsPaid(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)

	require.NoError(t, h.pay("evt_pay", testLoadID, 100000, "pi_1"))
	require.NoError(t, h.checkout("evt_checkout", testLoadID))

	assert.Equal(t, domain.InvoiceStatusPaid, h.store.invoiceByID(invoice.ID).Status)
}

func TestPaymentSucceeded_StandardPayout(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)
	require.NoError(t, h.checkout("evt_1", testLoadID))

	require.NoError(t, h.pay("evt_2", testLoadID, 100000, "pi_1"))

	paid := h.store.invoiceByID(invoice.ID)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, int64(100000), paid.AmountPaidInCents)
	require.NotNil(t, paid.PaidDate)

	settlement := h.settlementFor(t, testLoadID)
	assert.Equal(t, map[domain.PaymentType]int64{
		domain.PaymentTypeFromBroker: 100000,
		domain.PaymentTypeFee:        1000,
		domain.PaymentTypeToCarrier:  99000,
	}, h.amountsByType(settlement.ID))

	require.Len(t, h.gw.transfersTo(feeAccount), 1)
	carrierTransfers := h.gw.transfersTo(carrierAccount)
	require.Len(t, carrierTransfers, 1)
	assert.Equal(t, int64(99000), carrierTransfers[0].AmountInCents)
	assert.Equal(t, "Remaining payout for load 10", carrierTransfers[0].Description)

	assert.Equal(t, domain.LoadStatusCompleted, h.store.load(testLoadID).CurrentStatus)
	assert.Equal(t, []int64{99000}, h.push.amounts)
	assert.Equal(t, []string{"unpaid", "checkout_complete", "paid"}, h.store.historyOf(domain.EntityInvoice, invoice.ID))
	assert.Zero(t, h.alerts.count(AlertInconsistentState))
}

func TestPaymentSucceeded_ReplayedEventIsNoop(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, testLoadID)
	require.NoError(t, h.pay("evt_2", testLoadID, 100000, "pi_1"))

	require.NoError(t, h.pay("evt_2", testLoadID, 100000, "pi_1"))

	assert.Len(t, h.gw.transfersTo(carrierAccount), 1)
	assert.Len(t, h.gw.transfersTo(feeAccount), 1)
	assert.Len(t, h.store.paymentsOf(h.settlementFor(t, testLoadID).ID), 3)
	assert.Zero(t, h.alerts.count(AlertInconsistentState))
}

func TestPaymentSucceeded_SamePaymentNewEventAfterSettlement(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, testLoadID)
	require.NoError(t, h.pay("evt_2", testLoadID, 100000, "pi_1"))

	require.NoError(t, h.pay("evt_3", testLoadID, 100000, "pi_1"))

	assert.Equal(t, 1, h.alerts.count(AlertInconsistentState))
	assert.Len(t, h.gw.transfersTo(carrierAccount), 1)
	assert.Len(t, h.store.paymentsOf(h.settlementFor(t, testLoadID).ID), 3)
}

func TestPaymentSucceeded_SecondPaymentIsAlerted(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, testLoadID)
	require.NoError(t, h.pay("evt_2", testLoadID, 100000, "pi_1"))

	require.NoError(t, h.pay("evt_3", testLoadID, 100000, "pi_2"))

	assert.Equal(t, 1, h.alerts.count(AlertInconsistentState))
	amounts := h.amountsByType(h.settlementFor(t, testLoadID).ID)
	assert.Equal(t, int64(100000), amounts[domain.PaymentTypeFromBroker])
	assert.Equal(t, int64(99000), amounts[domain.PaymentTypeToCarrier])
}

func TestPaymentSucceeded_OverpaymentIsCapped(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)

	require.NoError(t, h.pay("evt_2", testLoadID, 120000, "pi_1"))

	assert.Equal(t, 1, h.alerts.count(AlertInconsistentState))
	paid := h.store.invoiceByID(invoice.ID)
	assert.Equal(t, int64(100000), paid.AmountPaidInCents)
	amounts := h.amountsByType(h.settlementFor(t, testLoadID).ID)
	assert.Equal(t, int64(100000), amounts[domain.PaymentTypeFromBroker])
	assert.Equal(t, int64(99000), amounts[domain.PaymentTypeToCarrier])
}

func TestPaymentSucceeded_FailureReleasesClaimForRedelivery(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)
	h.gw.setTransferFailure(carrierAccount, errors.New("account restricted"))

	err := h.pay("evt_2", testLoadID, 100000, "pi_1")

	require.Error(t, err)
	assert.Equal(t, 0, h.store.eventCount("evt_2"))
	assert.Equal(t, 1, h.alerts.count(AlertWebhookFailed))
	assert.Equal(t, 1, h.alerts.count(AlertPayoutFailed))
	assert.Equal(t, domain.InvoiceStatusPaid, h.store.invoiceByID(invoice.ID).Status)
	assert.Equal(t, domain.LoadStatusDelivered, h.store.load(testLoadID).CurrentStatus)
	assert.Len(t, h.gw.transfersTo(feeAccount), 1)

	h.gw.setTransferFailure(carrierAccount, nil)
	require.NoError(t, h.pay("evt_2", testLoadID, 100000, "pi_1"))

	assert.Equal(t, 1, h.store.eventCount("evt_2"))
	assert.Len(t, h.gw.transfersTo(feeAccount), 1)
	assert.Len(t, h.gw.transfersTo(carrierAccount), 1)
	assert.Equal(t, domain.LoadStatusCompleted, h.store.load(testLoadID).CurrentStatus)
	assert.Equal(t, map[domain.PaymentType]int64{
		domain.PaymentTypeFromBroker: 100000,
		domain.PaymentTypeFee:        1000,
		domain.PaymentTypeToCarrier:  99000,
	}, h.amountsByType(h.settlementFor(t, testLoadID).ID))
}

func TestPaymentSucceeded_UnknownLoad(t *testing.T) {
	h := newHarness(t)

	err := h.pay("evt_2", 999, 100000, "pi_1")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 0, h.store.eventCount("evt_2"))
	assert.Equal(t, 1, h.alerts.count(AlertWebhookFailed))
}

func TestPaymentSucceeded_UnderpaymentHoldsPayouts(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)

	require.NoError(t, h.pay("evt_2", testLoadID, 60000, "pi_1"))

	assert.Equal(t, 1, h.alerts.count(AlertInconsistentState))
	assert.Zero(t, h.alerts.count(AlertPayoutFailed))
	assert.Equal(t, 1, h.store.eventCount("evt_2"))

	held := h.store.invoiceByID(invoice.ID)
	assert.Equal(t, domain.InvoiceStatusUnpaid, held.Status)
	assert.Equal(t, int64(60000), held.AmountPaidInCents)
	assert.Nil(t, held.PaidDate)

	assert.Empty(t, h.gw.transfersTo(carrierAccount))
	assert.Empty(t, h.gw.transfersTo(feeAccount))
	assert.Equal(t, map[domain.PaymentType]int64{
		domain.PaymentTypeFromBroker: 60000,
	}, h.amountsByType(h.settlementFor(t, testLoadID).ID))
	assert.Equal(t, domain.LoadStatusDelivered, h.store.load(testLoadID).CurrentStatus)
}

func TestPaymentSucceeded_UnderpaymentWithLoanSkipsRepayment(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)
	h.enableInstantPay(80000, 2000)
	h.acceptInstantPay(t)
	advanced := len(h.gw.transfersTo(carrierAccount))

	require.NoError(t, h.pay("evt_2", testLoadID, 50000, "pi_1"))

	assert.Equal(t, 1, h.alerts.count(AlertInconsistentState))
	assert.Empty(t, h.gw.transfersTo(repaymentAccount))
	assert.Len(t, h.gw.transfersTo(carrierAccount), advanced)
	assert.Equal(t, domain.LoanStatusOutstanding, h.loanFor(t, invoice.ID).Status)
	assert.Equal(t, domain.LoadStatusPartialSettled, h.store.load(testLoadID).CurrentStatus)
}

func TestCheckoutCompleted_ReplayedEventIsIgnored(t *testing.T) {
	h := newHarness(t)
	invoice := h.deliver(t, testLoadID)
	loadHistory := h.store.historyOf(domain.EntityLoad, testLoadID)

	require.NoError(t, h.checkout("evt_1", testLoadID))
	require.NoError(t, h.checkout("evt_1", testLoadID))

	assert.Equal(t, 1, h.store.eventCount("evt_1"))
	assert.Equal(t, domain.InvoiceStatusCheckoutComplete, h.store.invoiceByID(invoice.ID).Status)
	assert.Equal(t, []string{"unpaid", "checkout_complete"}, h.store.historyOf(domain.EntityInvoice, invoice.ID))
	assert.Equal(t, []string{"price_cs_evt_1"}, h.gw.archivedPrices)
	assert.Equal(t, []string{"plink_10"}, h.gw.archivedLinks)
	assert.Equal(t, domain.LoadStatusDelivered, h.store.load(testLoadID).CurrentStatus)
	assert.Equal(t, loadHistory, h.store.historyOf(domain.EntityLoad, testLoadID))
	assert.Zero(t, h.alerts.count(AlertWebhookFailed))
}
