package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
)

const (
	testBrokerID  int64 = 1
	testCarrierID int64 = 2
	testLoadID    int64 = 10
)

var (
	testBrokerUID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testCarrierUID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type harness struct {
	store   *memStore
	gw      *fakeGateway
	client  *fakeCreditClient
	alerts  *recordingAlerter
	push    *recordingNotifier
	states  LoadStateMachine
	credit  CreditProvider
	payouts PayoutDistributor
	builder SettlementBuilder
	events  PaymentEventProcessor
	balance BalanceCalculator
	terms   PaymentTermsService
}

func init() {
	logger.Initialize("error", "text")
}

// newHarness wires every service over the in-memory store with a 1% fee and
// one underway load of $1000.00 that has a bill of lading.
func newHarness(t *testing.T) *harness {
	return newHarnessWithFee(t, decimal.NewFromInt(1))
}

func newHarnessWithFee(t *testing.T, feePercent decimal.Decimal) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(),
		gw:     newFakeGateway(),
		client: newFakeCreditClient(),
		alerts: &recordingAlerter{},
		push:   &recordingNotifier{},
		states: NewLoadStateMachine(),
	}
	h.credit = NewCreditProvider(h.client, h.gw, h.store, repaymentAccount)
	h.payouts = NewPayoutDistributor(h.store, h.gw, h.credit, h.states, h.alerts, h.push, feeAccount)
	h.builder = NewSettlementBuilder(h.store, h.gw, h.credit, nil, h.states, feePercent, 30)
	h.events = NewPaymentEventProcessor(fakeVerifier{}, h.store, h.gw, h.payouts, h.alerts, 10*time.Minute)
	h.balance = NewBalanceCalculator(h.store, h.gw)
	h.terms = NewPaymentTermsService(h.store, h.credit, h.states)

	h.store.addBroker(domain.Broker{ID: testBrokerID, UID: testBrokerUID, Name: "Acme Logistics", Email: "ap@acme.test"})
	h.store.addCarrier(domain.Carrier{
		ID: testCarrierID, UID: testCarrierUID, OrganizationName: "Road Runner LLC",
		MCNumber: "MC123", PayoutAccountID: carrierAccount, PushToken: "device-token",
	})
	h.addLoad(testLoadID, domain.LoadStatusUnderway, "1000.00")
	h.store.addDocument(testLoadID, "docs/bol-10.pdf")
	return h
}

func (h *harness) addLoad(id int64, status domain.LoadStatus, rate string) {
	h.store.addLoad(domain.Load{
		ID:              id,
		CurrentStatus:   status,
		FinalRate:       decimal.RequireFromString(rate),
		BrokerID:        testBrokerID,
		CarrierID:       testCarrierID,
		OriginCity:      "Dallas",
		DestinationCity: "Memphis",
		InvoiceEmail:    "billing@acme.test",
	})
}

func (h *harness) deliver(t *testing.T, loadID int64) *domain.Invoice {
	t.Helper()
	invoice, err := h.builder.DeliverLoad(context.Background(), loadID, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return invoice
}

func (h *harness) settlementFor(t *testing.T, loadID int64) *domain.LoadSettlement {
	t.Helper()
	s, err := h.store.Repositories().Settlements.GetByLoadID(context.Background(), loadID)
	require.NoError(t, err)
	return s
}

func (h *harness) pay(eventID string, loadID, amount int64, paymentIntent string) error {
	payload := checkoutPayload(eventID, gateway.EventCheckoutSessionAsyncPaymentSucceeded, loadID, amount, paymentIntent)
	return h.events.Handle(context.Background(), payload, "valid")
}

func (h *harness) checkout(eventID string, loadID int64) error {
	payload := checkoutPayload(eventID, gateway.EventCheckoutSessionCompleted, loadID, 0, "")
	return h.events.Handle(context.Background(), payload, "valid")
}

// amountsByType sums ledger rows of a settlement per payment type.
func (h *harness) amountsByType(settlementID int64) map[domain.PaymentType]int64 {
	out := map[domain.PaymentType]int64{}
	for _, p := range h.store.paymentsOf(settlementID) {
		out[p.Type] += p.AmountInCents
	}
	return out
}

// enableInstantPay preapproves both parties and stages a loan offer.
func (h *harness) enableInstantPay(principal, fee int64) {
	h.client.preapproved[testBrokerUID.String()] = true
	h.client.preapproved[testCarrierUID.String()] = true
	h.client.limits[testCarrierUID.String()] = 500000
	h.client.offer = &credit.LoanOffer{PrincipalInCents: principal, FeeInCents: fee, TermsLink: "https://oatfi.test/terms"}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
}
