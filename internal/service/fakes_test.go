package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
)

const (
	feeAccount       = "acct_fee"
	repaymentAccount = "acct_oatfi"
	carrierAccount   = "acct_carrier"
)

type fakeGateway struct {
	mu             sync.Mutex
	links          int
	archivedPrices []string
	archivedLinks  []string
	transfers      []gateway.TransferRequest
	byKey          map[string]*gateway.Transfer
	failTransfer   map[string]error
	failLink       error
	balance        int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{byKey: map[string]*gateway.Transfer{}, failTransfer: map[string]error{}}
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, amountInCents, loadID int64) (*gateway.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failLink != nil {
		return nil, g.failLink
	}
	g.links++
	return &gateway.PaymentLink{
		ID:      fmt.Sprintf("plink_%d", loadID),
		URL:     fmt.Sprintf("https://pay.example/%d", loadID),
		PriceID: fmt.Sprintf("price_%d", loadID),
	}, nil
}

func (g *fakeGateway) ArchivePrice(ctx context.Context, priceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.archivedPrices = append(g.archivedPrices, priceID)
	return nil
}

func (g *fakeGateway) ArchivePaymentLink(ctx context.Context, linkID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.archivedLinks = append(g.archivedLinks, linkID)
	return nil
}

func (g *fakeGateway) PriceIDForCheckoutSession(ctx context.Context, sessionID string) (string, error) {
	return "price_" + sessionID, nil
}

// CreateTransfer honours idempotency keys the way the gateway does: a repeated
// key returns the original transfer without moving money again.
func (g *fakeGateway) CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failTransfer[req.Destination]; err != nil {
		return nil, err
	}
	if t, ok := g.byKey[req.IdempotencyKey]; ok {
		return t, nil
	}
	t := &gateway.Transfer{ID: fmt.Sprintf("tr_%d", len(g.transfers)+1)}
	g.byKey[req.IdempotencyKey] = t
	g.transfers = append(g.transfers, req)
	return t, nil
}

func (g *fakeGateway) RetrieveBalance(ctx context.Context, account string) (int64, error) {
	return g.balance, nil
}

func (g *fakeGateway) setTransferFailure(destination string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failTransfer, destination)
		return
	}
	g.failTransfer[destination] = err
}

func (g *fakeGateway) transfersTo(destination string) []gateway.TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gateway.TransferRequest
	for _, t := range g.transfers {
		if t.Destination == destination {
			out = append(out, t)
		}
	}
	return out
}

type fakeCreditClient struct {
	mu          sync.Mutex
	preapproved map[string]bool
	limits      map[string]int64
	offer       *credit.LoanOffer
	fundings    int
	repayments  []string
	invoices    []credit.Invoice
	businesses  []credit.Business
	failFund    error
	failRepay   error
	failPreapp  error
}

func newFakeCreditClient() *fakeCreditClient {
	return &fakeCreditClient{preapproved: map[string]bool{}, limits: map[string]int64{}}
}

func (c *fakeCreditClient) SaveBusiness(ctx context.Context, b credit.Business) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.businesses = append(c.businesses, b)
	return nil
}

func (c *fakeCreditClient) GetPreapproval(ctx context.Context, businessID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPreapp != nil {
		return false, c.failPreapp
	}
	return c.preapproved[businessID], nil
}

func (c *fakeCreditClient) GetCreditLimit(ctx context.Context, businessID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits[businessID], nil
}

func (c *fakeCreditClient) RequestLoanOffer(ctx context.Context, carrierID, invoiceExternalID string) (*credit.LoanOffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offer == nil {
		return nil, nil
	}
	offer := *c.offer
	offer.InvoiceExternalID = invoiceExternalID
	return &offer, nil
}

func (c *fakeCreditClient) FundLoan(ctx context.Context, carrierID, invoiceExternalID string, amountInCents int64) (*credit.Funding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFund != nil {
		return nil, c.failFund
	}
	c.fundings++
	return &credit.Funding{LoanID: fmt.Sprintf("loan_%d", c.fundings), TransactionID: fmt.Sprintf("txn_%d", c.fundings)}, nil
}

func (c *fakeCreditClient) RecordRepayment(ctx context.Context, carrierID, invoiceExternalID, transferID string, amountInCents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRepay != nil {
		return c.failRepay
	}
	c.repayments = append(c.repayments, transferID)
	return nil
}

func (c *fakeCreditClient) SendInvoice(ctx context.Context, inv credit.Invoice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invoices = append(c.invoices, inv)
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []AlertKind
	errs   []error
}

func (a *recordingAlerter) Alert(ctx context.Context, kind AlertKind, err error, attrs ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, kind)
	a.errs = append(a.errs, err)
}

func (a *recordingAlerter) count(kind AlertKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, k := range a.alerts {
		if k == kind {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu      sync.Mutex
	amounts []int64
}

func (n *recordingNotifier) NotifyPayout(ctx context.Context, carrier *domain.Carrier, loadID, amountInCents int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.amounts = append(n.amounts, amountInCents)
	return nil
}

type recordingEmail struct {
	mu       sync.Mutex
	invoices []InvoiceEmail
	alerts   []string
}

func (e *recordingEmail) SendInvoice(ctx context.Context, msg InvoiceEmail) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invoices = append(e.invoices, msg)
	return nil
}

func (e *recordingEmail) SendAlert(ctx context.Context, to, subject, body string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, subject)
	return nil
}

// fakeVerifier accepts payloads signed with the header "valid". The payload is
// a webhook envelope of the form {"id", "type", "data": {"object"}}.
type fakeVerifier struct{}

func (fakeVerifier) Verify(payload []byte, header string) (*gateway.Event, error) {
	if header != "valid" {
		return nil, fmt.Errorf("%w: bad header", domain.ErrInvalidSignature)
	}
	var env struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return &gateway.Event{ID: env.ID, Type: env.Type, Object: env.Data.Object}, nil
}

func checkoutPayload(eventID, eventType string, loadID, amount int64, paymentIntent string) []byte {
	object := map[string]any{
		"id":           "cs_" + eventID,
		"object":       "checkout.session",
		"amount_total": amount,
		"payment_link": fmt.Sprintf("plink_%d", loadID),
		"metadata":     map[string]string{"load_id": fmt.Sprintf("%d", loadID)},
	}
	if paymentIntent != "" {
		object["payment_intent"] = paymentIntent
	}
	payload, _ := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	return payload
}
