// Package gateway wraps the payment gateway used to collect broker payments
// and move funds to connected accounts.
package gateway

import (
	"context"
	"encoding/json"
)

type PaymentLink struct {
	ID      string
	URL     string
	PriceID string
}

type TransferRequest struct {
	AmountInCents  int64
	Destination    string
	Description    string
	IdempotencyKey string
}

type Transfer struct {
	ID string
}

// Gateway is the narrow surface of the payment provider the engine depends on.
// Errors wrap domain.ErrProviderUnavailable or domain.ErrProviderRejected.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, amountInCents, loadID int64) (*PaymentLink, error)
	ArchivePrice(ctx context.Context, priceID string) error
	ArchivePaymentLink(ctx context.Context, linkID string) error
	PriceIDForCheckoutSession(ctx context.Context, sessionID string) (string, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	RetrieveBalance(ctx context.Context, account string) (int64, error)
}

// Event is a verified webhook event. Object holds the raw data.object payload.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

type SignatureVerifier interface {
	Verify(payload []byte, header string) (*Event, error)
}

// CheckoutSession carries the fields of a checkout session the webhook
// handlers act on.
type CheckoutSession struct {
	ID              string
	PaymentLinkID   string
	PaymentIntentID string
	AmountTotal     int64
	Metadata        map[string]string
}

const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)
