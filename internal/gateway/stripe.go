package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
)

const serviceName = "stripe"

type StripeConfig struct {
	SecretKey string
	ProductID string
	Currency  string
	Timeout   time.Duration
}

type stripeGateway struct {
	api       *client.API
	productID string
	currency  string
	timeout   time.Duration
}

func NewStripeGateway(cfg StripeConfig) Gateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	api := &client.API{}
	api.Init(cfg.SecretKey, stripe.NewBackends(httpClient))
	return &stripeGateway{
		api:       api,
		productID: cfg.ProductID,
		currency:  cfg.Currency,
		timeout:   cfg.Timeout,
	}
}

func (g *stripeGateway) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

func (g *stripeGateway) CreatePaymentLink(ctx context.Context, amountInCents, loadID int64) (*PaymentLink, error) {
	logger.ExternalServiceCall(serviceName, "CreatePaymentLink", "loadID", loadID, "amount", amountInCents)
	ctx, cancel := g.call(ctx)
	defer cancel()

	loadRef := strconv.FormatInt(loadID, 10)

	priceParams := &stripe.PriceParams{
		Currency:   stripe.String(g.currency),
		UnitAmount: stripe.Int64(amountInCents),
		Product:    stripe.String(g.productID),
	}
	priceParams.Context = ctx
	priceParams.AddMetadata("load_id", loadRef)
	price, err := g.api.Prices.New(priceParams)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "CreatePaymentLink", err, "step", "price")
		return nil, fmt.Errorf("create price for load %d: %w", loadID, err)
	}

	linkParams := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
		PaymentMethodTypes: []*string{stripe.String("us_bank_account")},
	}
	linkParams.Context = ctx
	linkParams.AddMetadata("load_id", loadRef)
	link, err := g.api.PaymentLinks.New(linkParams)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "CreatePaymentLink", err, "step", "payment_link")
		if aerr := g.ArchivePrice(context.WithoutCancel(ctx), price.ID); aerr != nil {
			logger.Warn("Failed to archive price of unlinked payment", "priceID", price.ID, "error", aerr)
		}
		return nil, fmt.Errorf("create payment link for load %d: %w", loadID, err)
	}

	logger.ExternalServiceResult(serviceName, "CreatePaymentLink", nil, "linkID", link.ID)
	return &PaymentLink{ID: link.ID, URL: link.URL, PriceID: price.ID}, nil
}

func (g *stripeGateway) ArchivePrice(ctx context.Context, priceID string) error {
	ctx, cancel := g.call(ctx)
	defer cancel()

	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := g.api.Prices.Update(priceID, params)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "ArchivePrice", err, "priceID", priceID)
		return fmt.Errorf("archive price %s: %w", priceID, err)
	}
	logger.Info("Price archived", "priceID", priceID)
	return nil
}

func (g *stripeGateway) ArchivePaymentLink(ctx context.Context, linkID string) error {
	ctx, cancel := g.call(ctx)
	defer cancel()

	params := &stripe.PaymentLinkParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := g.api.PaymentLinks.Update(linkID, params)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "ArchivePaymentLink", err, "linkID", linkID)
		return fmt.Errorf("archive payment link %s: %w", linkID, err)
	}
	logger.Info("PaymentLink archived", "linkID", linkID)
	return nil
}

func (g *stripeGateway) PriceIDForCheckoutSession(ctx context.Context, sessionID string) (string, error) {
	ctx, cancel := g.call(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	session, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "PriceIDForCheckoutSession", err, "sessionID", sessionID)
		return "", fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	if session.LineItems == nil || len(session.LineItems.Data) == 0 || session.LineItems.Data[0].Price == nil {
		return "", fmt.Errorf("checkout session %s has no priced line items: %w", sessionID, domain.ErrNotFound)
	}
	return session.LineItems.Data[0].Price.ID, nil
}

func (g *stripeGateway) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	logger.ExternalServiceCall(serviceName, "CreateTransfer", "destination", req.Destination, "amount", req.AmountInCents)
	ctx, cancel := g.call(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountInCents),
		Currency:    stripe.String(g.currency),
		Destination: stripe.String(req.Destination),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	tr, err := g.api.Transfers.New(params)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "CreateTransfer", err, "idempotencyKey", req.IdempotencyKey)
		return nil, fmt.Errorf("transfer %d to %s: %w", req.AmountInCents, req.Destination, err)
	}

	logger.ExternalServiceResult(serviceName, "CreateTransfer", nil, "transferID", tr.ID)
	return &Transfer{ID: tr.ID}, nil
}

// RetrieveBalance sums the available balance across currencies of a
// connected account.
func (g *stripeGateway) RetrieveBalance(ctx context.Context, account string) (int64, error) {
	ctx, cancel := g.call(ctx)
	defer cancel()

	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(account)
	bal, err := g.api.Balance.Get(params)
	if err != nil {
		err = classify(err)
		logger.ExternalServiceResult(serviceName, "RetrieveBalance", err, "account", account)
		return 0, fmt.Errorf("retrieve balance for %s: %w", account, err)
	}

	var total int64
	for _, a := range bal.Available {
		total += a.Amount
	}
	return total, nil
}

// classify maps a stripe-go error onto the provider error kinds. Rate limits,
// 5xx and transport failures are retryable; other API errors are not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, se.Msg)
		}
		return fmt.Errorf("%w: %s", domain.ErrProviderRejected, se.Msg)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

type stripeVerifier struct {
	secret string
}

func NewStripeVerifier(webhookSecret string) SignatureVerifier {
	return &stripeVerifier{secret: webhookSecret}
}

func (v *stripeVerifier) Verify(payload []byte, header string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if evt.ID == "" || evt.Type == "" || evt.Data == nil {
		return nil, fmt.Errorf("%w: event missing id, type or data", domain.ErrInvalidSignature)
	}
	return &Event{ID: evt.ID, Type: string(evt.Type), Object: evt.Data.Raw}, nil
}

// ParseCheckoutSession decodes a checkout session from a webhook object.
func ParseCheckoutSession(raw json.RawMessage) (*CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", domain.ErrValidation, err)
	}
	out := &CheckoutSession{
		ID:          s.ID,
		AmountTotal: s.AmountTotal,
		Metadata:    s.Metadata,
	}
	if s.PaymentLink != nil {
		out.PaymentLinkID = s.PaymentLink.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}

// LoadID reads the load reference stamped on the payment link metadata.
func (s *CheckoutSession) LoadID() (int64, error) {
	raw, ok := s.Metadata["load_id"]
	if !ok {
		return 0, domain.NewValidationError("metadata.load_id", "missing")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("metadata.load_id", "not an integer")
	}
	return id, nil
}
