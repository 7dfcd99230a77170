package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"nauvus-backend/internal/domain"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

const sessionEvent = `{
  "id": "evt_123",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_1",
      "object": "checkout.session",
      "amount_total": 100000,
      "payment_link": "plink_1",
      "payment_intent": "pi_1",
      "metadata": {"load_id": "42"}
    }
  }
}`

func TestStripeVerifier_Verify(t *testing.T) {
	v := NewStripeVerifier(testWebhookSecret)
	payload := []byte(sessionEvent)

	t.Run("ValidSignature", func(t *testing.T) {
		evt, err := v.Verify(payload, sign(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_123", evt.ID)
		assert.Equal(t, EventCheckoutSessionCompleted, evt.Type)

		session, err := ParseCheckoutSession(evt.Object)
		require.NoError(t, err)
		assert.Equal(t, "cs_1", session.ID)
		assert.Equal(t, "plink_1", session.PaymentLinkID)
		assert.Equal(t, "pi_1", session.PaymentIntentID)
		assert.Equal(t, int64(100000), session.AmountTotal)

		loadID, err := session.LoadID()
		require.NoError(t, err)
		assert.Equal(t, int64(42), loadID)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		_, err := v.Verify(payload, sign(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		_, err := v.Verify(payload, "")
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("ExpiredTimestamp", func(t *testing.T) {
		_, err := v.Verify(payload, sign(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})
}

func TestCheckoutSession_LoadID(t *testing.T) {
	s := &CheckoutSession{Metadata: map[string]string{}}
	_, err := s.LoadID()
	assert.ErrorIs(t, err, domain.ErrValidation)

	s.Metadata["load_id"] = "abc"
	_, err = s.LoadID()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(&stripe.Error{HTTPStatusCode: 503, Msg: "down"}), domain.ErrProviderUnavailable)
	assert.ErrorIs(t, classify(&stripe.Error{HTTPStatusCode: 429, Msg: "slow down"}), domain.ErrProviderUnavailable)
	assert.ErrorIs(t, classify(&stripe.Error{HTTPStatusCode: 400, Msg: "insufficient funds"}), domain.ErrProviderRejected)
	assert.ErrorIs(t, classify(errors.New("dial tcp: timeout")), domain.ErrProviderUnavailable)
}

type stripeStub struct {
	mu       sync.Mutex
	requests []string
	linkFail bool
}

func (s *stripeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/prices":
		fmt.Fprint(w, `{"id": "price_1", "object": "price"}`)
	case r.URL.Path == "/v1/payment_links" && s.linkFail:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"type": "invalid_request_error", "message": "payment method not enabled"}}`)
	case r.URL.Path == "/v1/payment_links":
		fmt.Fprint(w, `{"id": "plink_1", "object": "payment_link", "url": "https://buy.stripe.test/plink_1"}`)
	case r.URL.Path == "/v1/prices/price_1":
		fmt.Fprint(w, `{"id": "price_1", "object": "price", "active": false}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"type": "invalid_request_error", "message": "unknown path"}}`)
	}
}

func newStubGateway(t *testing.T, stub *stripeStub) *stripeGateway {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := &client.API{}
	api.Init("sk_test", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &stripeGateway{api: api, productID: "prod_1", currency: "usd", timeout: 5 * time.Second}
}

func TestCreatePaymentLink_ReturnsPrice(t *testing.T) {
	stub := &stripeStub{}
	g := newStubGateway(t, stub)

	link, err := g.CreatePaymentLink(context.Background(), 100000, 42)

	require.NoError(t, err)
	assert.Equal(t, &PaymentLink{ID: "plink_1", URL: "https://buy.stripe.test/plink_1", PriceID: "price_1"}, link)
	assert.Equal(t, []string{"POST /v1/prices", "POST /v1/payment_links"}, stub.requests)
}

func TestCreatePaymentLink_ArchivesPriceWhenLinkFails(t *testing.T) {
	stub := &stripeStub{linkFail: true}
	g := newStubGateway(t, stub)

	link, err := g.CreatePaymentLink(context.Background(), 100000, 42)

	require.Error(t, err)
	assert.Nil(t, link)
	assert.True(t, errors.Is(err, domain.ErrProviderRejected))
	assert.Equal(t, []string{"POST /v1/prices", "POST /v1/payment_links", "POST /v1/prices/price_1"}, stub.requests)
}
