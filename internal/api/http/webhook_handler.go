package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
)

const maxWebhookBody = 64 << 10

// stripeWebhook answers 400 only for payloads that fail verification. Any
// signed payload gets 200 even when processing failed; the failure has
// already been alerted and the claim released for the reconciliation job.
func (h *handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	// A client disconnect must not abort a payout halfway.
	ctx := context.WithoutCancel(r.Context())
	err = h.svcs.Events.Handle(ctx, payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, domain.ErrInvalidSignature) {
		logger.Warn("Rejected webhook with invalid signature", "error", err)
		writeErrorMessage(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if err != nil {
		logger.Error("Webhook processing failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
