package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nauvus-backend/internal/domain"
)

// carrierLoad resolves the authenticated carrier and the load id in the path.
func carrierLoad(r *http.Request) (carrierID, loadID int64, err error) {
	carrierID, err = CarrierIDFromContext(r.Context())
	if err != nil {
		return 0, 0, err
	}
	loadID, err = idFromPath(r)
	return carrierID, loadID, err
}

type deliverRequest struct {
	DeliveredAt time.Time `json:"delivered_at"`
}

type invoiceResponse struct {
	InvoiceUID       string    `json:"invoice_uid"`
	AmountDueInCents int64     `json:"amount_due_in_cents"`
	Status           string    `json:"status"`
	PaymentLinkURL   string    `json:"payment_link_url"`
	DueDate          time.Time `json:"due_date"`
}

func (h *handlers) deliverLoad(w http.ResponseWriter, r *http.Request) {
	carrierID, loadID, err := carrierLoad(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}
	if req.DeliveredAt.IsZero() {
		req.DeliveredAt = time.Now()
	}

	load, err := h.svcs.Loads.GetByID(r.Context(), loadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if load.CarrierID != carrierID {
		writeError(w, r, fmt.Errorf("load %d: %w", loadID, domain.ErrNotFound))
		return
	}

	invoice, err := h.svcs.Settlements.DeliverLoad(r.Context(), loadID, req.DeliveredAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceResponse{
		InvoiceUID:       invoice.UID.String(),
		AmountDueInCents: invoice.AmountDueInCents,
		Status:           string(invoice.Status),
		PaymentLinkURL:   invoice.PaymentLinkURL,
		DueDate:          invoice.DueDate,
	})
}

func (h *handlers) paymentTypes(w http.ResponseWriter, r *http.Request) {
	carrierID, loadID, err := carrierLoad(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	types, err := h.svcs.Terms.GetPaymentTypes(r.Context(), carrierID, loadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"instant":  types.Instant,
		"standard": types.Standard,
	})
}

type paymentDetailsResponse struct {
	AvailableToday  int64  `json:"available_today_in_cents"`
	OnBrokerPayment int64  `json:"on_broker_payment_in_cents"`
	Fees            int64  `json:"fees_in_cents"`
	Total           int64  `json:"total_in_cents"`
	TermsLink       string `json:"terms_link"`
}

func (h *handlers) paymentDetails(w http.ResponseWriter, r *http.Request) {
	carrierID, loadID, err := carrierLoad(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	instant, err := parseInstant(r.URL.Query().Get("instant"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	details, err := h.svcs.Terms.GetPaymentDetails(r.Context(), carrierID, loadID, instant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentDetailsResponse{
		AvailableToday:  details.AvailableTodayInCents,
		OnBrokerPayment: details.OnBrokerPaymentInCents,
		Fees:            details.FeesInCents,
		Total:           details.TotalInCents,
		TermsLink:       details.TermsLink,
	})
}

func parseInstant(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	instant, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.NewValidationError("instant", "must be true or false")
	}
	return instant, nil
}

type acceptRequest struct {
	Instant                bool      `json:"instant"`
	TermsAccepted          bool      `json:"terms_accepted"`
	TermsAcceptedTimestamp time.Time `json:"terms_accepted_timestamp"`
}

func (h *handlers) acceptPayment(w http.ResponseWriter, r *http.Request) {
	carrierID, loadID, err := carrierLoad(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	err = h.svcs.Terms.AcceptPaymentTerms(r.Context(), carrierID, loadID, req.Instant, req.TermsAccepted, req.TermsAcceptedTimestamp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
