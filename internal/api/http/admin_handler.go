package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"nauvus-backend/internal/domain"
)

func idFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("id", "invalid id")
	}
	return id, nil
}

func (h *handlers) registerBroker(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err == nil {
		err = h.svcs.Registration.RegisterBroker(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) registerCarrier(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err == nil {
		err = h.svcs.Registration.RegisterCarrier(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publishInvoice re-renders and re-sends an invoice, e.g. after a bounced email.
func (h *handlers) publishInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err == nil {
		err = h.svcs.Documents.Publish(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
