package http

import (
	"fmt"
	"net/http"
	"time"
)

const reconcileBatchSize = 100

func (h *handlers) balance(w http.ResponseWriter, r *http.Request) {
	carrierID, err := CarrierIDFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.svcs.Balances.GetCarrierBalance(r.Context(), carrierID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"current_balance_in_cents": balance.CurrentInCents,
		"pending_balance_in_cents": balance.PendingInCents,
	})
}

func (h *handlers) exportSettlements(w http.ResponseWriter, r *http.Request) {
	carrierID, err := CarrierIDFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.svcs.Exports.ExportCarrierSettlements(r.Context(), carrierID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="settlements-%s.xlsx"`, time.Now().Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// reconcilePayouts lets an operator resume stalled payouts without waiting for
// the scheduled job.
func (h *handlers) reconcilePayouts(w http.ResponseWriter, r *http.Request) {
	resumed, err := h.svcs.Reconciliation.ReconcileStalledPayouts(r.Context(), time.Now(), reconcileBatchSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"resumed": resumed})
}
