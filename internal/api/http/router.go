package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository"
	"nauvus-backend/internal/security"
	"nauvus-backend/internal/service"
)

// Services are the application services reachable over HTTP.
type Services struct {
	Events         service.PaymentEventProcessor
	Settlements    service.SettlementBuilder
	Terms          service.PaymentTermsService
	Balances       service.BalanceCalculator
	Exports        service.ExportService
	Reconciliation service.ReconciliationService
	Registration   service.RegistrationService
	Documents      service.InvoiceDocumentService
	Loads          repository.LoadRepository
}

// NewRouter builds the API router. Every route is named; the name selects its
// security level in config.EndpointSecurityConfig.
func NewRouter(svcs *Services, tokens security.TokenManager) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger)
	router.Use(NewAuthMiddleware(tokens).Handler)

	h := &handlers{svcs: svcs}

	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet).Name("Healthz")
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name("Metrics")
	router.HandleFunc("/webhooks/stripe", h.stripeWebhook).Methods(http.MethodPost).Name("StripeWebhook")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/loads/{id:[0-9]+}/deliver", h.deliverLoad).Methods(http.MethodPost).Name("DeliverLoad")
	api.HandleFunc("/loads/{id:[0-9]+}/payments/types", h.paymentTypes).Methods(http.MethodGet).Name("GetPaymentTypes")
	api.HandleFunc("/loads/{id:[0-9]+}/payments/details", h.paymentDetails).Methods(http.MethodGet).Name("GetPaymentDetails")
	api.HandleFunc("/loads/{id:[0-9]+}/payments/accept", h.acceptPayment).Methods(http.MethodPost).Name("AcceptPayment")
	api.HandleFunc("/carriers/me/balance", h.balance).Methods(http.MethodGet).Name("GetBalance")
	api.HandleFunc("/carriers/me/settlements/export", h.exportSettlements).Methods(http.MethodGet).Name("ExportSettlements")
	api.HandleFunc("/admin/payouts/reconcile", h.reconcilePayouts).Methods(http.MethodPost).Name("ReconcilePayouts")
	api.HandleFunc("/admin/brokers/{id:[0-9]+}/register", h.registerBroker).Methods(http.MethodPost).Name("RegisterBroker")
	api.HandleFunc("/admin/carriers/{id:[0-9]+}/register", h.registerCarrier).Methods(http.MethodPost).Name("RegisterCarrier")
	api.HandleFunc("/admin/invoices/{id:[0-9]+}/publish", h.publishInvoice).Methods(http.MethodPost).Name("PublishInvoice")

	return router
}

type handlers struct {
	svcs *Services
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := logger.ContextWith(r.Context(), "request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(rec, r.WithContext(ctx))
		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(ctx))
	})
}
