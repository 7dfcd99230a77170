package service

import (
	"context"
	"time"

	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/repository"
)

// Store is the persistence the services run against.
type Store interface {
	repository.TxRunner
	Repositories() *repository.Repos
}

// LoadStateMachine is the only writer of Load.CurrentStatus.
type LoadStateMachine interface {
	// Transition moves load to target using repositories bound to the caller's
	// transaction. On error nothing is written and load is unchanged.
	Transition(ctx context.Context, tx *repository.Repos, load *domain.Load, target domain.LoadStatus, actor string) error
}

type SettlementBuilder interface {
	DeliverLoad(ctx context.Context, loadID int64, deliveredAt time.Time) (*domain.Invoice, error)
}

// CreditProvider composes calls to the financing provider with the ledger
// writes that record them.
type CreditProvider interface {
	RegisterBusiness(ctx context.Context, b credit.Business) error
	GetPreapproval(ctx context.Context, businessID string) (bool, error)
	GetCreditLimit(ctx context.Context, businessID string) (int64, error)
	// GetLoanOffer returns nil, nil unless both parties are preapproved and the
	// carrier has a positive credit limit.
	GetLoanOffer(ctx context.Context, invoice *domain.Invoice, brokerUID, carrierUID string) (*domain.Loan, error)
	AcceptLoan(ctx context.Context, loan *domain.Loan) error
	RepayLoan(ctx context.Context, loan *domain.Loan) (*domain.Payment, error)
	SendInvoice(ctx context.Context, invoice *domain.Invoice) error
}

type PaymentEventProcessor interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) error
}

type PayoutDistributor interface {
	ProcessBrokerPayment(ctx context.Context, invoice *domain.Invoice, brokerPayment *domain.Payment) error
}

type BalanceCalculator interface {
	GetUnpaidBalance(ctx context.Context, carrierID int64) (int64, error)
	GetCarrierBalance(ctx context.Context, carrierID int64) (*CarrierBalance, error)
}

type CarrierBalance struct {
	CurrentInCents int64 `json:"current_in_cents"`
	PendingInCents int64 `json:"pending_in_cents"`
}

type PaymentTermsService interface {
	GetPaymentTypes(ctx context.Context, carrierID, loadID int64) (*PaymentTypes, error)
	GetPaymentDetails(ctx context.Context, carrierID, loadID int64, instant bool) (*PaymentDetails, error)
	AcceptPaymentTerms(ctx context.Context, carrierID, loadID int64, instant, accepted bool, acceptedAt time.Time) error
}

type PaymentTypes struct {
	Instant  bool `json:"instant"`
	Standard bool `json:"standard"`
}

type PaymentDetails struct {
	AvailableTodayInCents  int64  `json:"available_today_in_cents"`
	OnBrokerPaymentInCents int64  `json:"on_broker_payment_in_cents"`
	FeesInCents            int64  `json:"fees_in_cents"`
	TotalInCents           int64  `json:"total_in_cents"`
	TermsLink              string `json:"terms_link"`
}

type RegistrationService interface {
	RegisterBroker(ctx context.Context, brokerID int64) error
	RegisterCarrier(ctx context.Context, carrierID int64) error
}

type ReconciliationService interface {
	ReconcileStalledPayouts(ctx context.Context, paidBefore time.Time, limit int) (int, error)
	MarkLateLoans(ctx context.Context, now time.Time) (int, error)
	SyncUnpaidInvoices(ctx context.Context, limit int) (int, error)
}

type InvoiceDocumentService interface {
	Render(ctx context.Context, invoice *domain.Invoice) ([]byte, error)
	Publish(ctx context.Context, invoiceID int64) error
}

type ExportService interface {
	ExportCarrierSettlements(ctx context.Context, carrierID int64) ([]byte, error)
}

type EmailService interface {
	SendInvoice(ctx context.Context, msg InvoiceEmail) error
	SendAlert(ctx context.Context, to, subject, body string) error
}

// InvoiceEmail is an invoice addressed to the broker.
type InvoiceEmail struct {
	To            string
	ToName        string
	Invoice       *domain.Invoice
	PDF           []byte
	DownloadURL   string
	DocumentLinks []string
}

type Notifier interface {
	NotifyPayout(ctx context.Context, carrier *domain.Carrier, loadID, amountInCents int64) error
}

// Alerter reports conditions an operator must look at. It never fails the caller.
type Alerter interface {
	Alert(ctx context.Context, kind AlertKind, err error, attrs ...any)
}

type AlertKind string

const (
	AlertInconsistentState AlertKind = "inconsistent_state"
	AlertPayoutFailed      AlertKind = "payout_failed"
	AlertWebhookFailed     AlertKind = "webhook_failed"
)
