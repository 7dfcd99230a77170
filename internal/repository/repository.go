package repository

import (
	"context"
	"time"

	"nauvus-backend/internal/domain"
)

type LoadRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Load, error)
	// UpdateStatus moves the load from -> to. It returns domain.ErrInvalidTransition
	// when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id int64, from, to domain.LoadStatus, deliveredDate *time.Time) error
	CountDeliveryDocuments(ctx context.Context, loadID int64) (int, error)
	ListDeliveryDocuments(ctx context.Context, loadID int64) ([]domain.DeliveryDocument, error)
}

type PartyRepository interface {
	GetBroker(ctx context.Context, id int64) (*domain.Broker, error)
	GetCarrier(ctx context.Context, id int64) (*domain.Carrier, error)
}

type SettlementRepository interface {
	Create(ctx context.Context, s *domain.LoadSettlement) error
	GetByID(ctx context.Context, id int64) (*domain.LoadSettlement, error)
	GetByLoadID(ctx context.Context, loadID int64) (*domain.LoadSettlement, error)
	UpdateTerms(ctx context.Context, s *domain.LoadSettlement) error
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *domain.Invoice) error
	GetByID(ctx context.Context, id int64) (*domain.Invoice, error)
	GetBySettlementID(ctx context.Context, settlementID int64) (*domain.Invoice, error)
	Update(ctx context.Context, inv *domain.Invoice) error
	SetDocumentKey(ctx context.Context, id int64, key string) error
	ListByCarrier(ctx context.Context, carrierID int64) ([]domain.Invoice, error)
	// ListUnpaidExposure returns one row per invoice of the carrier whose status is not paid.
	ListUnpaidExposure(ctx context.Context, carrierID int64) ([]domain.UnpaidExposure, error)
	ListUnpaid(ctx context.Context, limit int) ([]domain.Invoice, error)
	// ListPaidWithOpenLoad returns paid invoices whose load has not reached completed.
	ListPaidWithOpenLoad(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Invoice, error)
}

type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error
	// FindForInvoice returns nil, nil when the invoice has no loan.
	FindForInvoice(ctx context.Context, invoiceID int64) (*domain.Loan, error)
	Update(ctx context.Context, loan *domain.Loan) error
	ListOutstandingPastDue(ctx context.Context, now time.Time) ([]domain.Loan, error)
}

type PaymentRepository interface {
	// Create returns domain.ErrDuplicate when a guarded row already exists.
	Create(ctx context.Context, p *domain.Payment) error
	// FindBySettlementAndType returns nil, nil when no row exists.
	FindBySettlementAndType(ctx context.Context, settlementID int64, t domain.PaymentType) (*domain.Payment, error)
	ListBySettlement(ctx context.Context, settlementID int64) ([]domain.Payment, error)
	ListByCarrier(ctx context.Context, carrierID int64) ([]domain.Payment, error)
}

type ProcessedEventRepository interface {
	// Claim inserts a processing marker for eventID. It returns false when the event
	// is already done or claimed more recently than staleBefore.
	Claim(ctx context.Context, eventID, eventType string, staleBefore time.Time) (bool, error)
	MarkDone(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type StatusHistoryRepository interface {
	Record(ctx context.Context, h *domain.StatusHistory) error
	ListByEntity(ctx context.Context, entity domain.EntityType, entityID int64) ([]domain.StatusHistory, error)
}

// Repos groups repositories bound to a single connection or transaction.
type Repos struct {
	Loads       LoadRepository
	Parties     PartyRepository
	Settlements SettlementRepository
	Invoices    InvoiceRepository
	Loans       LoanRepository
	Payments    PaymentRepository
	Events      ProcessedEventRepository
	History     StatusHistoryRepository
}

// TxRunner executes fn inside one database transaction. fn receives repositories
// bound to that transaction; a non-nil return rolls it back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *Repos) error) error
}
