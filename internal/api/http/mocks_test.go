package http

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/service"
)

type MockEvents struct{ mock.Mock }

func (m *MockEvents) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	args := m.Called(ctx, payload, signatureHeader)
	return args.Error(0)
}

type MockSettlements struct{ mock.Mock }

func (m *MockSettlements) DeliverLoad(ctx context.Context, loadID int64, deliveredAt time.Time) (*domain.Invoice, error) {
	args := m.Called(ctx, loadID, deliveredAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invoice), args.Error(1)
}

type MockTerms struct{ mock.Mock }

func (m *MockTerms) GetPaymentTypes(ctx context.Context, carrierID, loadID int64) (*service.PaymentTypes, error) {
	args := m.Called(ctx, carrierID, loadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PaymentTypes), args.Error(1)
}

func (m *MockTerms) GetPaymentDetails(ctx context.Context, carrierID, loadID int64, instant bool) (*service.PaymentDetails, error) {
	args := m.Called(ctx, carrierID, loadID, instant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PaymentDetails), args.Error(1)
}

func (m *MockTerms) AcceptPaymentTerms(ctx context.Context, carrierID, loadID int64, instant, accepted bool, acceptedAt time.Time) error {
	args := m.Called(ctx, carrierID, loadID, instant, accepted, acceptedAt)
	return args.Error(0)
}

type MockBalances struct{ mock.Mock }

func (m *MockBalances) GetUnpaidBalance(ctx context.Context, carrierID int64) (int64, error) {
	args := m.Called(ctx, carrierID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalances) GetCarrierBalance(ctx context.Context, carrierID int64) (*service.CarrierBalance, error) {
	args := m.Called(ctx, carrierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CarrierBalance), args.Error(1)
}

type MockExports struct{ mock.Mock }

func (m *MockExports) ExportCarrierSettlements(ctx context.Context, carrierID int64) ([]byte, error) {
	args := m.Called(ctx, carrierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockReconciliation struct{ mock.Mock }

func (m *MockReconciliation) ReconcileStalledPayouts(ctx context.Context, paidBefore time.Time, limit int) (int, error) {
	args := m.Called(ctx, paidBefore, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockReconciliation) MarkLateLoans(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockReconciliation) SyncUnpaidInvoices(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

type MockRegistration struct{ mock.Mock }

func (m *MockRegistration) RegisterBroker(ctx context.Context, brokerID int64) error {
	return m.Called(ctx, brokerID).Error(0)
}

func (m *MockRegistration) RegisterCarrier(ctx context.Context, carrierID int64) error {
	return m.Called(ctx, carrierID).Error(0)
}

type MockDocuments struct{ mock.Mock }

func (m *MockDocuments) Render(ctx context.Context, invoice *domain.Invoice) ([]byte, error) {
	args := m.Called(ctx, invoice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDocuments) Publish(ctx context.Context, invoiceID int64) error {
	return m.Called(ctx, invoiceID).Error(0)
}

type MockLoads struct{ mock.Mock }

func (m *MockLoads) GetByID(ctx context.Context, id int64) (*domain.Load, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Load), args.Error(1)
}

func (m *MockLoads) UpdateStatus(ctx context.Context, id int64, from, to domain.LoadStatus, deliveredDate *time.Time) error {
	return m.Called(ctx, id, from, to, deliveredDate).Error(0)
}

func (m *MockLoads) CountDeliveryDocuments(ctx context.Context, loadID int64) (int, error) {
	args := m.Called(ctx, loadID)
	return args.Int(0), args.Error(1)
}

func (m *MockLoads) ListDeliveryDocuments(ctx context.Context, loadID int64) ([]domain.DeliveryDocument, error) {
	args := m.Called(ctx, loadID)
	return args.Get(0).([]domain.DeliveryDocument), args.Error(1)
}
