package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository"
)

const creditActor = "credit_provider"

// loanService keeps the provider HTTP client apart from the ledger writes so a
// provider call and its repository write are separate, retryable steps.
type loanService struct {
	client           credit.Client
	gateway          gateway.Gateway
	store            Store
	repaymentAccount string
}

func NewCreditProvider(client credit.Client, gw gateway.Gateway, store Store, repaymentAccount string) CreditProvider {
	return &loanService{
		client:           client,
		gateway:          gw,
		store:            store,
		repaymentAccount: repaymentAccount,
	}
}

func (s *loanService) RegisterBusiness(ctx context.Context, b credit.Business) error {
	logger.ExternalServiceCall("oatfi", "SaveBusiness", "externalID", b.ExternalID)
	err := s.client.SaveBusiness(ctx, b)
	logger.ExternalServiceResult("oatfi", "SaveBusiness", err, "externalID", b.ExternalID)
	return err
}

func (s *loanService) GetPreapproval(ctx context.Context, businessID string) (bool, error) {
	return s.client.GetPreapproval(ctx, businessID)
}

func (s *loanService) GetCreditLimit(ctx context.Context, businessID string) (int64, error) {
	return s.client.GetCreditLimit(ctx, businessID)
}

func (s *loanService) GetLoanOffer(ctx context.Context, invoice *domain.Invoice, brokerUID, carrierUID string) (*domain.Loan, error) {
	log := logger.WithMethod("loanService.GetLoanOffer")

	brokerOK, err := s.client.GetPreapproval(ctx, brokerUID)
	if err != nil {
		return nil, err
	}
	carrierOK, err := s.client.GetPreapproval(ctx, carrierUID)
	if err != nil {
		return nil, err
	}
	if !brokerOK || !carrierOK {
		log.Debug("No offer, party not preapproved", "broker", brokerOK, "carrier", carrierOK)
		return nil, nil
	}

	limit, err := s.client.GetCreditLimit(ctx, carrierUID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		log.Debug("No offer, carrier has no credit", "carrierUID", carrierUID)
		return nil, nil
	}

	offer, err := s.client.RequestLoanOffer(ctx, carrierUID, invoice.UID.String())
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, nil
	}

	return &domain.Loan{
		UID:                    uuid.New(),
		InvoiceID:              invoice.ID,
		PrincipalAmountInCents: offer.PrincipalInCents,
		FeeAmountInCents:       offer.FeeInCents,
		Status:                 domain.LoanStatusOffered,
		Lender:                 domain.LenderOatfi,
		Terms:                  offer.TermsLink,
	}, nil
}

func (s *loanService) AcceptLoan(ctx context.Context, loan *domain.Loan) error {
	repos := s.store.Repositories()
	invoice, err := repos.Invoices.GetByID(ctx, loan.InvoiceID)
	if err != nil {
		return err
	}

	funded, err := repos.Payments.FindBySettlementAndType(ctx, invoice.LoadSettlementID, domain.PaymentTypeLoanPayout)
	if err != nil {
		return err
	}
	if funded != nil {
		logger.Info("Loan already funded", "loanUID", loan.UID, "ref", funded.ExternalRefID)
		return nil
	}

	carrier, err := repos.Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		return err
	}

	logger.ExternalServiceCall("oatfi", "FundLoan", "loanUID", loan.UID)
	funding, err := s.client.FundLoan(ctx, carrier.UID.String(), invoice.UID.String(), loan.PrincipalAmountInCents)
	logger.ExternalServiceResult("oatfi", "FundLoan", err, "loanUID", loan.UID)
	if err != nil {
		return fmt.Errorf("fund loan %s: %w", loan.UID, err)
	}

	updated := *loan
	updated.Status = domain.LoanStatusOutstanding
	updated.LenderLoanID = funding.LoanID

	err = s.store.WithTx(ctx, func(tx *repository.Repos) error {
		if updated.ID == 0 {
			if err := tx.Loans.Create(ctx, &updated); err != nil {
				return err
			}
		} else if err := tx.Loans.Update(ctx, &updated); err != nil {
			return err
		}
		if err := tx.Payments.Create(ctx, &domain.Payment{
			LoadSettlementID: invoice.LoadSettlementID,
			AmountInCents:    updated.PrincipalAmountInCents,
			Type:             domain.PaymentTypeLoanPayout,
			ExternalRefID:    funding.TransactionID,
		}); err != nil {
			return err
		}
		return recordHistory(ctx, tx, domain.EntityLoan, updated.ID, string(updated.Status), creditActor)
	})
	if err != nil {
		return err
	}

	*loan = updated
	return nil
}

func (s *loanService) RepayLoan(ctx context.Context, loan *domain.Loan) (*domain.Payment, error) {
	repos := s.store.Repositories()
	invoice, err := repos.Invoices.GetByID(ctx, loan.InvoiceID)
	if err != nil {
		return nil, err
	}
	settlement, err := repos.Settlements.GetByID(ctx, invoice.LoadSettlementID)
	if err != nil {
		return nil, err
	}
	carrier, err := repos.Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		return nil, err
	}

	repayment, err := repos.Payments.FindBySettlementAndType(ctx, settlement.ID, domain.PaymentTypeLoanRepayment)
	if err != nil {
		return nil, err
	}
	if repayment == nil {
		amount := loan.RepaymentAmountInCents()
		transfer, err := s.gateway.CreateTransfer(ctx, gateway.TransferRequest{
			AmountInCents:  amount,
			Destination:    s.repaymentAccount,
			Description:    fmt.Sprintf("Repayment of loan %s for load %d", loan.UID, settlement.LoadID),
			IdempotencyKey: transferKey(settlement.ID, domain.PaymentTypeLoanRepayment),
		})
		metrics.ObserveTransfer(string(domain.PaymentTypeLoanRepayment), metrics.ResultOf(err), amount)
		if err != nil {
			return nil, fmt.Errorf("transfer loan repayment: %w", err)
		}

		// The ledger row is written before the provider is told, so a retry
		// resumes from here without moving money again.
		repayment, err = createOrReload(ctx, repos, &domain.Payment{
			LoadSettlementID: settlement.ID,
			AmountInCents:    amount,
			Type:             domain.PaymentTypeLoanRepayment,
			ExternalRefID:    transfer.ID,
		})
		if err != nil {
			return nil, err
		}
	}

	if loan.Status == domain.LoanStatusClosed {
		return repayment, nil
	}

	logger.ExternalServiceCall("oatfi", "RecordRepayment", "loanUID", loan.UID)
	err = s.client.RecordRepayment(ctx, carrier.UID.String(), invoice.UID.String(), repayment.ExternalRefID, repayment.AmountInCents)
	logger.ExternalServiceResult("oatfi", "RecordRepayment", err, "loanUID", loan.UID)
	if err != nil {
		return nil, fmt.Errorf("record loan repayment: %w", err)
	}

	updated := *loan
	updated.Status = domain.LoanStatusClosed
	err = s.store.WithTx(ctx, func(tx *repository.Repos) error {
		if err := tx.Loans.Update(ctx, &updated); err != nil {
			return err
		}
		return recordHistory(ctx, tx, domain.EntityLoan, updated.ID, string(updated.Status), creditActor)
	})
	if err != nil {
		return nil, err
	}

	*loan = updated
	return repayment, nil
}

func (s *loanService) SendInvoice(ctx context.Context, invoice *domain.Invoice) error {
	repos := s.store.Repositories()
	broker, err := repos.Parties.GetBroker(ctx, invoice.BrokerID)
	if err != nil {
		return err
	}
	carrier, err := repos.Parties.GetCarrier(ctx, invoice.CarrierID)
	if err != nil {
		return err
	}

	logger.ExternalServiceCall("oatfi", "SendInvoice", "invoiceUID", invoice.UID)
	err = s.client.SendInvoice(ctx, credit.Invoice{
		ExternalID:      invoice.UID.String(),
		AmountInCents:   invoice.AmountDueInCents,
		Description:     invoice.Description,
		PayorExternalID: broker.UID.String(),
		PayeeExternalID: carrier.UID.String(),
		DueDate:         invoice.DueDate,
		InvoiceDate:     invoice.CreatedAt,
		PaymentDate:     invoice.PaidDate,
	})
	logger.ExternalServiceResult("oatfi", "SendInvoice", err, "invoiceUID", invoice.UID)
	return err
}

// createOrReload inserts a guarded ledger row. When a concurrent writer already
// inserted the same guarded row, that row is returned instead.
func createOrReload(ctx context.Context, repos *repository.Repos, p *domain.Payment) (*domain.Payment, error) {
	err := repos.Payments.Create(ctx, p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrDuplicate) {
		return nil, err
	}
	existing, ferr := repos.Payments.FindBySettlementAndType(ctx, p.LoadSettlementID, p.Type)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

func recordHistory(ctx context.Context, tx *repository.Repos, entity domain.EntityType, id int64, status, actor string) error {
	return tx.History.Record(ctx, &domain.StatusHistory{
		EntityType: entity,
		EntityID:   id,
		Status:     status,
		Actor:      actor,
	})
}

// transferKey is the gateway idempotency key of an outgoing transfer. One
// settlement moves each guarded payment type at most once.
func transferKey(settlementID int64, t domain.PaymentType) string {
	return fmt.Sprintf("%d-%s", settlementID, t)
}
