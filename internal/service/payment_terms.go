package service

import (
	"context"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

const (
	standardTermsLink = "http://terms"
	termsActor        = "carrier"
)

type paymentTermsService struct {
	store  Store
	credit CreditProvider
	loads  LoadStateMachine
}

func NewPaymentTermsService(store Store, creditProvider CreditProvider, loads LoadStateMachine) PaymentTermsService {
	return &paymentTermsService{store: store, credit: creditProvider, loads: loads}
}

// deliveredLoad returns the load when it belongs to carrierID and is awaiting
// a payment choice.
func (s *paymentTermsService) deliveredLoad(ctx context.Context, carrierID, loadID int64) (*domain.Load, error) {
	load, err := s.store.Repositories().Loads.GetByID(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if load.CarrierID != carrierID {
		return nil, fmt.Errorf("load %d: %w", loadID, domain.ErrNotFound)
	}
	if load.CurrentStatus != domain.LoadStatusDelivered {
		return nil, fmt.Errorf("%w: load %d is %s, not delivered", domain.ErrMissingPrerequisite, loadID, load.CurrentStatus)
	}
	return load, nil
}

type settlementView struct {
	load       *domain.Load
	settlement *domain.LoadSettlement
	invoice    *domain.Invoice
}

func (s *paymentTermsService) view(ctx context.Context, carrierID, loadID int64) (*settlementView, error) {
	load, err := s.deliveredLoad(ctx, carrierID, loadID)
	if err != nil {
		return nil, err
	}
	repos := s.store.Repositories()
	settlement, err := repos.Settlements.GetByLoadID(ctx, loadID)
	if err != nil {
		return nil, err
	}
	invoice, err := repos.Invoices.GetBySettlementID(ctx, settlement.ID)
	if err != nil {
		return nil, err
	}
	return &settlementView{load: load, settlement: settlement, invoice: invoice}, nil
}

func (s *paymentTermsService) GetPaymentTypes(ctx context.Context, carrierID, loadID int64) (*PaymentTypes, error) {
	load, err := s.deliveredLoad(ctx, carrierID, loadID)
	if err != nil {
		return nil, err
	}
	broker, err := s.store.Repositories().Parties.GetBroker(ctx, load.BrokerID)
	if err != nil {
		return nil, err
	}

	instant, err := s.credit.GetPreapproval(ctx, broker.UID.String())
	if err != nil {
		logger.Debug("Preapproval lookup failed, instant pay disabled", "brokerID", broker.ID, "error", err)
		instant = false
	}
	return &PaymentTypes{Instant: instant, Standard: true}, nil
}

func (s *paymentTermsService) GetPaymentDetails(ctx context.Context, carrierID, loadID int64, instant bool) (*PaymentDetails, error) {
	v, err := s.view(ctx, carrierID, loadID)
	if err != nil {
		return nil, err
	}

	// The provider sees the invoice even when the carrier waits for the broker.
	if err := s.credit.SendInvoice(ctx, v.invoice); err != nil {
		logger.Warn("Failed to send invoice to credit provider", "invoiceID", v.invoice.ID, "error", err)
	}

	total := v.invoice.AmountDueInCents
	fee := v.settlement.NauvusFeesInCents
	if !instant {
		return &PaymentDetails{
			AvailableTodayInCents:  0,
			OnBrokerPaymentInCents: total - fee,
			FeesInCents:            fee,
			TotalInCents:           total,
			TermsLink:              standardTermsLink,
		}, nil
	}

	loan, err := s.offeredLoan(ctx, v)
	if err != nil {
		return nil, err
	}
	fees := loan.FeeAmountInCents + fee
	return &PaymentDetails{
		AvailableTodayInCents:  loan.PrincipalAmountInCents,
		OnBrokerPaymentInCents: total - loan.PrincipalAmountInCents - fees,
		FeesInCents:            fees,
		TotalInCents:           total,
		TermsLink:              loan.Terms,
	}, nil
}

// offeredLoan returns the invoice's persisted loan, asking the provider for an
// offer and saving it when there is none yet.
func (s *paymentTermsService) offeredLoan(ctx context.Context, v *settlementView) (*domain.Loan, error) {
	repos := s.store.Repositories()
	loan, err := repos.Loans.FindForInvoice(ctx, v.invoice.ID)
	if err != nil {
		return nil, err
	}
	if loan != nil {
		return loan, nil
	}

	broker, err := repos.Parties.GetBroker(ctx, v.load.BrokerID)
	if err != nil {
		return nil, err
	}
	carrier, err := repos.Parties.GetCarrier(ctx, v.load.CarrierID)
	if err != nil {
		return nil, err
	}
	loan, err = s.credit.GetLoanOffer(ctx, v.invoice, broker.UID.String(), carrier.UID.String())
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, domain.NewValidationError("instant", "instant payment is not available for this load")
	}

	err = s.store.WithTx(ctx, func(tx *repository.Repos) error {
		if err := tx.Loans.Create(ctx, loan); err != nil {
			return err
		}
		return recordHistory(ctx, tx, domain.EntityLoan, loan.ID, string(loan.Status), creditActor)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *paymentTermsService) AcceptPaymentTerms(ctx context.Context, carrierID, loadID int64, instant, accepted bool, acceptedAt time.Time) error {
	if !accepted {
		return domain.NewValidationError("terms_accepted", "terms must be accepted")
	}
	if acceptedAt.IsZero() {
		return domain.NewValidationError("terms_accepted_timestamp", "is required")
	}

	v, err := s.view(ctx, carrierID, loadID)
	if err != nil {
		return err
	}

	var loan *domain.Loan
	if instant {
		loan, err = s.store.Repositories().Loans.FindForInvoice(ctx, v.invoice.ID)
		if err != nil {
			return err
		}
		if loan == nil {
			return domain.NewValidationError("instant", "no loan offer to accept, request payment details first")
		}
		if err := s.credit.AcceptLoan(ctx, loan); err != nil {
			return err
		}
	}

	settlement := *v.settlement
	settlement.AcceptTerms(acceptedAt, loan)

	return s.store.WithTx(ctx, func(tx *repository.Repos) error {
		if err := tx.Settlements.UpdateTerms(ctx, &settlement); err != nil {
			return err
		}
		if loan != nil {
			if err := tx.Loans.Update(ctx, loan); err != nil {
				return err
			}
		}
		return s.loads.Transition(ctx, tx, v.load, domain.LoadStatusPartialSettled, termsActor)
	})
}
