package service

import (
	"context"
	"strings"

	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/domain"
)

type registrationService struct {
	store  Store
	credit CreditProvider
}

// NewRegistrationService registers booking parties with the credit provider so
// preapproval can be decided before the load is delivered.
func NewRegistrationService(store Store, creditProvider CreditProvider) RegistrationService {
	return &registrationService{store: store, credit: creditProvider}
}

func (s *registrationService) RegisterBroker(ctx context.Context, brokerID int64) error {
	broker, err := s.store.Repositories().Parties.GetBroker(ctx, brokerID)
	if err != nil {
		return err
	}
	return s.credit.RegisterBusiness(ctx, BrokerBusiness(broker))
}

func (s *registrationService) RegisterCarrier(ctx context.Context, carrierID int64) error {
	carrier, err := s.store.Repositories().Parties.GetCarrier(ctx, carrierID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(carrier.MCNumber) == "" {
		return domain.NewValidationError("mc_number", "carrier must have an MC number to register")
	}
	return s.credit.RegisterBusiness(ctx, CarrierBusiness(carrier))
}

func BrokerBusiness(b *domain.Broker) credit.Business {
	return credit.Business{
		ExternalID:       b.UID.String(),
		Name:             b.Name,
		MCNumber:         b.MCNumber,
		Email:            b.Email,
		ContactFirstName: b.ContactFirstName,
		ContactLastName:  b.ContactLastName,
		Street:           b.Street,
		City:             b.City,
		State:            b.State,
		Zip:              b.ZipCode,
	}
}

func CarrierBusiness(c *domain.Carrier) credit.Business {
	return credit.Business{
		ExternalID:       c.UID.String(),
		Name:             c.OrganizationName,
		MCNumber:         c.MCNumber,
		Email:            c.Email,
		ContactFirstName: c.FirstName,
		ContactLastName:  c.LastName,
		Street:           c.Street,
		City:             c.City,
		State:            c.State,
		Zip:              c.ZipCode,
		PayoutAccountID:  c.PayoutAccountID,
	}
}
