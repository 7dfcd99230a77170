package postgres

import (
	"context"
	"fmt"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/repository"
)

type partyRepository struct {
	db DBTX
}

func NewPartyRepository(db DBTX) repository.PartyRepository {
	return &partyRepository{db: db}
}

func (r *partyRepository) GetBroker(ctx context.Context, id int64) (*domain.Broker, error) {
	query := `
		SELECT id, uid, name, mc_number, email, contact_first_name, contact_last_name,
		       street, city, state, zip_code
		FROM brokers WHERE id = $1
	`
	b := &domain.Broker{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.UID, &b.Name, &b.MCNumber, &b.Email, &b.ContactFirstName, &b.ContactLastName,
		&b.Street, &b.City, &b.State, &b.ZipCode,
	)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("broker %d", id))
	}
	return b, nil
}

func (r *partyRepository) GetCarrier(ctx context.Context, id int64) (*domain.Carrier, error) {
	query := `
		SELECT id, uid, user_id, organization_name, mc_number, email, first_name, last_name,
		       street, city, state, zip_code, payout_account_id, push_token
		FROM carriers WHERE id = $1
	`
	c := &domain.Carrier{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UID, &c.UserID, &c.OrganizationName, &c.MCNumber, &c.Email, &c.FirstName, &c.LastName,
		&c.Street, &c.City, &c.State, &c.ZipCode, &c.PayoutAccountID, &c.PushToken,
	)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("carrier %d", id))
	}
	return c, nil
}
