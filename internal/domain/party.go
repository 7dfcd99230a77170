package domain

import "github.com/google/uuid"

// Broker is the paying party of an invoice.
type Broker struct {
	ID               int64     `json:"id"`
	UID              uuid.UUID `json:"uid"`
	Name             string    `json:"name"`
	MCNumber         string    `json:"mc_number"`
	Email            string    `json:"email"`
	ContactFirstName string    `json:"contact_first_name"`
	ContactLastName  string    `json:"contact_last_name"`
	Street           string    `json:"street"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	ZipCode          string    `json:"zip_code"`
}

// Carrier is the payee of an invoice. PayoutAccountID is the gateway connected
// account that receives the carrier balance.
type Carrier struct {
	ID               int64     `json:"id"`
	UID              uuid.UUID `json:"uid"`
	UserID           int64     `json:"user_id"`
	OrganizationName string    `json:"organization_name"`
	MCNumber         string    `json:"mc_number"`
	Email            string    `json:"email"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Street           string    `json:"street"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	ZipCode          string    `json:"zip_code"`
	PayoutAccountID  string    `json:"payout_account_id"`
	PushToken        string    `json:"-"`
}
