// Package credit talks to the instant-pay financing provider.
package credit

import (
	"context"
	"time"
)

// Business is a broker or carrier as registered with the provider. ExternalID
// is the party uid.
type Business struct {
	ExternalID       string
	Name             string
	MCNumber         string
	Email            string
	ContactFirstName string
	ContactLastName  string
	Street           string
	City             string
	State            string
	Zip              string
	TaxID            string
	PayoutAccountID  string
}

type Invoice struct {
	ExternalID      string
	AmountInCents   int64
	Description     string
	PayorExternalID string
	PayeeExternalID string
	DueDate         time.Time
	InvoiceDate     time.Time
	PaymentDate     *time.Time
}

type LoanOffer struct {
	InvoiceExternalID string
	PrincipalInCents  int64
	FeeInCents        int64
	TermsLink         string
}

type Funding struct {
	LoanID        string
	TransactionID string
}

// Client is the provider API. It performs no ledger writes. Errors wrap
// domain.ErrProviderUnavailable (retryable) or domain.ErrProviderRejected.
type Client interface {
	SaveBusiness(ctx context.Context, b Business) error
	GetPreapproval(ctx context.Context, businessID string) (bool, error)
	GetCreditLimit(ctx context.Context, businessID string) (int64, error)
	// RequestLoanOffer returns nil, nil when the provider has no offer for the invoice.
	RequestLoanOffer(ctx context.Context, carrierID, invoiceExternalID string) (*LoanOffer, error)
	FundLoan(ctx context.Context, carrierID, invoiceExternalID string, amountInCents int64) (*Funding, error)
	RecordRepayment(ctx context.Context, carrierID, invoiceExternalID, transferID string, amountInCents int64) error
	SendInvoice(ctx context.Context, inv Invoice) error
}
