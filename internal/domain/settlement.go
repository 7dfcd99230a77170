package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoadSettlement is the financial record attached 1:1 to a delivered load.
// The fee fields are a snapshot taken when the load was delivered.
type LoadSettlement struct {
	ID                int64           `json:"id"`
	LoadID            int64           `json:"load_id"`
	NauvusFeePercent  decimal.Decimal `json:"nauvus_fee_percent"`
	NauvusFeesInCents int64           `json:"nauvus_fees_in_cents"`
	TermsAccepted     bool            `json:"terms_accepted"`
	TermsAcceptedAt   *time.Time      `json:"terms_accepted_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AcceptTerms marks the settlement terms as accepted and, when a loan is
// attached, the loan terms too.
func (s *LoadSettlement) AcceptTerms(at time.Time, loan *Loan) {
	s.TermsAccepted = true
	s.TermsAcceptedAt = &at
	if loan != nil {
		loan.TermsAccepted = true
		loan.TermsAcceptedAt = &at
	}
}

type InvoiceStatus string

const (
	InvoiceStatusUnpaid           InvoiceStatus = "unpaid"
	InvoiceStatusCheckoutComplete InvoiceStatus = "checkout_complete"
	InvoiceStatusPaid             InvoiceStatus = "paid"
)

// Invoice is the billable claim against the broker, owned by a LoadSettlement.
type Invoice struct {
	ID                int64         `json:"id"`
	UID               uuid.UUID     `json:"uid"`
	LoadSettlementID  int64         `json:"load_settlement_id"`
	BrokerID          int64         `json:"broker_id"`
	CarrierID         int64         `json:"carrier_id"`
	AmountDueInCents  int64         `json:"amount_due_in_cents"`
	AmountPaidInCents int64         `json:"amount_paid_in_cents"`
	Status            InvoiceStatus `json:"status"`
	Description       string        `json:"description"`
	PaymentLinkURL    string        `json:"payment_link_url"`
	PaymentLinkID     string        `json:"payment_link_id"`
	DocumentKey       string        `json:"document_key,omitempty"`
	DueDate           time.Time     `json:"due_date"`
	PaidDate          *time.Time    `json:"paid_date,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

type LoanStatus string

const (
	LoanStatusOffered     LoanStatus = "offered"
	LoanStatusOutstanding LoanStatus = "outstanding"
	LoanStatusClosed      LoanStatus = "closed"
	LoanStatusLate        LoanStatus = "late"
	LoanStatusDefault     LoanStatus = "default"
)

const LenderOatfi = "oatfi"

// Loan is optional instant-pay financing advanced against an invoice.
type Loan struct {
	ID                     int64      `json:"id"`
	UID                    uuid.UUID  `json:"uid"`
	InvoiceID              int64      `json:"invoice_id"`
	PrincipalAmountInCents int64      `json:"principal_amount_in_cents"`
	FeeAmountInCents       int64      `json:"fee_amount_in_cents"`
	Status                 LoanStatus `json:"status"`
	Lender                 string     `json:"lender"`
	LenderLoanID           string     `json:"lender_loan_id,omitempty"`
	Terms                  string     `json:"terms"`
	TermsAccepted          bool       `json:"terms_accepted"`
	TermsAcceptedAt        *time.Time `json:"terms_accepted_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// RepaymentAmountInCents is what the lender is owed when the broker pays.
func (l *Loan) RepaymentAmountInCents() int64 {
	return l.PrincipalAmountInCents + l.FeeAmountInCents
}

// UnpaidExposure is the amount an unpaid invoice still owes the carrier once
// the platform fee and any loan are taken out.
type UnpaidExposure struct {
	InvoiceID          int64
	AmountDueInCents   int64
	FeeInCents         int64
	LoanPrincipalCents int64
	LoanFeeCents       int64
}

func (e UnpaidExposure) NetInCents() int64 {
	return e.AmountDueInCents - e.FeeInCents - e.LoanPrincipalCents - e.LoanFeeCents
}
