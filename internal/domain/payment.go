package domain

import "time"

type PaymentType string

const (
	PaymentTypeFromBroker    PaymentType = "from_broker"
	PaymentTypeToCarrier     PaymentType = "to_carrier"
	PaymentTypeFee           PaymentType = "fee"
	PaymentTypeLoanRepayment PaymentType = "loan_repayment"
	PaymentTypeLoanPayout    PaymentType = "loan_payout"
)

// Payment is an immutable ledger row for one money movement.
type Payment struct {
	ID               int64       `json:"id"`
	LoadSettlementID int64       `json:"load_settlement_id"`
	AmountInCents    int64       `json:"amount_in_cents"`
	Type             PaymentType `json:"type"`
	ExternalRefID    string      `json:"external_ref_id"`
	CreatedAt        time.Time   `json:"created_at"`
}

// IsOutgoing reports whether the row moves money out of the platform balance
// collected from the broker.
func (p *Payment) IsOutgoing() bool {
	switch p.Type {
	case PaymentTypeToCarrier, PaymentTypeFee, PaymentTypeLoanRepayment:
		return true
	}
	return false
}

type ProcessedEventStatus string

const (
	ProcessedEventProcessing ProcessedEventStatus = "processing"
	ProcessedEventDone       ProcessedEventStatus = "done"
)

// ProcessedEvent marks a gateway webhook event id as claimed or handled.
type ProcessedEvent struct {
	EventID     string               `json:"event_id"`
	EventType   string               `json:"event_type"`
	Status      ProcessedEventStatus `json:"status"`
	ClaimedAt   time.Time            `json:"claimed_at"`
	ProcessedAt *time.Time           `json:"processed_at,omitempty"`
}
