package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoadStatus string

const (
	LoadStatusDraft          LoadStatus = "draft"
	LoadStatusAvailable      LoadStatus = "available"
	LoadStatusPending        LoadStatus = "pending"
	LoadStatusBooked         LoadStatus = "booked"
	LoadStatusUpcoming       LoadStatus = "upcoming"
	LoadStatusUnderway       LoadStatus = "underway"
	LoadStatusDelivered      LoadStatus = "delivered"
	LoadStatusPartialSettled LoadStatus = "partial_settled"
	LoadStatusCompleted      LoadStatus = "completed"
)

// Load is the slice of the booked load the settlement engine reads and mutates.
// Booking and load-board import live outside this repository.
type Load struct {
	ID              int64           `json:"id"`
	CurrentStatus   LoadStatus      `json:"current_status"`
	FinalRate       decimal.Decimal `json:"final_rate"` // agreed rate in dollars
	BrokerID        int64           `json:"broker_id"`
	CarrierID       int64           `json:"carrier_id"`
	DriverID        *int64          `json:"driver_id,omitempty"`
	OriginCity      string          `json:"origin_city"`
	DestinationCity string          `json:"destination_city"`
	InvoiceEmail    string          `json:"invoice_email"`
	DeliveredDate   *time.Time      `json:"delivered_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type DocumentType string

const (
	DocumentTypeBillOfLading  DocumentType = "bill_of_lading"
	DocumentTypeLumperReceipt DocumentType = "lumper_receipt"
	DocumentTypeOther         DocumentType = "other"
)

type DeliveryDocument struct {
	ID         int64        `json:"id"`
	LoadID     int64        `json:"load_id"`
	StorageKey string       `json:"storage_key"`
	Type       DocumentType `json:"type"`
	CreatedAt  time.Time    `json:"created_at"`
}

// EntityType names the record a StatusHistory row belongs to.
type EntityType string

const (
	EntityLoad       EntityType = "load"
	EntitySettlement EntityType = "load_settlement"
	EntityInvoice    EntityType = "invoice"
	EntityLoan       EntityType = "loan"
)

type StatusHistory struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Status     string     `json:"status"`
	Actor      string     `json:"actor"`
	CreatedAt  time.Time  `json:"created_at"`
}
