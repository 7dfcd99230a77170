package service

import (
	"context"

	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
)

type balanceCalculator struct {
	store   Store
	gateway gateway.Gateway
}

func NewBalanceCalculator(store Store, gw gateway.Gateway) BalanceCalculator {
	return &balanceCalculator{store: store, gateway: gw}
}

// GetUnpaidBalance is what the carrier will still receive from invoices the
// broker has not paid: amount due less platform fees and funded loans.
func (c *balanceCalculator) GetUnpaidBalance(ctx context.Context, carrierID int64) (int64, error) {
	rows, err := c.store.Repositories().Invoices.ListUnpaidExposure(ctx, carrierID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, row := range rows {
		total += row.NetInCents()
	}
	return total, nil
}

func (c *balanceCalculator) GetCarrierBalance(ctx context.Context, carrierID int64) (*CarrierBalance, error) {
	carrier, err := c.store.Repositories().Parties.GetCarrier(ctx, carrierID)
	if err != nil {
		return nil, err
	}

	pending, err := c.GetUnpaidBalance(ctx, carrierID)
	if err != nil {
		return nil, err
	}

	balance := &CarrierBalance{PendingInCents: pending}
	if carrier.PayoutAccountID == "" {
		return balance, nil
	}

	logger.ExternalServiceCall("stripe", "RetrieveBalance", "carrierID", carrierID)
	current, err := c.gateway.RetrieveBalance(ctx, carrier.PayoutAccountID)
	logger.ExternalServiceResult("stripe", "RetrieveBalance", err, "carrierID", carrierID)
	if err != nil {
		return nil, err
	}
	balance.CurrentInCents = current
	return balance, nil
}
