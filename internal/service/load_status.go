package service

import (
	"context"
	"errors"
	"fmt"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository"
)

// allowedTransitions lists every legal edge of the load lifecycle, lateral
// branches included. completed is terminal.
var allowedTransitions = map[domain.LoadStatus][]domain.LoadStatus{
	domain.LoadStatusDraft:          {domain.LoadStatusAvailable},
	domain.LoadStatusAvailable:      {domain.LoadStatusPending, domain.LoadStatusBooked, domain.LoadStatusDraft},
	domain.LoadStatusPending:        {domain.LoadStatusBooked, domain.LoadStatusAvailable},
	domain.LoadStatusBooked:         {domain.LoadStatusUpcoming, domain.LoadStatusAvailable},
	domain.LoadStatusUpcoming:       {domain.LoadStatusUnderway, domain.LoadStatusBooked},
	domain.LoadStatusUnderway:       {domain.LoadStatusDelivered},
	domain.LoadStatusDelivered:      {domain.LoadStatusPartialSettled, domain.LoadStatusCompleted},
	domain.LoadStatusPartialSettled: {domain.LoadStatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to domain.LoadStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type loadStateMachine struct{}

func NewLoadStateMachine() LoadStateMachine {
	return &loadStateMachine{}
}

func (m *loadStateMachine) Transition(ctx context.Context, tx *repository.Repos, load *domain.Load, target domain.LoadStatus, actor string) error {
	from := load.CurrentStatus
	if !CanTransition(from, target) {
		return &domain.TransitionError{From: from, To: target}
	}

	if err := m.checkPrerequisites(ctx, tx, load, target); err != nil {
		return err
	}

	deliveredDate := load.DeliveredDate
	if target != domain.LoadStatusDelivered {
		deliveredDate = nil
	}
	if err := tx.Loads.UpdateStatus(ctx, load.ID, from, target, deliveredDate); err != nil {
		return err
	}
	if err := tx.History.Record(ctx, &domain.StatusHistory{
		EntityType: domain.EntityLoad,
		EntityID:   load.ID,
		Status:     string(target),
		Actor:      actor,
	}); err != nil {
		return err
	}

	load.CurrentStatus = target
	metrics.IncTransition(string(target))
	logger.Info("Load status changed", "load_id", load.ID, "from", from, "to", target, "actor", actor)
	return nil
}

func (m *loadStateMachine) checkPrerequisites(ctx context.Context, tx *repository.Repos, load *domain.Load, target domain.LoadStatus) error {
	switch target {
	case domain.LoadStatusDelivered:
		count, err := tx.Loads.CountDeliveryDocuments(ctx, load.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: load %d has no delivery documents", domain.ErrMissingPrerequisite, load.ID)
		}
	case domain.LoadStatusCompleted:
		settlement, err := tx.Settlements.GetByLoadID(ctx, load.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: load %d has no settlement", domain.ErrMissingPrerequisite, load.ID)
		}
		if err != nil {
			return err
		}
		payout, err := tx.Payments.FindBySettlementAndType(ctx, settlement.ID, domain.PaymentTypeToCarrier)
		if err != nil {
			return err
		}
		if payout == nil {
			return fmt.Errorf("%w: load %d has no carrier payout", domain.ErrMissingPrerequisite, load.ID)
		}
	}
	return nil
}
