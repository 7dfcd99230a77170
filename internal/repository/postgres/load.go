package postgres

import (
	"context"
	"fmt"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

type loadRepository struct {
	db DBTX
}

func NewLoadRepository(db DBTX) repository.LoadRepository {
	return &loadRepository{db: db}
}

func (r *loadRepository) GetByID(ctx context.Context, id int64) (*domain.Load, error) {
	logger.EnterMethod("loadRepository.GetByID", "loadID", id)

	query := `
		SELECT id, current_status, final_rate, broker_id, carrier_id, driver_id,
		       origin_city, destination_city, invoice_email, delivered_date, created_at, updated_at
		FROM loads WHERE id = $1
	`
	l := &domain.Load{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.CurrentStatus, &l.FinalRate, &l.BrokerID, &l.CarrierID, &l.DriverID,
		&l.OriginCity, &l.DestinationCity, &l.InvoiceEmail, &l.DeliveredDate, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		logger.ExitMethodWithError("loadRepository.GetByID", err, "loadID", id)
		return nil, mapError(err, fmt.Sprintf("load %d", id))
	}

	logger.ExitMethod("loadRepository.GetByID", "loadID", id, "status", l.CurrentStatus)
	return l, nil
}

func (r *loadRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.LoadStatus, deliveredDate *time.Time) error {
	logger.EnterMethod("loadRepository.UpdateStatus", "loadID", id, "from", from, "to", to)

	query := `
		UPDATE loads SET current_status = $1, delivered_date = COALESCE($2, delivered_date), updated_at = $3
		WHERE id = $4 AND current_status = $5
	`
	logger.DatabaseCall("UPDATE", "loads.current_status", "loadID", id)
	res, err := r.db.ExecContext(ctx, query, to, deliveredDate, time.Now(), id, from)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return mapError(err, fmt.Sprintf("update load %d", id))
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err)
	if err != nil {
		return err
	}
	if n == 0 {
		// Concurrent writer moved the load first.
		return &domain.TransitionError{From: from, To: to}
	}

	logger.ExitMethod("loadRepository.UpdateStatus", "loadID", id)
	return nil
}

func (r *loadRepository) CountDeliveryDocuments(ctx context.Context, loadID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM delivery_documents WHERE load_id = $1`, loadID).Scan(&n)
	if err != nil {
		return 0, mapError(err, "count delivery documents")
	}
	return n, nil
}

func (r *loadRepository) ListDeliveryDocuments(ctx context.Context, loadID int64) ([]domain.DeliveryDocument, error) {
	query := `SELECT id, load_id, storage_key, type, created_at FROM delivery_documents WHERE load_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, loadID)
	if err != nil {
		return nil, mapError(err, "list delivery documents")
	}
	defer rows.Close()

	var docs []domain.DeliveryDocument
	for rows.Next() {
		var d domain.DeliveryDocument
		if err := rows.Scan(&d.ID, &d.LoadID, &d.StorageKey, &d.Type, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
