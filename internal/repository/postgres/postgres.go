package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	*repository.Repos
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		Repos: newRepos(db),
	}
}

func newRepos(db DBTX) *repository.Repos {
	return &repository.Repos{
		Loads:       NewLoadRepository(db),
		Parties:     NewPartyRepository(db),
		Settlements: NewSettlementRepository(db),
		Invoices:    NewInvoiceRepository(db),
		Loans:       NewLoanRepository(db),
		Payments:    NewPaymentRepository(db),
		Events:      NewProcessedEventRepository(db),
		History:     NewStatusHistoryRepository(db),
	}
}

// Open connects with either the lib/pq ("postgres") or pgx ("pgx") driver.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Repositories returns repositories bound to the connection pool.
func (s *Store) Repositories() *repository.Repos {
	return s.Repos
}

func (s *Store) WithTx(ctx context.Context, fn func(tx *repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		logger.Error("Transaction commit failed", "error", err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
