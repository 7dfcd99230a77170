package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"nauvus-backend/internal/domain"
)

const uniqueViolation = "23505"

// mapError translates driver errors into domain sentinels. Both lib/pq and pgx
// report unique violations, depending on which driver the store was opened with.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%s: %w", what, domain.ErrDuplicate)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, domain.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}
