package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
)

// mapError turns concurrent-write failures into fulfillment.ErrStorageConflict.
// A unique violation means another unit of work got there first; the retry
// will observe its result.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation, codeLockNotAvailable:
		return fmt.Errorf("%w: %s (%s)", fulfillment.ErrStorageConflict, pgErr.Message, pgErr.Code)
	}
	return err
}
