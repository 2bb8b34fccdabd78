package repository

import (
	"errors"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapContention turns transient locking failures into ErrReputationContention.
func mapContention(err error) error {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return errors.Join(domain.ErrReputationContention, err)
	}
	return err
}
