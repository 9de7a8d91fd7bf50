package store

import (
	"database/sql"
	"errors"

	"bookstore/internal/apperr"

	"github.com/lib/pq"
)

// Postgres error codes the store classifies
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqNotNullViolation    = "23502"
	pqStringTooLong       = "22001"
)

func notFound(entity string) error {
	return apperr.NotFound(entity + " not found")
}

// translate maps driver errors onto apperr kinds. Errors it does not
// recognise are returned unchanged and surface as general errors.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, entity+" not found", err)
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		return apperr.Wrap(apperr.KindConflict, "Duplicate value for field: "+constraintField(pqErr), err)
	case pqForeignKeyViolation:
		return apperr.Wrap(apperr.KindBadRequest, "Foreign key constraint failed", err)
	case pqCheckViolation, pqNotNullViolation:
		return apperr.Wrap(apperr.KindBadRequest, "Invalid input data", err)
	case pqStringTooLong:
		return apperr.Wrap(apperr.KindBadRequest, "Input too long for field", err)
	}
	return err
}

func constraintField(pqErr *pq.Error) string {
	if pqErr.Constraint != "" {
		return pqErr.Constraint
	}
	if pqErr.Column != "" {
		return pqErr.Column
	}
	return pqErr.Table
}
