package database

import (
	stderrors "errors"
	"strings"

	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.InvalidField(col, "must not be empty")

	default:
		return nil
	}
}

// Translate returns the mapped AppError when err is a known pq error, err otherwise.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// mapCheckConstraint maps CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "cantidad"):
		return errors.InvalidField("cantidad", "must not be negative")
	case strings.Contains(constraint, "costo"):
		return errors.InvalidField("costoUnitario", "must not be negative")
	case strings.Contains(constraint, "estado"):
		return errors.InvalidField("estado", "must be one of: BORRADOR, ENVIADA, CONFIRMADA, RECIBIDA, CERRADA, CANCELADA")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "alertas_open"):
		return "an open alert already exists for this trigger"
	case strings.Contains(constraint, "lotes_codigo"):
		return "a batch with this code already exists for the product"
	default:
		return "a record with these values already exists"
	}
}
