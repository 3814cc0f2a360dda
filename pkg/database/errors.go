package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/scentflow/scentflow-backend/pkg/errors"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
	codeCheckViolation      = "23514"
	codeLockNotAvailable    = "55P03"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if err does not wrap a *pq.Error or the code is not mapped.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch string(pqErr.Code) {
	case codeLockNotAvailable, codeSerialization, codeDeadlock:
		return errors.ConcurrencyConflict(pqErr)

	case codeCheckViolation:
		return mapCheckConstraint(pqErr)

	case codeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case codeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case codeInvalidText:
		return errors.Validation(map[string]string{"id": "malformed identifier"})

	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsConcurrencyError reports whether err is a lock timeout, serialization
// failure or deadlock reported by Postgres.
func IsConcurrencyError(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeLockNotAvailable, codeSerialization, codeDeadlock:
		return true
	}
	return false
}

// mapCheckConstraint maps the stock CHECK constraints to domain errors.
// These only fire if a caller bypassed the service-level checks.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.InvalidAdjustment("stock quantity cannot become negative")

	case strings.Contains(constraint, "reserved_within_quantity"):
		return errors.InvalidAdjustment("reserved quantity cannot exceed quantity on hand")

	case strings.Contains(constraint, "reserved_non_negative"):
		return errors.InvalidAdjustment("reserved quantity cannot become negative")

	case strings.Contains(constraint, "stage_monotonic"):
		return errors.Validation(map[string]string{
			"quantity": "each stage quantity must not exceed the previous stage",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "locations_code"):
		return "a location with this code already exists"
	case strings.Contains(constraint, "products_sku"):
		return "a product with this SKU already exists"
	case strings.Contains(constraint, "raw_materials_code"):
		return "a raw material with this code already exists"
	case strings.Contains(constraint, "transfer_number"), strings.Contains(constraint, "order_number"):
		return "document number already issued, please retry"
	default:
		return "a record with these values already exists"
	}
}
