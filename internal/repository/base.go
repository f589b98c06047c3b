// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"
	"strings"

	"classifieds/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes mapped to application errors.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// translateError converts driver and GORM errors into *models.AppError.
// resource and id describe the record for not found messages.
func translateError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			appErr := models.NewValidationError("Referenced record does not exist")
			appErr.Err = err
			if field := constraintField(pgErr); field != "" {
				appErr.Fields = map[string]string{field: "Select a valid choice."}
			}
			return appErr
		case pgCheckViolation:
			appErr := models.NewValidationError("Value violates constraint " + pgErr.ConstraintName)
			appErr.Err = err
			return appErr
		case pgUniqueViolation:
			appErr := models.NewConflictError(resource + " already exists")
			appErr.Err = err
			return appErr
		}
	}

	return models.NewInternalError(err)
}

// constraintField guesses the form field from a foreign key constraint such as
// fk_products_category or products_category_id_fkey.
func constraintField(pgErr *pgconn.PgError) string {
	name := pgErr.ConstraintName
	switch {
	case strings.Contains(name, "category"):
		return "category"
	case strings.Contains(name, "product"):
		return "product"
	}
	return ""
}

// escapeLike escapes LIKE wildcards so user input only matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
