package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/trentd187/archery-club/internal/apperrors"
)

// classify maps a GORM error onto an apperrors kind. what names the row or operation
// for the message. Errors that are already classified pass through unchanged.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}

	var classified *apperrors.Error
	switch {
	case errors.As(err, &classified):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Wrap(err, apperrors.KindValidation, what+": already exists")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperrors.Wrap(err, apperrors.KindValidation, what+": references a missing row")
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return apperrors.Wrap(err, apperrors.KindValidation, what+": value out of range")
	default:
		return apperrors.Storage(err, what)
	}
}
