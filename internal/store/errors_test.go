package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/trentd187/archery-club/internal/apperrors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"not found", gorm.ErrRecordNotFound, apperrors.KindNotFound},
		{"wrapped not found", fmt.Errorf("query: %w", gorm.ErrRecordNotFound), apperrors.KindNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, apperrors.KindValidation},
		{"foreign key", gorm.ErrForeignKeyViolated, apperrors.KindValidation},
		{"check", gorm.ErrCheckConstraintViolated, apperrors.KindValidation},
		{"driver failure", errors.New("conn refused"), apperrors.KindStorage},
		{"already classified", apperrors.Validation("bad arrow"), apperrors.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.KindOf(classify(tt.err, "session 1")))
		})
	}

	assert.NoError(t, classify(nil, "noop"))
	assert.EqualError(t, classify(gorm.ErrRecordNotFound, "session 4"), "session 4 not found")
}
