package presence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyPersistenceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind PersistenceKind
	}{
		{"record not found", gorm.ErrRecordNotFound, PersistenceNotFound},
		{"row level security", errors.New(`new row violates row-level security policy for table "user_presences"`), PersistencePermission},
		{"permission denied", errors.New("pq: permission denied for table user_presences"), PersistencePermission},
		{"pg permission code", errors.New("ERROR: 42501"), PersistencePermission},
		{"jwt expired", errors.New("JWT expired"), PersistenceSessionGone},
		{"token expired", errors.New("token is expired by 3m0s"), PersistenceSessionGone},
		{"foreign key", errors.New(`insert or update on table "user_presences" violates foreign key constraint "fk_trip"`), PersistenceReferential},
		{"pg fk code", errors.New("ERROR: 23503"), PersistenceReferential},
		{"anything else", errors.New("connection reset by peer"), PersistenceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := ClassifyPersistenceError(tt.err)
			require.NotNil(t, perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.NotEmpty(t, perr.Message)
			assert.ErrorIs(t, perr, tt.err)
		})
	}
}

func TestClassifyPersistenceErrorNil(t *testing.T) {
	assert.Nil(t, ClassifyPersistenceError(nil))
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	perr := &PersistenceError{Kind: PersistenceUnknown, Message: "failed", Err: cause}
	assert.Equal(t, cause, errors.Unwrap(perr))
	assert.Equal(t, "failed: boom", perr.Error())
}
