package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeForIs(t *testing.T) {
	err := Clone(ErrInvalidTransition, "request already completed")
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.False(t, errors.Is(err, ErrForbidden))
	require.Equal(t, "request already completed", err.Message)
	require.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.Equal(t, ErrInternal.Code, appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.Status)

	wrapped := fmt.Errorf("outer: %w", Clone(ErrForbidden, "nope"))
	require.Equal(t, ErrForbidden.Code, FromError(wrapped).Code)
	require.Nil(t, FromError(nil))
}

func TestWrapAsUnwraps(t *testing.T) {
	err := WrapAs(ErrServiceUnavailable, sql.ErrConnDone, "sequence store unreachable")
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	require.Contains(t, err.Error(), "sequence store unreachable")
}
