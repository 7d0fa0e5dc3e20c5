package apierror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	t.Parallel()

	t.Run("formats without details", func(t *testing.T) {
		err := New("ACCOUNT_LOCKED", "Account locked", "", http.StatusUnauthorized)
		require.Equal(t, "ACCOUNT_LOCKED: Account locked", err.Error())
	})

	t.Run("formats with details", func(t *testing.T) {
		err := New("BAD_REQUEST", "invalid JSON body", "email", http.StatusBadRequest)
		require.Equal(t, "BAD_REQUEST: invalid JSON body (email)", err.Error())
	})

	t.Run("is found through wrapping", func(t *testing.T) {
		err := fmt.Errorf("login: %w", New("INVALID_CREDENTIALS", "Invalid email or password", "", http.StatusUnauthorized))

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
		require.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)
	})
}
