package status

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	t.Run("string code", func(t *testing.T) {
		for _, code := range KnownCodes {
			require.Equal(t, strconv.Itoa(int(code)), StringCode(code))
		}
	})

	t.Run("every known code has a reason", func(t *testing.T) {
		for _, code := range KnownCodes {
			require.NotEmpty(t, Text(code), code)
		}

		require.Empty(t, Text(418))
	})

	t.Run("code of", func(t *testing.T) {
		require.Equal(t, NotFound, CodeOf(ErrNotFound))
		require.Equal(t, Forbidden, CodeOf(fmt.Errorf("resolve: %w", ErrAccessDenied)))
		require.Equal(t, InternalServerError, CodeOf(fmt.Errorf("plain")))
	})
}
