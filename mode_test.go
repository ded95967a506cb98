package intcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamMode(t *testing.T) {
	mem := Memory{10, 20, 30}

	t.Run("position dereferences", func(t *testing.T) {
		v, err := PositionMode.Resolve(mem, 2, 0)
		require.NoError(t, err)
		require.Equal(t, int64(30), v)
	})

	t.Run("immediate is literal", func(t *testing.T) {
		v, err := ImmediateMode.Resolve(mem, -7, 0)
		require.NoError(t, err)
		require.Equal(t, int64(-7), v)

		// out of range operands are fine, nothing is read.
		v, err = ImmediateMode.Resolve(mem, 1000, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1000), v)
	})

	t.Run("position out of range", func(t *testing.T) {
		_, err := PositionMode.Resolve(mem, 3, 1)
		require.ErrorIs(t, err, ErrMemoryFault)

		var fault *MemoryFaultError
		require.ErrorAs(t, err, &fault)
		require.Equal(t, int64(3), fault.Addr)
		require.Equal(t, 1, fault.PC)
		require.False(t, fault.Write)

		_, err = PositionMode.Resolve(mem, -1, 1)
		require.ErrorIs(t, err, ErrMemoryFault)
	})

	t.Run("unknown digit", func(t *testing.T) {
		_, err := parseMode(2, 0, 201, 5)
		require.ErrorIs(t, err, ErrInvalidMode)

		var modeErr *ModeError
		require.ErrorAs(t, err, &modeErr)
		require.Equal(t, int64(2), modeErr.Digit)
		require.Equal(t, 5, modeErr.Addr)
	})

	require.Equal(t, "position", PositionMode.String())
	require.Equal(t, "immediate", ImmediateMode.String())
}
