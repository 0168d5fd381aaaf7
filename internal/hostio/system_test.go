package hostio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemMonotonicMillisNeverGoesBackward(t *testing.T) {
	s := NewSystem()

	first := s.MonotonicMillis()
	time.Sleep(2 * time.Millisecond)
	second := s.MonotonicMillis()

	require.GreaterOrEqual(t, second, first)
}

func TestSystemRandomBytesReturnsRequestedLengthAndVaries(t *testing.T) {
	s := NewSystem()

	a, err := s.RandomBytes(16)
	require.NoError(t, err)
	require.Len(t, a, 16)

	b, err := s.RandomBytes(16)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSystemRandomBytesZeroLength(t *testing.T) {
	s := NewSystem()

	v, err := s.RandomBytes(0)
	require.NoError(t, err)
	require.Len(t, v, 0)
}
