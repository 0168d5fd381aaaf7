package hostio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	has, err := s.Has("gsn")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, s.Set("gsn", []byte{0x01, 0x00}))

	has, err = s.Has("gsn")
	require.NoError(t, err)
	require.True(t, has)

	v, ok, err := s.Get("gsn")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x00}, v)

	require.NoError(t, s.Remove("gsn"))
	_, ok, err = s.Get("gsn")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStorageGetMissingKeyIsNotAnError(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	v, ok, err := s.Get("does_not_exist")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

func TestFileStorageKeyWithSeparatorDoesNotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("pairing/../../escape", []byte("x")))

	v, ok, err := s.Get("pairing/../../escape")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("x"), v)
}
