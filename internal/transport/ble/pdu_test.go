package ble

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReassemblerSingleFragmentNoBody(t *testing.T) {
	r := &Reassembler{}
	chunk := []byte{0x00, byte(OpCharacteristicRead), 0x05, 0x10, 0x00}
	req, err := r.Feed(chunk)
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, OpCharacteristicRead, req.Opcode)
	require.Equal(t, byte(0x05), req.TID)
	require.EqualValues(t, 0x10, req.IID)
	require.Empty(t, req.Body)
}

func TestReassemblerSingleFragmentWithBody(t *testing.T) {
	r := &Reassembler{}
	body := []byte{0xAA, 0xBB, 0xCC}
	chunk := append([]byte{0x00, byte(OpCharacteristicWrite), 0x07, 0x20, 0x00, byte(len(body)), 0x00}, body...)
	req, err := r.Feed(chunk)
	require.NoError(t, err)
	require.Equal(t, OpCharacteristicWrite, req.Opcode)
	require.Equal(t, body, req.Body)
}

func TestReassemblerAcrossFragments(t *testing.T) {
	r := &Reassembler{}
	body := make([]byte, 20)
	for i := range body {
		body[i] = byte(i)
	}
	first := append([]byte{0x00, byte(OpCharacteristicWrite), 0x01, 0x04, 0x00, byte(len(body)), 0x00}, body[:10]...)
	req, err := r.Feed(first)
	require.Nil(t, req)
	require.ErrorIs(t, err, ErrIncomplete)

	second := append([]byte{cfContinuation, 0x01}, body[10:]...)
	req, err = r.Feed(second)
	require.NoError(t, err)
	require.Equal(t, body, req.Body)
}

func TestReassemblerTIDMismatchAbortsSilently(t *testing.T) {
	r := &Reassembler{}
	body := make([]byte, 10)
	first := append([]byte{0x00, byte(OpCharacteristicWrite), 0x01, 0x04, 0x00, byte(len(body)), 0x00}, body[:5]...)
	_, err := r.Feed(first)
	require.ErrorIs(t, err, ErrIncomplete)

	wrongTID := append([]byte{cfContinuation, 0x02}, body[5:]...)
	req, err := r.Feed(wrongTID)
	require.Nil(t, req)
	require.ErrorIs(t, err, ErrTIDMismatch)
}

func TestEncodeResponse(t *testing.T) {
	out := EncodeResponse(0x09, PDUStatusSuccess, []byte{0x01, 0x02})
	require.Equal(t, []byte{0x02, 0x09, 0x00, 0x02, 0x00, 0x01, 0x02}, out)
}
