package tlv8_test

import (
	"bytes"
	"testing"

	"github.com/srg/hapd/internal/tlv8"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	items := tlv8.Items{}.AddByte(6, 1).AddString(1, "Pair-Setup")

	encoded := tlv8.Encode(items)
	decoded := tlv8.Decode(encoded)

	require.Equal(t, items, decoded)
}

func TestEncodeEmptyValue(t *testing.T) {
	items := tlv8.Items{}.Add(7, nil)
	encoded := tlv8.Encode(items)

	require.Equal(t, []byte{7, 0}, encoded)
	require.Equal(t, items, tlv8.Decode(encoded))
}

func TestFragmentationOver255Bytes(t *testing.T) {
	value := bytes.Repeat([]byte{0xAB}, 600)
	items := tlv8.Items{}.Add(5, value)

	encoded := tlv8.Encode(items)

	// 600 = 255 + 255 + 90: three segments, each with a 2-byte header.
	require.Len(t, encoded, 600+6)
	require.Equal(t, byte(5), encoded[0])
	require.Equal(t, byte(255), encoded[1])
	require.Equal(t, byte(5), encoded[257])
	require.Equal(t, byte(255), encoded[258])
	require.Equal(t, byte(5), encoded[514])
	require.Equal(t, byte(90), encoded[515])

	decoded := tlv8.Decode(encoded)
	require.Len(t, decoded, 1)
	require.Equal(t, byte(5), decoded[0].Type)
	require.Equal(t, value, decoded[0].Value)
}

func TestDecodeStopsAtTruncatedItem(t *testing.T) {
	items := tlv8.Items{}.AddByte(6, 1).AddString(1, "iOSPairingID")
	encoded := tlv8.Encode(items)
	truncated := encoded[:len(encoded)-3] // cut into the middle of the string value

	decoded := tlv8.Decode(truncated)

	require.Len(t, decoded, 1)
	require.Equal(t, byte(6), decoded[0].Type)
}

func TestFirstGetStringGetByte(t *testing.T) {
	items := tlv8.Items{}.AddByte(6, 3).AddString(1, "abc")

	b, ok := items.GetByte(6)
	require.True(t, ok)
	require.Equal(t, byte(3), b)

	s, ok := items.GetString(1)
	require.True(t, ok)
	require.Equal(t, "abc", s)

	_, ok = items.GetByte(99)
	require.False(t, ok)
}

func TestEncodedValueIsolatedFromCallerMutation(t *testing.T) {
	v := []byte{1, 2, 3}
	items := tlv8.Items{}.Add(1, v)
	v[0] = 0xFF

	got, _ := items.First(1)
	require.Equal(t, []byte{1, 2, 3}, got.Value)
}
