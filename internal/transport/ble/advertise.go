package ble

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

// Fixed fields of the manufacturer-specific advertising payload, per
// spec.md §4.7's HAP Accessory Information Advertising Format.
const (
	advType byte = 0x06
	advSTL  byte = 0x31
	advCV   byte = 0x02
)

// StatusFlagNotPaired is set in StatusFlags while the accessory has no
// pairings.
const StatusFlagNotPaired byte = 0x01

// SetupHash derives the 4-byte SetupHash advertising field: the first four
// bytes of SHA-512(SetupID || DeviceID).
func SetupHash(setupID string, deviceID [6]byte) [4]byte {
	h := sha512.New()
	h.Write([]byte(setupID))
	h.Write(deviceID[:])
	sum := h.Sum(nil)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// Advertisement builds the 19-byte steady-state manufacturer data payload:
// `Type | STL | StatusFlags | DeviceID(6) | ACID(u16 LE) | GSN(u16 LE) |
// CN(u8) | CV | SetupHash(4)`.
func Advertisement(statusFlags byte, deviceID [6]byte, acid, gsn uint16, configNumber uint8, setupID string) []byte {
	out := make([]byte, 0, 19)
	out = append(out, advType, advSTL, statusFlags)
	out = append(out, deviceID[:]...)
	out = appendLE16(out, acid)
	out = appendLE16(out, gsn)
	out = append(out, configNumber, advCV)
	hash := SetupHash(setupID, deviceID)
	out = append(out, hash[:]...)
	return out
}

func appendLE16(out []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(out, b[:]...)
}

// ParseDeviceID renders a `XX:XX:XX:XX:XX:XX` accessory pairing ID into
// its 6 raw bytes for the advertising DeviceID field.
func ParseDeviceID(pairingID string) [6]byte {
	var out [6]byte
	var b [6]int
	n, err := parseHexPairs(pairingID, b[:])
	if err != nil || n != 6 {
		return out
	}
	for i, v := range b {
		out[i] = byte(v)
	}
	return out
}

func parseHexPairs(s string, out []int) (int, error) {
	n := 0
	i := 0
	for i < len(s) && n < len(out) {
		if s[i] == ':' {
			i++
			continue
		}
		if i+2 > len(s) {
			return n, errShortPairingID
		}
		hi, err1 := hexDigit(s[i])
		lo, err2 := hexDigit(s[i+1])
		if err1 != nil || err2 != nil {
			return n, err1
		}
		out[n] = hi<<4 | lo
		n++
		i += 2
	}
	return n, nil
}

func hexDigit(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	default:
		return 0, errBadHexDigit
	}
}

var errShortPairingID = errors.New("ble: pairing id too short for a 6-byte device id")
var errBadHexDigit = errors.New("ble: invalid hex digit in pairing id")
