package model

import (
	"fmt"
	"strconv"
	"strings"
)

// BaseUUIDSuffix is the fixed tail every HAP 128-bit UUID shares.
const BaseUUIDSuffix = "-0000-1000-8000-0026BB765291"

// NormalizeShortType returns the upper-case hex short form of a HAP type,
// without leading zeros, as used in `GET /accessories` JSON ("3E", "23", ...).
func NormalizeShortType(shortType uint32) string {
	return strings.ToUpper(fmt.Sprintf("%X", shortType))
}

// FullUUID expands a 16-bit HAP short type into its full 128-bit form.
func FullUUID(shortType uint32) string {
	return fmt.Sprintf("0000%04X%s", shortType, BaseUUIDSuffix)
}

// IsShortType reports whether uuid is a short-form HAP type built on the
// base UUID, i.e. it can be losslessly rendered as a 4-hex-digit string.
func IsShortType(uuid string) bool {
	u := strings.ToUpper(uuid)
	if len(u) == 36 {
		if !strings.HasSuffix(u, strings.ToUpper(BaseUUIDSuffix)) {
			return false
		}
		prefix := u[:8]
		return strings.HasPrefix(prefix, "0000")
	}
	return len(u) <= 4
}

// UUIDBytesLE renders a full 128-bit UUID (hyphenated or short-form) as the
// 16-byte little-endian form HAP-BLE TLVs carry, i.e. the reverse of the
// UUID's standard big-endian byte order.
func UUIDBytesLE(uuid string) []byte {
	full := uuid
	if IsShortType(uuid) && len(uuid) != 36 {
		v, err := strconv.ParseUint(strings.ToUpper(uuid), 16, 32)
		if err == nil {
			full = FullUUID(uint32(v))
		}
	}
	hex := strings.ReplaceAll(full, "-", "")
	out := make([]byte, 16)
	for i := 0; i < 16 && i*2+1 < len(hex); i++ {
		b, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			continue
		}
		out[15-i] = byte(b)
	}
	return out
}

// ShortTypeHex renders uuid as the upper-case hex string used on the wire,
// collapsing a full 128-bit base-UUID form to its short type when possible.
func ShortTypeHex(uuid string) string {
	u := strings.ToUpper(uuid)
	if len(u) == 36 && strings.HasSuffix(u, strings.ToUpper(BaseUUIDSuffix)) {
		short := strings.TrimLeft(u[:8], "0")
		if short == "" {
			short = "0"
		}
		return short
	}
	v, err := strconv.ParseUint(u, 16, 32)
	if err != nil {
		return u
	}
	return strings.ToUpper(fmt.Sprintf("%X", v))
}
