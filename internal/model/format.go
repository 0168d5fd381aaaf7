package model

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format identifies a characteristic's value type.
type Format string

const (
	FormatBool    Format = "bool"
	FormatUInt8   Format = "uint8"
	FormatUInt16  Format = "uint16"
	FormatUInt32  Format = "uint32"
	FormatUInt64  Format = "uint64"
	FormatInt32   Format = "int"
	FormatFloat   Format = "float"
	FormatString  Format = "string"
	FormatData    Format = "data"
	FormatTLV8    Format = "tlv8"
)

// GATTPresentationByte returns the single-byte GATT presentation format
// code for f, per spec.md §4.8.
func GATTPresentationByte(f Format) byte {
	switch f {
	case FormatBool:
		return 0x01
	case FormatUInt8:
		return 0x04
	case FormatUInt16:
		return 0x06
	case FormatUInt32:
		return 0x08
	case FormatUInt64:
		return 0x0A
	case FormatInt32:
		return 0x10
	case FormatFloat:
		return 0x14
	case FormatString:
		return 0x19
	case FormatData, FormatTLV8:
		return 0x1B
	default:
		return 0x19
	}
}

// Value is a tagged union over a characteristic's possible value types.
// Exactly one field is meaningful, selected by Format.
type Value struct {
	Format Format
	Bool   bool
	UInt8  uint8
	UInt16 uint16
	UInt32 uint32
	UInt64 uint64
	Int32  int32
	Float  float32
	Str    string
	Bytes  []byte
}

// EncodeBinary renders v in HAP's little-endian binary encoding, used by
// the BLE transport's CharacteristicRead response body.
func EncodeBinary(v Value) ([]byte, error) {
	switch v.Format {
	case FormatBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case FormatUInt8:
		return []byte{v.UInt8}, nil
	case FormatUInt16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v.UInt16)
		return b, nil
	case FormatUInt32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v.UInt32)
		return b, nil
	case FormatUInt64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v.UInt64)
		return b, nil
	case FormatInt32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.Int32))
		return b, nil
	case FormatFloat:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.Float))
		return b, nil
	case FormatString:
		return []byte(v.Str), nil
	case FormatData, FormatTLV8:
		return v.Bytes, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrFormatMismatch, v.Format)
	}
}

// DecodeBinary parses buf per format f. It rejects buffers shorter than the
// declared format's fixed width.
func DecodeBinary(f Format, buf []byte) (Value, error) {
	switch f {
	case FormatBool:
		if len(buf) < 1 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, Bool: buf[0] != 0}, nil
	case FormatUInt8:
		if len(buf) < 1 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, UInt8: buf[0]}, nil
	case FormatUInt16:
		if len(buf) < 2 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, UInt16: binary.LittleEndian.Uint16(buf)}, nil
	case FormatUInt32:
		if len(buf) < 4 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, UInt32: binary.LittleEndian.Uint32(buf)}, nil
	case FormatUInt64:
		if len(buf) < 8 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, UInt64: binary.LittleEndian.Uint64(buf)}, nil
	case FormatInt32:
		if len(buf) < 4 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, Int32: int32(binary.LittleEndian.Uint32(buf))}, nil
	case FormatFloat:
		if len(buf) < 4 {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, Float: math.Float32frombits(binary.LittleEndian.Uint32(buf))}, nil
	case FormatString:
		return Value{Format: f, Str: string(buf)}, nil
	case FormatData, FormatTLV8:
		b := make([]byte, len(buf))
		copy(b, buf)
		return Value{Format: f, Bytes: b}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown format %q", ErrFormatMismatch, f)
	}
}
