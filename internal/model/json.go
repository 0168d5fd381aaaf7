package model

import "encoding/base64"

// JSONCharacteristic mirrors the per-characteristic JSON shape from
// spec.md §4.6.
type JSONCharacteristic struct {
	Type             string      `json:"type"`
	IID              uint16      `json:"iid"`
	Perms            []string    `json:"perms"`
	Format           string      `json:"format"`
	Value            interface{} `json:"value,omitempty"`
	Unit             string      `json:"unit,omitempty"`
	MinValue         *float64    `json:"minValue,omitempty"`
	MaxValue         *float64    `json:"maxValue,omitempty"`
	MinStep          *float64    `json:"minStep,omitempty"`
	MaxLen           *int        `json:"maxLen,omitempty"`
	MaxDataLen       *int        `json:"maxDataLen,omitempty"`
	Description      string      `json:"description,omitempty"`
	ValidValues      []int       `json:"valid-values,omitempty"`
	ValidValuesRange []int       `json:"valid-values-range,omitempty"`
}

type JSONService struct {
	Type            string               `json:"type"`
	IID             uint16               `json:"iid"`
	Primary         bool                 `json:"primary,omitempty"`
	Hidden          bool                 `json:"hidden,omitempty"`
	Linked          []uint16             `json:"linked,omitempty"`
	Characteristics []JSONCharacteristic `json:"characteristics"`
}

type JSONAccessory struct {
	AID      uint64        `json:"aid"`
	Services []JSONService `json:"services"`
}

type JSONAccessoriesResponse struct {
	Accessories []JSONAccessory `json:"accessories"`
}

// ValueAsJSON converts a typed Value into the interface{} the JSON encoder
// will render as a bool/number/string. Exported for the transport layer's
// `PUT /characteristics` echo and event-push bodies.
func ValueAsJSON(v Value) interface{} {
	switch v.Format {
	case FormatBool:
		return v.Bool
	case FormatUInt8:
		return v.UInt8
	case FormatUInt16:
		return v.UInt16
	case FormatUInt32:
		return v.UInt32
	case FormatUInt64:
		return v.UInt64
	case FormatInt32:
		return v.Int32
	case FormatFloat:
		return v.Float
	case FormatString:
		return v.Str
	case FormatData, FormatTLV8:
		return v.Bytes
	default:
		return nil
	}
}

// ToJSONCharacteristic renders c for the attributes-tree response.
// includeValue should be true only when c grants PairedRead.
func ToJSONCharacteristic(c *Characteristic, includeValue bool) JSONCharacteristic {
	perms := make([]string, 0, len(c.Perms))
	for _, p := range c.Perms {
		perms = append(perms, string(p))
	}
	out := JSONCharacteristic{
		Type:        c.ShortTypeHex(),
		IID:         c.IID,
		Perms:       perms,
		Format:      string(c.Format),
		Unit:        c.Metadata.Unit,
		MinValue:    c.Metadata.MinValue,
		MaxValue:    c.Metadata.MaxValue,
		MinStep:     c.Metadata.MinStep,
		MaxLen:      c.Metadata.MaxLen,
		MaxDataLen:  c.Metadata.MaxDataLen,
		Description: c.Metadata.Description,
		ValidValues: c.Metadata.ValidValues,
	}
	if c.Metadata.ValidValuesRange != nil {
		out.ValidValuesRange = []int{c.Metadata.ValidValuesRange.Min, c.Metadata.ValidValuesRange.Max}
	}
	if includeValue && c.Perms.Has(PermPairedRead) {
		out.Value = ValueAsJSON(c.Value)
	}
	return out
}

// ValueFromJSON converts a decoded JSON scalar (as produced by
// encoding/json's float64/string/bool default unmarshaling) into a typed
// Value of format f, for `PUT /characteristics` request bodies.
func ValueFromJSON(f Format, raw interface{}) (Value, error) {
	switch f {
	case FormatBool:
		switch v := raw.(type) {
		case bool:
			return Value{Format: f, Bool: v}, nil
		case float64:
			return Value{Format: f, Bool: v != 0}, nil
		}
	case FormatUInt8, FormatUInt16, FormatUInt32, FormatUInt64, FormatInt32:
		n, ok := raw.(float64)
		if !ok {
			break
		}
		switch f {
		case FormatUInt8:
			return Value{Format: f, UInt8: uint8(n)}, nil
		case FormatUInt16:
			return Value{Format: f, UInt16: uint16(n)}, nil
		case FormatUInt32:
			return Value{Format: f, UInt32: uint32(n)}, nil
		case FormatUInt64:
			return Value{Format: f, UInt64: uint64(n)}, nil
		case FormatInt32:
			return Value{Format: f, Int32: int32(n)}, nil
		}
	case FormatFloat:
		n, ok := raw.(float64)
		if !ok {
			break
		}
		return Value{Format: f, Float: float32(n)}, nil
	case FormatString:
		s, ok := raw.(string)
		if !ok {
			break
		}
		return Value{Format: f, Str: s}, nil
	case FormatData, FormatTLV8:
		s, ok := raw.(string)
		if !ok {
			break
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, ErrFormatMismatch
		}
		return Value{Format: f, Bytes: b}, nil
	}
	return Value{}, ErrFormatMismatch
}

// ToJSONAccessories renders the full database for `GET /accessories`.
func (d *Database) ToJSONAccessories() JSONAccessoriesResponse {
	resp := JSONAccessoriesResponse{Accessories: make([]JSONAccessory, 0, len(d.accessories))}
	for _, a := range d.accessories {
		ja := JSONAccessory{AID: a.AID, Services: make([]JSONService, 0, len(a.Services))}
		for _, s := range a.Services {
			js := JSONService{
				Type:            s.ShortTypeHex(),
				IID:             s.IID,
				Primary:         s.Primary,
				Hidden:          s.Hidden,
				Linked:          s.LinkedIIDs,
				Characteristics: make([]JSONCharacteristic, 0, len(s.Characteristics)),
			}
			for _, c := range s.Characteristics {
				js.Characteristics = append(js.Characteristics, ToJSONCharacteristic(c, true))
			}
			ja.Services = append(ja.Services, js)
		}
		resp.Accessories = append(resp.Accessories, ja)
	}
	return resp
}
