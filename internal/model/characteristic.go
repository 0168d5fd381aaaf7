package model

// Permission is a single bit in a characteristic's permission set.
type Permission string

const (
	PermPairedRead     Permission = "pr"
	PermPairedWrite    Permission = "pw"
	PermNotify         Permission = "ev"
	PermAdditionalAuth Permission = "aa"
	PermTimedWrite     Permission = "tw"
	PermHidden         Permission = "hd"
	PermWriteResponse  Permission = "wr"
	PermBroadcast      Permission = "bc"
)

// Permissions is a set of Permission values; order is insertion order, which
// matters for JSON serialization of the "perms" array.
type Permissions []Permission

func (p Permissions) Has(perm Permission) bool {
	for _, x := range p {
		if x == perm {
			return true
		}
	}
	return false
}

// ValidValues and ValidValuesRange describe optional value-domain metadata.
type ValidValuesRange struct {
	Min int
	Max int
}

// Metadata holds optional semantic metadata for a characteristic. All
// fields are nil/zero unless explicitly set by the accessory author.
type Metadata struct {
	Unit             string
	MinValue         *float64
	MaxValue         *float64
	MinStep          *float64
	MaxLen           *int
	MaxDataLen       *int
	Description      string
	ValidValues      []int
	ValidValuesRange *ValidValuesRange
}

// ReadFunc is invoked to compute the current value of a characteristic on a
// PairedRead, or nil when the stored value is authoritative on its own.
// Returning an error maps to HAP status -70402 (service unavailable) at the
// transport.
type ReadFunc func() (Value, error)

// WriteFunc is invoked when a controller writes a new value. Returning an
// error maps to HAP status -70402 at the transport.
type WriteFunc func(v Value) error

// Characteristic is a single typed attribute within a Service.
type Characteristic struct {
	Type        uint32 // HAP short type; full UUID derived via model.FullUUID when non-standard
	FullType    string // set instead of Type for vendor-defined 128-bit UUIDs
	IID         uint16
	Format      Format
	Perms       Permissions
	Value       Value
	Metadata    Metadata
	OnRead      ReadFunc
	OnWrite     WriteFunc
}

// UUID returns the characteristic's wire-form UUID (full 128-bit form if
// FullType is set, otherwise derived from the short Type).
func (c *Characteristic) UUID() string {
	if c.FullType != "" {
		return c.FullType
	}
	return FullUUID(c.Type)
}

// ShortTypeHex returns the upper-case hex short type as used in JSON bodies.
func (c *Characteristic) ShortTypeHex() string {
	if c.FullType != "" {
		return ShortTypeHex(c.FullType)
	}
	return NormalizeShortType(c.Type)
}

// structuralKey is the IID-manager key for this characteristic within a
// service: "C:<charType>:<parentServiceType>:<aid>".
func (c *Characteristic) structuralKey(aid uint64, serviceType string) string {
	return "C:" + c.ShortTypeHex() + ":" + serviceType + ":" + uitoa(aid)
}
