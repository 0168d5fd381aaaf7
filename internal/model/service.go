package model

// Service groups an ordered list of Characteristics under a HAP service
// type, with optional links to other services (e.g. a valve linked to an
// irrigation-system service).
type Service struct {
	Type            uint32
	FullType        string
	IID             uint16
	Primary         bool
	Hidden          bool
	Characteristics []*Characteristic
	LinkedIIDs      []uint16
}

func (s *Service) UUID() string {
	if s.FullType != "" {
		return s.FullType
	}
	return FullUUID(s.Type)
}

func (s *Service) ShortTypeHex() string {
	if s.FullType != "" {
		return ShortTypeHex(s.FullType)
	}
	return NormalizeShortType(s.Type)
}

func (s *Service) structuralKey(aid uint64) string {
	return "S:" + s.ShortTypeHex() + ":" + uitoa(aid)
}

// CharacteristicByIID returns the characteristic with the given IID, if any.
func (s *Service) CharacteristicByIID(iid uint16) *Characteristic {
	for _, c := range s.Characteristics {
		if c.IID == iid {
			return c
		}
	}
	return nil
}

// AccessoryInformationType is the short type of the mandatory
// Accessory Information service every accessory must carry.
const AccessoryInformationType uint32 = 0x3E
