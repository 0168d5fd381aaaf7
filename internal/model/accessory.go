package model

// Accessory is identified by a 64-bit AID and owns an ordered list of
// Services. AID 1 is reserved for the primary accessory on non-bridge
// devices.
type Accessory struct {
	AID      uint64
	Services []*Service
}

// ServiceByIID returns the service with the given IID, if any.
func (a *Accessory) ServiceByIID(iid uint16) *Service {
	for _, s := range a.Services {
		if s.IID == iid {
			return s
		}
	}
	return nil
}

// HasAccessoryInformation reports whether a has the mandatory Accessory
// Information service.
func (a *Accessory) HasAccessoryInformation() bool {
	for _, s := range a.Services {
		if s.FullType == "" && s.Type == AccessoryInformationType {
			return true
		}
	}
	return false
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
