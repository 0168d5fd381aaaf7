package model

const (
	MaxServicesPerAccessory        = 100
	MaxCharacteristicsPerService   = 100
	MaxAccessoriesPerBridge        = 150
)

// ValidateAccessory checks a single accessory's structural limits in
// isolation (service/characteristic counts, Accessory Information presence).
func ValidateAccessory(a *Accessory) error {
	if len(a.Services) > MaxServicesPerAccessory {
		return &ValidationError{Kind: TooManyServices, Msg: uitoa(uint64(len(a.Services))) + " services"}
	}
	if !a.HasAccessoryInformation() {
		return &ValidationError{Kind: MissingAccessoryInfo}
	}
	for _, s := range a.Services {
		if len(s.Characteristics) > MaxCharacteristicsPerService {
			return &ValidationError{Kind: TooManyCharacteristics, Msg: uitoa(uint64(len(s.Characteristics))) + " characteristics"}
		}
	}
	return nil
}

// ValidateRegistration checks whether accessory a can be added to a database
// that already holds existing, also enforcing the bridge-wide accessory cap
// and AID uniqueness.
func ValidateRegistration(existing []*Accessory, a *Accessory) error {
	if err := ValidateAccessory(a); err != nil {
		return err
	}
	for _, e := range existing {
		if e.AID == a.AID {
			return &ValidationError{Kind: DuplicateAccessoryId, Msg: uitoa(a.AID)}
		}
	}
	if len(existing)+1 > MaxAccessoriesPerBridge {
		return &ValidationError{Kind: TooManyAccessories, Msg: uitoa(uint64(len(existing) + 1))}
	}
	return nil
}
