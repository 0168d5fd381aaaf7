package main

import (
	"sync"

	"github.com/srg/hapd/internal/model"
)

// HAP short types for the characteristics a minimal Lightbulb accessory
// needs; the core package carries no type table of its own (spec.md §3
// leaves concrete accessory trees to the application).
const (
	charIdentify         = 0x14
	charManufacturer     = 0x20
	charModelChar        = 0x21
	charName             = 0x23
	charSerialNumber     = 0x30
	charFirmwareRevision = 0x52
	charOn               = 0x25

	serviceLightbulb = 0x43
)

// demoLightbulb builds a two-service accessory (Accessory Information +
// Lightbulb/On) so `hapd serve` exercises a real read/write/notify path
// instead of an empty database.
func demoLightbulb(pairingID, model_ string) *model.Accessory {
	on := &lightbulbState{}

	return &model.Accessory{
		AID: 1,
		Services: []*model.Service{
			{
				Type: model.AccessoryInformationType,
				Characteristics: []*model.Characteristic{
					{Type: charIdentify, Format: model.FormatBool, Perms: model.Permissions{model.PermPairedWrite},
						OnWrite: func(model.Value) error { return nil }},
					{Type: charManufacturer, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead},
						Value: model.Value{Format: model.FormatString, Str: "hapd"}},
					{Type: charModelChar, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead},
						Value: model.Value{Format: model.FormatString, Str: model_}},
					{Type: charName, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead},
						Value: model.Value{Format: model.FormatString, Str: "hapd Lightbulb"}},
					{Type: charSerialNumber, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead},
						Value: model.Value{Format: model.FormatString, Str: pairingID}},
					{Type: charFirmwareRevision, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead},
						Value: model.Value{Format: model.FormatString, Str: "1.0"}},
				},
			},
			{
				Type:    serviceLightbulb,
				Primary: true,
				Characteristics: []*model.Characteristic{
					{
						Type:    charOn,
						Format:  model.FormatBool,
						Perms:   model.Permissions{model.PermPairedRead, model.PermPairedWrite, model.PermNotify},
						Value:   model.Value{Format: model.FormatBool, Bool: false},
						OnRead:  on.read,
						OnWrite: on.write,
					},
				},
			},
		},
	}
}

// lightbulbState holds the one piece of mutable state the demo accessory
// exposes.
type lightbulbState struct {
	mu sync.Mutex
	on bool
}

func (s *lightbulbState) read() (model.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Value{Format: model.FormatBool, Bool: s.on}, nil
}

func (s *lightbulbState) write(v model.Value) error {
	s.mu.Lock()
	s.on = v.Bool
	s.mu.Unlock()
	return nil
}
