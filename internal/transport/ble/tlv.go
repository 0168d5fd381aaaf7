package ble

// BLE-layer TLV item types carried inside PDU bodies and GATT descriptors,
// distinct from the pairing package's TLV8 item types (spec.md §4.7/§8).
const (
	TLVValue                   byte = 0x01
	TLVAdditionalAuth          byte = 0x02
	TLVOrigin                  byte = 0x03
	TLVCharacteristicType      byte = 0x04
	TLVCharacteristicIID       byte = 0x05
	TLVServiceType             byte = 0x06
	TLVServiceInstanceID       byte = 0x07
	TLVTTL                     byte = 0x08
	TLVReturnResponse          byte = 0x09
	TLVCharacteristicProperties byte = 0x0A
	TLVUserDescription         byte = 0x0B
	TLVPresentationFormat      byte = 0x0C
	TLVValidRange              byte = 0x0D
	TLVStepValue               byte = 0x0E
	TLVServiceProperties       byte = 0x0F
	TLVLinkedServices          byte = 0x10
	TLVValidValues             byte = 0x11
	TLVValidValuesRange        byte = 0x12
)

// Characteristic property bits for CharacteristicSignatureRead responses
// and the HAPCharacteristicPropertiesDescriptor, per spec.md §4.7.
const (
	PropPairedRead  uint16 = 0x0010
	PropPairedWrite uint16 = 0x0020
	PropAAuth       uint16 = 0x0004
	PropTimedWrite  uint16 = 0x0008
	PropHidden      uint16 = 0x0040
	PropNotifyConn  uint16 = 0x0080
	PropNotifyDisc  uint16 = 0x0100
	PropBroadcast   uint16 = 0x0200
)

// ServiceInstanceIDDescriptorUUID is the 128-bit descriptor every GATT
// characteristic carries, returning its IID as a little-endian u16.
const ServiceInstanceIDDescriptorUUID = "DC46F0FE-81D2-4616-B5D9-6ABDD796939A"

// PairingServiceType and ProtocolInformationServiceType are the two
// mandatory services every HAP accessory's GATT layout carries in addition
// to its application services (spec.md §4.7).
const (
	PairingServiceType             uint32 = 0x55
	ProtocolInformationServiceType uint32 = 0xA2
)

// Pairing characteristic short types, carried unencrypted per spec.md
// §4.7's encryption boundary.
const (
	PairSetupCharType            uint32 = 0x4C
	PairVerifyCharType           uint32 = 0x4E
	PairingFeaturesCharType      uint32 = 0x4F
	PairingPairingsCharType      uint32 = 0x50
)

// Protocol Information characteristic short types.
const (
	ServiceSignatureCharType      uint32 = 0xA5
	VersionCharType               uint32 = 0x37
	ProtocolConfigurationCharType uint32 = 0xA6
)

// ServiceInstanceIDCharType is the short type every service's Service
// Instance ID characteristic carries, per spec.md §4.7.
const ServiceInstanceIDCharType uint32 = 0x70

