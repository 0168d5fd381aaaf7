package model_test

import (
	"errors"
	"testing"

	"github.com/srg/hapd/internal/model"
	"github.com/stretchr/testify/require"
)

func accessoryInfoService() *model.Service {
	return &model.Service{
		Type: model.AccessoryInformationType,
		Characteristics: []*model.Characteristic{
			{Type: 0x23, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead}, Value: model.Value{Format: model.FormatString, Str: "Test"}},
		},
	}
}

func TestRegisterAssignsStableIIDs(t *testing.T) {
	db := model.NewDatabase(nil)
	acc := &model.Accessory{AID: 1, Services: []*model.Service{accessoryInfoService()}}

	require.NoError(t, db.Register(acc))
	require.NotZero(t, acc.Services[0].IID)
	require.NotZero(t, acc.Services[0].Characteristics[0].IID)
	require.NotEqual(t, acc.Services[0].IID, acc.Services[0].Characteristics[0].IID)
}

func TestSecondRegistrationOfSameTreeIsByteIdentical(t *testing.T) {
	build := func() *model.Accessory {
		return &model.Accessory{AID: 1, Services: []*model.Service{accessoryInfoService()}}
	}

	db1 := model.NewDatabase(nil)
	require.NoError(t, db1.Register(build()))
	json1 := db1.ToJSONAccessories()

	db2 := model.NewDatabase(nil)
	require.NoError(t, db2.Register(build()))
	json2 := db2.ToJSONAccessories()

	require.Equal(t, json1, json2)
}

func TestDuplicateAccessoryID(t *testing.T) {
	db := model.NewDatabase(nil)
	require.NoError(t, db.Register(&model.Accessory{AID: 1, Services: []*model.Service{accessoryInfoService()}}))

	err := db.Register(&model.Accessory{AID: 1, Services: []*model.Service{accessoryInfoService()}})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, model.DuplicateAccessoryId, verr.Kind)
}

func TestTooManyServices(t *testing.T) {
	svcs := make([]*model.Service, 0, 102)
	svcs = append(svcs, accessoryInfoService())
	for i := 0; i < 101; i++ {
		svcs = append(svcs, &model.Service{Type: uint32(0x100 + i)})
	}
	db := model.NewDatabase(nil)

	err := db.Register(&model.Accessory{AID: 1, Services: svcs})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, model.TooManyServices, verr.Kind)
}

func TestTooManyCharacteristics(t *testing.T) {
	svc := accessoryInfoService()
	for i := 0; i < 101; i++ {
		svc.Characteristics = append(svc.Characteristics, &model.Characteristic{Type: uint32(0x200 + i), Format: model.FormatBool})
	}
	db := model.NewDatabase(nil)

	err := db.Register(&model.Accessory{AID: 1, Services: []*model.Service{svc}})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, model.TooManyCharacteristics, verr.Kind)
}

func TestIIDManagerNeverReturnsZeroAndNeverReusesKeys(t *testing.T) {
	m := model.NewIIDManager(nil, 0)
	seen := map[uint16]string{}
	for i := 0; i < 5; i++ {
		key := "C:" + string(rune('A'+i))
		id := m.Assign(key)
		require.NotZero(t, id)
		if prev, ok := seen[id]; ok {
			require.Equal(t, prev, key, "IID reused for a different key")
		}
		seen[id] = key
	}
	// Re-assigning an existing key returns the same IID, not a new one.
	first := m.Assign("C:A")
	require.Equal(t, seen[first], "C:A")
}

func TestBinaryValueRoundTrip(t *testing.T) {
	cases := []model.Value{
		{Format: model.FormatBool, Bool: true},
		{Format: model.FormatUInt8, UInt8: 200},
		{Format: model.FormatUInt16, UInt16: 60000},
		{Format: model.FormatUInt32, UInt32: 4000000000},
		{Format: model.FormatInt32, Int32: -12345},
		{Format: model.FormatFloat, Float: 3.25},
		{Format: model.FormatString, Str: "hello"},
		{Format: model.FormatData, Bytes: []byte{1, 2, 3}},
	}
	for _, v := range cases {
		encoded, err := model.EncodeBinary(v)
		require.NoError(t, err)
		decoded, err := model.DecodeBinary(v.Format, encoded)
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestDecodeBinaryRejectsShortBuffer(t *testing.T) {
	_, err := model.DecodeBinary(model.FormatUInt32, []byte{1, 2})
	require.ErrorIs(t, err, model.ErrFormatMismatch)
}
