package model

import (
	"errors"
	"fmt"
)

// ValidationKind identifies why a database registration was rejected.
type ValidationKind string

const (
	TooManyServices         ValidationKind = "too_many_services"
	TooManyCharacteristics  ValidationKind = "too_many_characteristics"
	TooManyAccessories      ValidationKind = "too_many_accessories"
	DuplicateAccessoryId    ValidationKind = "duplicate_accessory_id"
	MissingAccessoryInfo    ValidationKind = "missing_accessory_information_service"
)

// ValidationError reports a capacity or structural violation detected at
// registration time, before the server starts serving requests.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NotFoundError reports a lookup miss by (aid, iid) or by structural key.
type NotFoundError struct {
	Resource string
	AID      uint64
	IID      uint16
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for aid=%d iid=%d", e.Resource, e.AID, e.IID)
}

var ErrFormatMismatch = errors.New("value does not match declared characteristic format")

// Status is a HAP characteristic-operation status code, carried in
// `GET/PUT /characteristics` JSON entries (spec.md §4.6/§8).
type Status int

const (
	StatusSuccess                  Status = 0
	StatusInsufficientPrivileges   Status = -70401
	StatusServiceCommunicationFail Status = -70402
	StatusResourceIsBusy           Status = -70403
	StatusReadOnlyCharacteristic   Status = -70404
	StatusWriteOnlyCharacteristic  Status = -70405
	StatusNotificationNotSupported Status = -70406
	StatusOutOfResource            Status = -70407
	StatusOperationTimedOut        Status = -70408
	StatusResourceDoesNotExist     Status = -70409
	StatusInvalidValueInRequest    Status = -70410
	StatusInsufficientAuthorization Status = -70411
)
