// Package fault holds the error taxonomy shared by the studio services.
//
// Every failure that reaches a caller is a *Error carrying a discriminating Code. Packages
// declare their own sentinels with New and match them with errors.Is, which compares codes
// only, so a sentinel decorated with WithState still matches.
package fault

import (
	"errors"
)

type Code string

type Class string

const (
	ClassValidation Class = "validation"
	ClassState      Class = "state"
	ClassResource   Class = "resource"
	ClassTransient  Class = "transient"
)

// validation
const (
	InvalidCode         Code = "invalid_code"
	InvalidRole         Code = "invalid_role"
	InvalidQuality      Code = "invalid_quality"
	InvalidURL          Code = "invalid_url"
	MissingSecret       Code = "missing_secret"
	InvalidScene        Code = "invalid_scene"
	InvalidDeviceConfig Code = "invalid_device_config"
	InvalidArgument     Code = "invalid_argument"
)

// state
const (
	AlreadyActive    Code = "already_active"
	NotActive        Code = "not_active"
	StudioLocked     Code = "studio_locked"
	AlreadyConnected Code = "already_connected"
	SlotUnavailable  Code = "slot_unavailable"
	NotAuthorized    Code = "not_authorized"
	NotFound         Code = "not_found"
)

// resource
const (
	SpawnFailed           Code = "spawn_failed"
	CodecUnavailable      Code = "codec_unavailable"
	QueueOverflowTerminal Code = "queue_overflow_terminal"
)

// remote / transient
const (
	WorkerExited Code = "worker_exited"
	Lagged       Code = "lagged"
)

func (c Code) Class() Class {
	switch c {
	case InvalidCode, InvalidRole, InvalidQuality, InvalidURL, MissingSecret,
		InvalidScene, InvalidDeviceConfig, InvalidArgument:
		return ClassValidation
	case SpawnFailed, CodecUnavailable, QueueOverflowTerminal:
		return ClassResource
	case WorkerExited, Lagged:
		return ClassTransient
	default:
		return ClassState
	}
}

type Error struct {
	Code    Code
	Message string
	// State is a snapshot of the conflicting state for state-class errors.
	State any
	cause error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithState returns a copy of err carrying a snapshot of the conflicting state.
func WithState(err *Error, state any) *Error {
	cp := *err
	cp.State = state
	return &cp
}

// WithMessage returns a copy of err with a more specific message.
func WithMessage(err *Error, message string) *Error {
	cp := *err
	cp.Message = message
	return &cp
}

// Wrap returns a copy of err that also wraps cause.
func Wrap(err *Error, cause error) *Error {
	cp := *err
	cp.cause = cause
	return &cp
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	fe, ok := As(err)
	if !ok {
		return "", false
	}
	return fe.Code, true
}
