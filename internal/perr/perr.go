// Package perr defines the driver's error taxonomy.
package perr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error the way the control loop and HTTP surface
// need to distinguish fatal-at-startup from recoverable-in-a-tick.
type Kind int

const (
	KindGeneric Kind = iota
	KindConfig
	KindIo
	KindModbusNotConnected
	KindModbusAddress
	KindModbusProtocol
	KindModbusException
	KindModbusIo
	KindTimeout
	KindBusConnect
	KindBusName
	KindBusRegister
	KindBusSignal
	KindValidation
	KindCodecShort
	KindCodecUtf8
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIo:
		return "io"
	case KindModbusNotConnected:
		return "modbus.not_connected"
	case KindModbusAddress:
		return "modbus.address"
	case KindModbusProtocol:
		return "modbus.protocol"
	case KindModbusException:
		return "modbus.exception"
	case KindModbusIo:
		return "modbus.io"
	case KindTimeout:
		return "timeout"
	case KindBusConnect:
		return "bus.connect"
	case KindBusName:
		return "bus.name"
	case KindBusRegister:
		return "bus.register"
	case KindBusSignal:
		return "bus.signal"
	case KindValidation:
		return "validation"
	case KindCodecShort:
		return "codec.short"
	case KindCodecUtf8:
		return "codec.utf8"
	default:
		return "generic"
	}
}

// Error wraps a Kind, a message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Field/Reason are populated for KindValidation only.
	Field  string
	Reason string

	// Code is populated for KindModbusException (the Modbus exception code).
	Code int
}

func (e *Error) Error() string {
	if e.Kind == KindValidation {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	if e.Kind == KindModbusException {
		return fmt.Sprintf("modbus exception %d: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, perr.KindX) style checks via a sentinel wrapper.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs a bare kind sentinel usable with errors.Is.
func New(kind Kind) *Error { return &Error{Kind: kind} }

func wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Config(msg string, cause error) *Error  { return wrap(KindConfig, msg, cause) }
func Io(msg string, cause error) *Error      { return wrap(KindIo, msg, cause) }
func Timeout(msg string, cause error) *Error { return wrap(KindTimeout, msg, cause) }
func Generic(msg string, cause error) *Error { return wrap(KindGeneric, msg, cause) }

func ModbusNotConnected(msg string) *Error { return wrap(KindModbusNotConnected, msg, nil) }
func ModbusAddress(msg string, cause error) *Error {
	return wrap(KindModbusAddress, msg, cause)
}
func ModbusProtocol(msg string, cause error) *Error {
	return wrap(KindModbusProtocol, msg, cause)
}
func ModbusException(code int, msg string) *Error {
	return &Error{Kind: KindModbusException, Message: msg, Code: code}
}
func ModbusIo(msg string, cause error) *Error { return wrap(KindModbusIo, msg, cause) }

func BusConnect(msg string, cause error) *Error  { return wrap(KindBusConnect, msg, cause) }
func BusName(msg string, cause error) *Error     { return wrap(KindBusName, msg, cause) }
func BusRegister(msg string, cause error) *Error { return wrap(KindBusRegister, msg, cause) }
func BusSignal(msg string, cause error) *Error   { return wrap(KindBusSignal, msg, cause) }

func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

func CodecShort(msg string) *Error { return wrap(KindCodecShort, msg, nil) }
func CodecUtf8(msg string, cause error) *Error {
	return wrap(KindCodecUtf8, msg, cause)
}

// IsTransient implements the C3 reconnect manager's classification rule:
// treat as transient any error whose message matches the case-insensitive
// substrings {"connection", "timeout", "disconnected"}, or whose Kind is
// KindTimeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindTimeout {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection", "timeout", "disconnected"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
