package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrInitFailure is returned when the stack cannot be brought up.
	ErrInitFailure = errors.New("ble: init failed")

	ErrNotConnected    = errors.New("ble: not connected")
	ErrNotSubscribed   = errors.New("ble: client not subscribed")
	ErrInvalidArgument = errors.New("ble: invalid argument")

	ErrNoConnection  = errors.New("ble: no connection")
	ErrCommandFailed = errors.New("ble: command failed")
	ErrUnavailable   = errors.New("ble: value unavailable")

	ErrAlreadyConnected = errors.New("ble: already connected")

	// ErrConnectFailed reports a connect event carrying a non-zero link-layer status.
	ErrConnectFailed = errors.New("ble: connection failed")

	// ErrUnsupported is returned by backends that lack a capability.
	ErrUnsupported = errors.New("ble: unsupported by backend")
)

// StatusError is a non-zero status returned by the controller for an HCI command.
// It matches ErrUnavailable with errors.Is.
type StatusError struct {
	Opcode uint16
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ble: command 0x%04x: controller status 0x%02x", e.Opcode, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrUnavailable
}
