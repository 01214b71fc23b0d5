// Package radio describes the capabilities the session controller consumes
// from the host Bluetooth stack.
//
// Operations that complete asynchronously report through callbacks. Callbacks
// may be invoked on any goroutine, in the order the stack emits them, and
// must not block for long.
package radio

import (
	"fmt"
	"strings"
)

// Status is a radio stack result code. StatusSuccess is the only success
// value; any other value is a failure code.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusNotReady
	StatusInProgress
	StatusAlreadyExists
	StatusNotConnected
	StatusAuthenticationFailed
	StatusAuthenticationRejected
	StatusAuthenticationCanceled
	StatusAuthenticationTimeout
	StatusConnectionAttemptFailed
	StatusNotSupported
	StatusDoesNotExist
	StatusInvalidArguments
)

var statusNames = map[Status]string{
	StatusSuccess:                 "success",
	StatusFailed:                  "failed",
	StatusNotReady:                "not ready",
	StatusInProgress:              "in progress",
	StatusAlreadyExists:           "already exists",
	StatusNotConnected:            "not connected",
	StatusAuthenticationFailed:    "authentication failed",
	StatusAuthenticationRejected:  "authentication rejected",
	StatusAuthenticationCanceled:  "authentication canceled",
	StatusAuthenticationTimeout:   "authentication timeout",
	StatusConnectionAttemptFailed: "connection attempt failed",
	StatusNotSupported:            "not supported",
	StatusDoesNotExist:            "does not exist",
	StatusInvalidArguments:        "invalid arguments",
}

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Device is an opaque handle to a remote device. It is borrowed from the
// Adapter that produced it and only valid for that adapter's lifetime.
type Device interface {
	// Address returns the hardware address in upper-case colon notation.
	Address() string
	// NameOrAddress returns the friendly name, or the address when the
	// device has no name.
	NameOrAddress() string
	// RSSI returns the last known signal strength in dBm.
	RSSI() int
	// IsIncoming reports whether the baseband connection was initiated by
	// the remote device.
	IsIncoming() bool
}

// SameDevice reports whether a and b refer to the same remote device.
// Handles are compared by address, since a stack may hand out distinct
// handle values for one device.
func SameDevice(a, b Device) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Address(), b.Address())
}

// Token identifies a notification registration.
type Token uint64

// Pairing is an in-flight pairing handshake created by StartPairing.
type Pairing interface {
	Device() Device
}

// PairingHandler receives the notifications of one pairing handshake.
type PairingHandler interface {
	// PinRequested is called when the remote device asks for a PIN. The
	// handler may answer synchronously with Adapter.ReplyPin.
	PinRequested(p Pairing)
	// Finished is called when the handshake ends, successfully or not.
	Finished(p Pairing, status Status)
}

// Adapter is the host Bluetooth stack.
type Adapter interface {
	// PairedDevices enumerates paired devices in stack order.
	PairedDevices() ([]Device, error)
	// DeviceFromAddress builds a handle for address, reporting false when
	// the stack cannot resolve it.
	DeviceFromAddress(address string) (Device, bool)

	// StartInquiry begins a discovery scan of the given length. onFound is
	// called for each device seen; onComplete is called when the stack ends
	// the scan, with aborted set when it was stopped by StopInquiry.
	StartInquiry(seconds int, onFound func(Device), onComplete func(status Status, aborted bool)) error
	StopInquiry() error

	OpenConnection(d Device) Status
	CloseConnection(d Device) Status

	// RegisterDisconnectNotification arranges for fn to be called on
	// disconnect notifications. Stacks are not required to filter the
	// notifications by d; callers must check the device they receive.
	RegisterDisconnectNotification(d Device, fn func(Device)) Token
	UnregisterDisconnectNotification(t Token)

	StartPairing(d Device, h PairingHandler) (Pairing, Status)
	ReplyPin(p Pairing, pin string)
	StopPairing(p Pairing)

	IsPaired(d Device) bool
	IsConnected(d Device) bool
	// RemoveIfSupported unpairs d when the stack supports removal for it.
	RemoveIfSupported(d Device) bool

	// HostPowerState returns the controller power state (0 off, 1 on).
	HostPowerState() (int, error)
	DiscoverableState() (bool, error)

	Close() error
}
