// Package resolver turns user-supplied identifiers into device handles.
package resolver

import (
	"context"
	"regexp"

	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
)

// Twelve hex digits, either bare or grouped in pairs by a single separator
// that is used consistently.
var addressPattern = regexp.MustCompile(`(?i)^[0-9a-f]{2}([0-9a-f]{10}|(-[0-9a-f]{2}){5}|(:[0-9a-f]{2}){5})$`)

// IsAddress reports whether s is a hardware address in one of the accepted
// notations.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Resolver looks identifiers up on a radio adapter.
type Resolver struct {
	stack radio.Adapter
	log   *logger.Logger
}

func New(stack radio.Adapter, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{stack: stack, log: log.WithName("resolver")}
}

// Resolve maps identifier to a device. Addresses are built directly by the
// stack; anything else must equal the name of a paired device.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (radio.Device, error) {
	if identifier == "" {
		return nil, errorkinds.InvalidIdentifier(ctx, identifier)
	}

	if IsAddress(identifier) {
		d, ok := r.stack.DeviceFromAddress(identifier)
		if !ok {
			r.log.Debug("address not known to stack", logger.String("identifier", identifier))
			return nil, errorkinds.DeviceNotFound(ctx, identifier)
		}
		r.log.Trace("resolved address", logger.String("address", d.Address()))
		return d, nil
	}

	paired, err := r.stack.PairedDevices()
	if err != nil {
		return nil, errorkinds.OperationFailed(ctx, "resolve", "Failed to get paired devices: "+err.Error(), 0)
	}

	if d := MatchName(paired, identifier); d != nil {
		r.log.Trace("resolved name",
			logger.String("identifier", identifier),
			logger.String("address", d.Address()))
		return d, nil
	}

	return nil, errorkinds.InvalidIdentifier(ctx, identifier)
}

// MatchName returns the first device whose name (or address, for unnamed
// devices) equals name exactly.
func MatchName(devices []radio.Device, name string) radio.Device {
	for _, d := range devices {
		if d != nil && d.NameOrAddress() == name {
			return d
		}
	}
	return nil
}
