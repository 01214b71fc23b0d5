package bluetooth

import (
	"github.com/godbus/dbus/v5"

	"github.com/codefionn/go-blueutil/internal/radio"
)

// device is a snapshot of an org.bluez.Device1 object.
type device struct {
	path    dbus.ObjectPath
	address string
	name    string
	rssi    int
}

var _ radio.Device = (*device)(nil)

func newDevice(adapter, path dbus.ObjectPath, props map[string]dbus.Variant) *device {
	d := &device{path: path}

	if addr, ok := props["Address"].Value().(string); ok {
		d.address = CanonicalAddress(addr)
	}
	if d.address == "" {
		d.address = AddressFromPath(adapter, path)
	}
	if name, ok := props["Name"].Value().(string); ok {
		d.name = name
	}
	if rssi, ok := props["RSSI"].Value().(int16); ok {
		d.rssi = int(rssi)
	}
	return d
}

func (d *device) Address() string { return d.address }

func (d *device) NameOrAddress() string {
	if d.name != "" {
		return d.name
	}
	return d.address
}

func (d *device) RSSI() int { return d.rssi }

// IsIncoming is always false: BlueZ does not expose which side initiated
// the baseband connection.
func (d *device) IsIncoming() bool { return false }
