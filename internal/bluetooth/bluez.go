package bluetooth

import (
	"errors"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/codefionn/go-blueutil/internal/radio"
)

const (
	busName             = "org.bluez"
	adapterIface        = "org.bluez.Adapter1"
	deviceIface         = "org.bluez.Device1"
	agentIface          = "org.bluez.Agent1"
	agentManagerIface   = "org.bluez.AgentManager1"
	propsIface          = "org.freedesktop.DBus.Properties"
	objectManagerIface  = "org.freedesktop.DBus.ObjectManager"
	propsChangedSignal  = propsIface + ".PropertiesChanged"
	interfacesAdded     = objectManagerIface + ".InterfacesAdded"
	agentPath           = dbus.ObjectPath("/org/codefionn/blueutil/agent")
	agentCapability     = "KeyboardDisplay"
	bluezRoot           = dbus.ObjectPath("/org/bluez")
	defaultAdapterID    = "hci0"
	errRejected         = "org.bluez.Error.Rejected"
	errCanceled         = "org.bluez.Error.Canceled"
	errAlreadyConnected = "org.bluez.Error.AlreadyConnected"
)

// AdapterPath returns the object path of the adapter with the given id,
// such as "hci0".
func AdapterPath(id string) dbus.ObjectPath {
	if id == "" {
		id = defaultAdapterID
	}
	return bluezRoot + "/" + dbus.ObjectPath(id)
}

// CanonicalAddress converts an address in any accepted notation to upper-case
// colon notation. It returns "" when s does not hold twelve hex digits.
func CanonicalAddress(s string) string {
	digits := strings.NewReplacer(":", "", "-", "").Replace(s)
	if len(digits) != 12 {
		return ""
	}
	digits = strings.ToUpper(digits)

	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		c1, c2 := digits[i], digits[i+1]
		if !isHex(c1) || !isHex(c2) {
			return ""
		}
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteByte(c1)
		b.WriteByte(c2)
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

// DevicePath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func DevicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return adapter + "/dev_" + dbus.ObjectPath(strings.ReplaceAll(CanonicalAddress(address), ":", "_"))
}

// AddressFromPath extracts the address from a device object path under
// adapter, or returns "" for any other path.
func AddressFromPath(adapter, path dbus.ObjectPath) string {
	prefix := string(adapter) + "/dev_"
	s := string(path)
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	rest := s[len(prefix):]
	if strings.Contains(rest, "/") {
		return ""
	}
	return CanonicalAddress(strings.ReplaceAll(rest, "_", ":"))
}

var errorStatus = map[string]radio.Status{
	"org.bluez.Error.Failed":                   radio.StatusFailed,
	"org.bluez.Error.NotReady":                 radio.StatusNotReady,
	"org.bluez.Error.InProgress":               radio.StatusInProgress,
	"org.bluez.Error.AlreadyExists":            radio.StatusAlreadyExists,
	"org.bluez.Error.NotConnected":             radio.StatusNotConnected,
	"org.bluez.Error.AuthenticationFailed":     radio.StatusAuthenticationFailed,
	"org.bluez.Error.AuthenticationRejected":   radio.StatusAuthenticationRejected,
	"org.bluez.Error.AuthenticationCanceled":   radio.StatusAuthenticationCanceled,
	"org.bluez.Error.AuthenticationTimeout":    radio.StatusAuthenticationTimeout,
	"org.bluez.Error.ConnectionAttemptFailed":  radio.StatusConnectionAttemptFailed,
	"org.bluez.Error.NotSupported":             radio.StatusNotSupported,
	"org.bluez.Error.DoesNotExist":             radio.StatusDoesNotExist,
	"org.bluez.Error.InvalidArguments":         radio.StatusInvalidArguments,
	"org.freedesktop.DBus.Error.UnknownObject": radio.StatusDoesNotExist,
	"org.freedesktop.DBus.Error.NoReply":       radio.StatusAuthenticationTimeout,
	errRejected:                                radio.StatusAuthenticationRejected,
	errCanceled:                                radio.StatusAuthenticationCanceled,
	errAlreadyConnected:                        radio.StatusSuccess,
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Name
	}
	return ""
}

// statusOf maps a method call error to a radio status.
func statusOf(err error) radio.Status {
	if err == nil {
		return radio.StatusSuccess
	}
	if status, ok := errorStatus[errorName(err)]; ok {
		return status
	}
	return radio.StatusFailed
}

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// pairedDevices picks the paired devices of adapter out of a
// GetManagedObjects reply, ordered by object path.
func pairedDevices(adapter dbus.ObjectPath, objects managedObjects) []radio.Device {
	paths := make([]dbus.ObjectPath, 0, len(objects))
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok || AddressFromPath(adapter, path) == "" {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	devices := make([]radio.Device, 0, len(paths))
	for _, path := range paths {
		devices = append(devices, newDevice(adapter, path, objects[path][deviceIface]))
	}
	return devices
}
