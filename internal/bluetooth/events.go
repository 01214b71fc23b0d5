package bluetooth

import (
	"github.com/godbus/dbus/v5"
)

// topic partitions the adapter's signal stream.
type topic int

const (
	topicDeviceFound topic = iota
	topicDisconnected
	topicDiscovery
)

func (t topic) String() string {
	switch t {
	case topicDeviceFound:
		return "device_found"
	case topicDisconnected:
		return "disconnected"
	case topicDiscovery:
		return "discovery"
	}
	return "unknown"
}

// event is published on the adapter's bus for every signal of interest.
type event struct {
	topic topic
	path  dbus.ObjectPath
	props map[string]dbus.Variant
	// discovering is the new Discovering value for topicDiscovery.
	discovering bool
}

// translate turns a D-Bus signal into the events it implies for adapter.
func translate(adapter dbus.ObjectPath, sig *dbus.Signal) []event {
	if sig == nil {
		return nil
	}

	switch sig.Name {
	case propsChangedSignal:
		if len(sig.Body) < 2 {
			return nil
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if changed == nil {
			return nil
		}
		return propertiesChanged(adapter, sig.Path, iface, changed)

	case interfacesAdded:
		if len(sig.Body) < 2 {
			return nil
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		props, ok := ifaces[deviceIface]
		if !ok || AddressFromPath(adapter, path) == "" {
			return nil
		}
		return []event{{topic: topicDeviceFound, path: path, props: props}}
	}

	return nil
}

func propertiesChanged(adapter, path dbus.ObjectPath, iface string, changed map[string]dbus.Variant) []event {
	switch iface {
	case adapterIface:
		if path != adapter {
			return nil
		}
		if discovering, ok := changed["Discovering"].Value().(bool); ok {
			return []event{{topic: topicDiscovery, path: path, discovering: discovering}}
		}

	case deviceIface:
		if AddressFromPath(adapter, path) == "" {
			return nil
		}

		var events []event
		if connected, ok := changed["Connected"].Value().(bool); ok && !connected {
			events = append(events, event{topic: topicDisconnected, path: path, props: changed})
		}
		if _, ok := changed["RSSI"]; ok {
			events = append(events, event{topic: topicDeviceFound, path: path, props: changed})
		}
		return events
	}

	return nil
}
