// Package bluetooth implements radio.Adapter on top of BlueZ over the system
// D-Bus.
package bluetooth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/cskr/pubsub/v2"
	"github.com/godbus/dbus/v5"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
)

// Config holds configuration for the Bluetooth manager
type Config struct {
	// AdapterID names the host controller, "hci0" when empty.
	AdapterID string
	Logger    *logger.Logger
}

// Manager drives one BlueZ adapter.
type Manager struct {
	config  Config
	log     *logger.Logger
	conn    *dbus.Conn
	adapter dbus.ObjectPath

	events  *pubsub.PubSub[topic, event]
	signals chan *dbus.Signal
	quit    chan struct{}

	tokens        *xsync.Counter
	registrations *xsync.MapOf[radio.Token, chan event]
	pairings      *xsync.MapOf[dbus.ObjectPath, *pairing]

	inquiryMu sync.Mutex
	inquiry   *inquiry

	agentRegistered bool
	closeOnce       sync.Once
}

var _ radio.Adapter = (*Manager)(nil)

type inquiry struct {
	ch      chan event
	aborted atomic.Bool
}

var matchRules = []string{
	"type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='" + string(bluezRoot) + "'",
	"type='signal',interface='" + objectManagerIface + "',member='InterfacesAdded'",
}

func newManager(config Config, conn *dbus.Conn) *Manager {
	log := config.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Manager{
		config:        config,
		log:           log.WithName("bluetooth"),
		conn:          conn,
		adapter:       AdapterPath(config.AdapterID),
		events:        pubsub.New[topic, event](16),
		signals:       make(chan *dbus.Signal, 32),
		quit:          make(chan struct{}),
		tokens:        xsync.NewCounter(),
		registrations: xsync.NewMapOf[radio.Token, chan event](),
		pairings:      xsync.NewMapOf[dbus.ObjectPath, *pairing](),
	}
}

// NewManager connects to the system bus, checks that the adapter exists,
// subscribes to BlueZ signals and registers the pairing agent.
func NewManager(config Config) (*Manager, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("connect to system bus"))
	}

	m := newManager(config, conn)

	if _, err := m.property(m.adapter, adapterIface, "Address"); err != nil {
		conn.Close()
		return nil, fault.Wrap(err,
			fmsg.WithDesc("adapter "+string(m.adapter)+" not available",
				"Bluetooth adapter not available. Is bluetooth.service running?"))
	}

	for _, rule := range matchRules {
		if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			conn.Close()
			return nil, fault.Wrap(err, fmsg.With("add match rule"))
		}
	}
	conn.Signal(m.signals)
	go m.watch()

	m.registerAgent()

	m.log.Debug("bluetooth manager started", logger.String("adapter", string(m.adapter)))
	return m, nil
}

func (m *Manager) registerAgent() {
	a := &agent{m: m, log: m.log.WithName("agent")}
	if err := m.conn.Export(a, agentPath, agentIface); err != nil {
		m.log.Warn("export agent failed", logger.ErrorField(err))
		return
	}

	manager := m.conn.Object(busName, bluezRoot)
	if err := manager.Call(agentManagerIface+".RegisterAgent", 0, agentPath, agentCapability).Err; err != nil {
		m.log.Warn("register agent failed, PIN pairing unavailable", logger.ErrorField(err))
		return
	}
	m.agentRegistered = true

	if err := manager.Call(agentManagerIface+".RequestDefaultAgent", 0, agentPath).Err; err != nil {
		m.log.Debug("agent is not the default agent", logger.ErrorField(err))
	}
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.quit:
			return
		case sig, ok := <-m.signals:
			if !ok {
				return
			}
			m.dispatch(sig)
		}
	}
}

// dispatch publishes the events a signal implies.
func (m *Manager) dispatch(sig *dbus.Signal) {
	for _, ev := range translate(m.adapter, sig) {
		m.log.Trace("bluez event", logger.Stringer("topic", ev.topic), logger.String("path", string(ev.path)))
		m.events.TryPub(ev, ev.topic)
	}
}

func (m *Manager) object(path dbus.ObjectPath) dbus.BusObject {
	return m.conn.Object(busName, path)
}

func (m *Manager) property(path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := m.object(path).Call(propsIface+".Get", 0, iface, name).Store(&v)
	return v, err
}

func (m *Manager) boolProperty(path dbus.ObjectPath, iface, name string) (bool, error) {
	v, err := m.property(path, iface, name)
	if err != nil {
		return false, err
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fault.New(fmt.Sprintf("property %s.%s is not a bool", iface, name))
	}
	return b, nil
}

func (m *Manager) deviceProperties(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := m.object(path).Call(propsIface+".GetAll", 0, deviceIface).Store(&props)
	return props, err
}

func (m *Manager) devicePath(d radio.Device) dbus.ObjectPath {
	if bd, ok := d.(*device); ok && bd.path != "" {
		return bd.path
	}
	return DevicePath(m.adapter, d.Address())
}

// deviceFor builds a handle for an event, fetching the properties the event
// does not carry.
func (m *Manager) deviceFor(ev event) *device {
	if _, ok := ev.props["Address"]; !ok && m.conn != nil {
		if props, err := m.deviceProperties(ev.path); err == nil {
			return newDevice(m.adapter, ev.path, props)
		}
	}
	return newDevice(m.adapter, ev.path, ev.props)
}

func (m *Manager) PairedDevices() ([]radio.Device, error) {
	var objects managedObjects
	err := m.object("/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("get managed objects"))
	}
	return pairedDevices(m.adapter, objects), nil
}

func (m *Manager) DeviceFromAddress(address string) (radio.Device, bool) {
	if CanonicalAddress(address) == "" {
		return nil, false
	}

	path := DevicePath(m.adapter, address)
	props, err := m.deviceProperties(path)
	if err != nil {
		m.log.Debug("device not known to bluez", logger.String("path", string(path)), logger.ErrorField(err))
		return nil, false
	}
	return newDevice(m.adapter, path, props), true
}

// StartInquiry starts discovery on the adapter. BlueZ has no scan length,
// so discovery runs until StopInquiry or until another client stops it.
func (m *Manager) StartInquiry(seconds int, onFound func(radio.Device), onComplete func(radio.Status, bool)) error {
	m.inquiryMu.Lock()
	if m.inquiry != nil {
		m.inquiryMu.Unlock()
		return fault.New("inquiry already running")
	}
	inq := &inquiry{ch: m.events.Sub(topicDeviceFound, topicDiscovery)}
	m.inquiry = inq
	m.inquiryMu.Unlock()

	m.log.Debug("start discovery", logger.Int("seconds", seconds))
	if err := m.object(m.adapter).Call(adapterIface+".StartDiscovery", 0).Err; err != nil {
		m.endInquiry(inq)
		return fault.Wrap(err, fmsg.With("start discovery"))
	}

	go m.runInquiry(inq, onFound, onComplete)
	return nil
}

func (m *Manager) runInquiry(inq *inquiry, onFound func(radio.Device), onComplete func(radio.Status, bool)) {
	for ev := range inq.ch {
		switch ev.topic {
		case topicDeviceFound:
			onFound(m.deviceFor(ev))
		case topicDiscovery:
			if ev.discovering {
				continue
			}
			m.endInquiry(inq)
			onComplete(radio.StatusSuccess, inq.aborted.Load())
			return
		}
	}
}

func (m *Manager) endInquiry(inq *inquiry) {
	m.inquiryMu.Lock()
	defer m.inquiryMu.Unlock()

	if m.inquiry != inq {
		return
	}
	m.inquiry = nil
	go m.events.Unsub(inq.ch, topicDeviceFound, topicDiscovery)
}

func (m *Manager) StopInquiry() error {
	m.inquiryMu.Lock()
	inq := m.inquiry
	m.inquiryMu.Unlock()

	if inq == nil {
		return nil
	}
	inq.aborted.Store(true)

	if err := m.object(m.adapter).Call(adapterIface+".StopDiscovery", 0).Err; err != nil {
		m.endInquiry(inq)
		return fault.Wrap(err, fmsg.With("stop discovery"))
	}
	return nil
}

func (m *Manager) OpenConnection(d radio.Device) radio.Status {
	err := m.object(m.devicePath(d)).Call(deviceIface+".Connect", 0).Err
	if err != nil {
		m.log.Debug("connect failed", logger.String("address", d.Address()), logger.ErrorField(err))
	}
	return statusOf(err)
}

func (m *Manager) CloseConnection(d radio.Device) radio.Status {
	err := m.object(m.devicePath(d)).Call(deviceIface+".Disconnect", 0).Err
	if err != nil {
		m.log.Debug("disconnect failed", logger.String("address", d.Address()), logger.ErrorField(err))
	}
	return statusOf(err)
}

// RegisterDisconnectNotification calls fn for every device that reports
// Connected=false. The notifications are not filtered by d.
func (m *Manager) RegisterDisconnectNotification(_ radio.Device, fn func(radio.Device)) radio.Token {
	m.tokens.Inc()
	token := radio.Token(m.tokens.Value())

	ch := m.events.Sub(topicDisconnected)
	m.registrations.Store(token, ch)

	go func() {
		for ev := range ch {
			fn(newDevice(m.adapter, ev.path, ev.props))
		}
	}()

	return token
}

func (m *Manager) UnregisterDisconnectNotification(t radio.Token) {
	if ch, ok := m.registrations.LoadAndDelete(t); ok {
		go m.events.Unsub(ch, topicDisconnected)
	}
}

// StartPairing calls Device1.Pair asynchronously. PIN requests reach h
// through the registered agent.
func (m *Manager) StartPairing(d radio.Device, h radio.PairingHandler) (radio.Pairing, radio.Status) {
	path := m.devicePath(d)
	bd, ok := d.(*device)
	if !ok {
		bd = &device{path: path, address: d.Address()}
	}

	p := newPairing(bd, h)
	if _, loaded := m.pairings.LoadOrStore(path, p); loaded {
		return nil, radio.StatusInProgress
	}
	if !m.agentRegistered {
		m.log.Warn("no pairing agent registered, PIN requests will be refused")
	}

	call := m.object(path).Go(deviceIface+".Pair", 0, make(chan *dbus.Call, 1))
	go func() {
		<-call.Done
		status := statusOf(call.Err)
		m.log.Debug("pair call returned", logger.String("path", string(path)), logger.Stringer("status", status))
		p.finish(status)
	}()

	return p, radio.StatusSuccess
}

func (m *Manager) ReplyPin(p radio.Pairing, pin string) {
	bp, ok := p.(*pairing)
	if !ok {
		return
	}
	select {
	case bp.pins <- pin:
	default:
	}
}

// StopPairing forgets the pairing and cancels it when it is still running.
func (m *Manager) StopPairing(p radio.Pairing) {
	bp, ok := p.(*pairing)
	if !ok {
		return
	}
	m.pairings.Delete(bp.device.path)

	if bp.finished() {
		return
	}
	if err := m.object(bp.device.path).Call(deviceIface+".CancelPairing", 0).Err; err != nil {
		m.log.Debug("cancel pairing failed", logger.ErrorField(err))
	}
}

func (m *Manager) IsPaired(d radio.Device) bool {
	paired, err := m.boolProperty(m.devicePath(d), deviceIface, "Paired")
	return err == nil && paired
}

func (m *Manager) IsConnected(d radio.Device) bool {
	connected, err := m.boolProperty(m.devicePath(d), deviceIface, "Connected")
	return err == nil && connected
}

// RemoveIfSupported removes the device object, which drops its pairing.
func (m *Manager) RemoveIfSupported(d radio.Device) bool {
	err := m.object(m.adapter).Call(adapterIface+".RemoveDevice", 0, m.devicePath(d)).Err
	if err != nil {
		m.log.Debug("remove device failed", logger.String("address", d.Address()), logger.ErrorField(err))
		return false
	}
	return true
}

func (m *Manager) HostPowerState() (int, error) {
	powered, err := m.boolProperty(m.adapter, adapterIface, "Powered")
	if err != nil {
		return 0, fault.Wrap(err, fmsg.With("read Powered"))
	}
	if powered {
		return 1, nil
	}
	return 0, nil
}

func (m *Manager) DiscoverableState() (bool, error) {
	discoverable, err := m.boolProperty(m.adapter, adapterIface, "Discoverable")
	if err != nil {
		return false, fault.Wrap(err, fmsg.With("read Discoverable"))
	}
	return discoverable, nil
}

// Close unregisters the agent and releases the bus connection.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.quit)
		m.events.Shutdown()

		if m.conn == nil {
			return
		}
		m.conn.RemoveSignal(m.signals)
		if m.agentRegistered {
			m.object(bluezRoot).Call(agentManagerIface+".UnregisterAgent", 0, agentPath)
		}
		err = m.conn.Close()
	})
	return err
}
