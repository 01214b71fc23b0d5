// Package radiotest provides a scripted in-memory radio.Adapter.
package radiotest

import (
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/codefionn/go-blueutil/internal/radio"
)

// Device is a fake remote device.
type Device struct {
	Addr     string
	Name     string
	Rssi     int
	Incoming bool
}

func (d *Device) Address() string { return strings.ToUpper(d.Addr) }

func (d *Device) NameOrAddress() string {
	if d.Name == "" {
		return d.Address()
	}
	return d.Name
}

func (d *Device) RSSI() int        { return d.Rssi }
func (d *Device) IsIncoming() bool { return d.Incoming }

type pairing struct {
	device  radio.Device
	handler radio.PairingHandler
	replied chan string
}

func (p *pairing) Device() radio.Device { return p.device }

// Adapter is a radio.Adapter driven by the exported script fields. Set the
// fields before handing the adapter to the code under test.
type Adapter struct {
	// Known holds the devices DeviceFromAddress can build, in addition to
	// Paired.
	Known  []*Device
	Paired []*Device

	PairedErr    error
	Power        int
	PowerErr     error
	Discoverable bool

	// InquiryFound is reported one device per FoundInterval after the scan
	// starts. NaturalCompletion ends the scan on the stack's own accord; zero
	// means the scan only ends through StopInquiry.
	InquiryFound      []*Device
	FoundInterval     time.Duration
	NaturalCompletion time.Duration
	InquiryStartErr   error

	OpenStatus  radio.Status
	CloseStatus radio.Status

	// DisconnectNotify lists the devices announced on the disconnect channel
	// after a successful CloseConnection. When nil the closed device itself
	// is announced. NoDisconnect suppresses announcements entirely.
	DisconnectNotify []*Device
	DisconnectDelay  time.Duration
	NoDisconnect     bool

	PairStartStatus radio.Status
	// PinRequest makes the handshake ask for a PIN first. Without a reply
	// within PinWait the handshake finishes with an authentication failure.
	PinRequest      bool
	PinWait         time.Duration
	PairResult      radio.Status
	PairMarksPaired bool
	DuplicateFinish bool
	PairHang        bool

	// Removable lists addresses that support removal.
	Removable []string

	mu            sync.Mutex
	connected     map[string]bool
	paired        map[string]bool
	inquiring     bool
	inquiryStop   chan struct{}
	onComplete    func(radio.Status, bool)
	pins          []string
	stopPairings  int
	stopInquiries int
	closes        int
	removed       []string
	closed        bool

	tokens        *xsync.Counter
	registrations *xsync.MapOf[radio.Token, func(radio.Device)]
}

var _ radio.Adapter = (*Adapter)(nil)

// New returns an empty, powered adapter.
func New() *Adapter {
	return &Adapter{
		Power:         1,
		PinWait:       50 * time.Millisecond,
		connected:     make(map[string]bool),
		paired:        make(map[string]bool),
		tokens:        xsync.NewCounter(),
		registrations: xsync.NewMapOf[radio.Token, func(radio.Device)](),
	}
}

// SetConnected marks d as connected or not.
func (a *Adapter) SetConnected(d *Device, connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected[d.Address()] = connected
}

// SetPaired marks d as paired or not.
func (a *Adapter) SetPaired(d *Device, paired bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paired[d.Address()] = paired
}

func (a *Adapter) PairedDevices() ([]radio.Device, error) {
	if a.PairedErr != nil {
		return nil, a.PairedErr
	}

	devices := make([]radio.Device, 0, len(a.Paired))
	for _, d := range a.Paired {
		devices = append(devices, d)
	}
	return devices, nil
}

func (a *Adapter) DeviceFromAddress(address string) (radio.Device, bool) {
	address = strings.ReplaceAll(address, "-", ":")
	for _, list := range [][]*Device{a.Paired, a.Known} {
		for _, d := range list {
			if strings.EqualFold(strings.ReplaceAll(d.Address(), ":", ""), strings.ReplaceAll(address, ":", "")) {
				return d, true
			}
		}
	}
	return nil, false
}

func (a *Adapter) StartInquiry(seconds int, onFound func(radio.Device), onComplete func(radio.Status, bool)) error {
	if a.InquiryStartErr != nil {
		return a.InquiryStartErr
	}

	a.mu.Lock()
	stop := make(chan struct{})
	a.inquiring = true
	a.inquiryStop = stop
	a.onComplete = onComplete
	a.mu.Unlock()

	go func() {
		for _, d := range a.InquiryFound {
			select {
			case <-stop:
				return
			case <-time.After(a.FoundInterval):
			}
			onFound(d)
		}
	}()

	if a.NaturalCompletion > 0 {
		go func() {
			select {
			case <-stop:
			case <-time.After(a.NaturalCompletion):
				if a.finishInquiry() {
					onComplete(radio.StatusSuccess, false)
				}
			}
		}()
	}

	return nil
}

func (a *Adapter) finishInquiry() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.inquiring {
		return false
	}
	a.inquiring = false
	close(a.inquiryStop)
	return true
}

func (a *Adapter) StopInquiry() error {
	a.mu.Lock()
	a.stopInquiries++
	onComplete := a.onComplete
	a.mu.Unlock()

	if a.finishInquiry() && onComplete != nil {
		go onComplete(radio.StatusSuccess, true)
	}
	return nil
}

func (a *Adapter) OpenConnection(d radio.Device) radio.Status {
	if a.OpenStatus.OK() {
		a.mu.Lock()
		a.connected[d.Address()] = true
		a.mu.Unlock()
	}
	return a.OpenStatus
}

func (a *Adapter) CloseConnection(d radio.Device) radio.Status {
	a.mu.Lock()
	a.closes++
	a.mu.Unlock()

	if !a.CloseStatus.OK() {
		return a.CloseStatus
	}

	a.mu.Lock()
	a.connected[d.Address()] = false
	a.mu.Unlock()

	if a.NoDisconnect {
		return a.CloseStatus
	}

	notify := make([]radio.Device, 0, len(a.DisconnectNotify))
	for _, n := range a.DisconnectNotify {
		notify = append(notify, n)
	}
	if a.DisconnectNotify == nil {
		notify = append(notify, d)
	}

	go func() {
		time.Sleep(a.DisconnectDelay)
		for _, n := range notify {
			a.registrations.Range(func(_ radio.Token, fn func(radio.Device)) bool {
				fn(n)
				return true
			})
		}
	}()

	return a.CloseStatus
}

func (a *Adapter) RegisterDisconnectNotification(_ radio.Device, fn func(radio.Device)) radio.Token {
	a.tokens.Inc()
	token := radio.Token(a.tokens.Value())
	a.registrations.Store(token, fn)
	return token
}

func (a *Adapter) UnregisterDisconnectNotification(t radio.Token) {
	a.registrations.Delete(t)
}

func (a *Adapter) StartPairing(d radio.Device, h radio.PairingHandler) (radio.Pairing, radio.Status) {
	if !a.PairStartStatus.OK() {
		return nil, a.PairStartStatus
	}

	p := &pairing{device: d, handler: h, replied: make(chan string, 1)}

	go func() {
		if a.PinRequest {
			h.PinRequested(p)
			select {
			case <-p.replied:
			case <-time.After(a.PinWait):
				h.Finished(p, radio.StatusAuthenticationFailed)
				return
			}
		}

		if a.PairHang {
			return
		}

		if a.PairResult.OK() && a.PairMarksPaired {
			a.mu.Lock()
			a.paired[d.Address()] = true
			a.mu.Unlock()
		}

		h.Finished(p, a.PairResult)
		if a.DuplicateFinish {
			h.Finished(p, radio.StatusFailed)
		}
	}()

	return p, radio.StatusSuccess
}

func (a *Adapter) ReplyPin(p radio.Pairing, pin string) {
	a.mu.Lock()
	a.pins = append(a.pins, pin)
	a.mu.Unlock()

	if fp, ok := p.(*pairing); ok {
		select {
		case fp.replied <- pin:
		default:
		}
	}
}

func (a *Adapter) StopPairing(radio.Pairing) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopPairings++
}

func (a *Adapter) IsPaired(d radio.Device) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paired[d.Address()]
}

func (a *Adapter) IsConnected(d radio.Device) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected[d.Address()]
}

func (a *Adapter) RemoveIfSupported(d radio.Device) bool {
	for _, addr := range a.Removable {
		if strings.EqualFold(addr, d.Address()) {
			a.mu.Lock()
			a.removed = append(a.removed, d.Address())
			a.paired[d.Address()] = false
			a.mu.Unlock()
			return true
		}
	}
	return false
}

func (a *Adapter) HostPowerState() (int, error) {
	return a.Power, a.PowerErr
}

func (a *Adapter) DiscoverableState() (bool, error) {
	return a.Discoverable, nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Pins returns the PINs replied so far.
func (a *Adapter) Pins() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.pins...)
}

// StopPairingCalls returns how many times StopPairing was called.
func (a *Adapter) StopPairingCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopPairings
}

// StopInquiryCalls returns how many times StopInquiry was called.
func (a *Adapter) StopInquiryCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopInquiries
}

// CloseConnectionCalls returns how many times CloseConnection was called.
func (a *Adapter) CloseConnectionCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

// Removed returns the addresses removed through RemoveIfSupported.
func (a *Adapter) Removed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.removed...)
}

// Registrations returns the number of live disconnect registrations.
func (a *Adapter) Registrations() int {
	return a.registrations.Size()
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
