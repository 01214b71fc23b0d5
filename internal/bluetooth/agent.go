package bluetooth

import (
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
)

// pinReplyTimeout bounds how long the agent holds a PIN request open.
const pinReplyTimeout = 30 * time.Second

// pairing tracks one Device1.Pair call.
type pairing struct {
	device  *device
	handler radio.PairingHandler
	pins    chan string
	done    chan struct{}
	once    sync.Once
}

var _ radio.Pairing = (*pairing)(nil)

func newPairing(d *device, h radio.PairingHandler) *pairing {
	return &pairing{
		device:  d,
		handler: h,
		pins:    make(chan string, 1),
		done:    make(chan struct{}),
	}
}

func (p *pairing) Device() radio.Device { return p.device }

// finish reports the terminal status to the handler once.
func (p *pairing) finish(status radio.Status) {
	p.once.Do(func() {
		close(p.done)
		p.handler.Finished(p, status)
	})
}

func (p *pairing) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func rejected() *dbus.Error {
	return dbus.NewError(errRejected, []interface{}{"request rejected"})
}

func canceled() *dbus.Error {
	return dbus.NewError(errCanceled, []interface{}{"request canceled"})
}

// agent is exported as org.bluez.Agent1. It only serves pairings started by
// this process and rejects everything else.
type agent struct {
	m   *Manager
	log *logger.Logger
}

func (a *agent) pending(device dbus.ObjectPath) (*pairing, bool) {
	p, ok := a.m.pairings.Load(device)
	if !ok || p.finished() {
		return nil, false
	}
	return p, true
}

// requestPin asks the pairing handler for a PIN and waits for ReplyPin.
func (a *agent) requestPin(device dbus.ObjectPath) (string, *dbus.Error) {
	p, ok := a.pending(device)
	if !ok {
		a.log.Debug("PIN request for unknown pairing", logger.String("path", string(device)))
		return "", rejected()
	}

	p.handler.PinRequested(p)

	timer := time.NewTimer(pinReplyTimeout)
	defer timer.Stop()

	select {
	case pin := <-p.pins:
		return pin, nil
	case <-p.done:
		return "", canceled()
	case <-timer.C:
		a.log.Warn("no PIN supplied", logger.String("path", string(device)))
		return "", canceled()
	}
}

func (a *agent) Release() *dbus.Error {
	a.log.Debug("agent released")
	return nil
}

// RequestPinCode answers legacy PIN pairing. The returned string is 1 to 16
// alphanumeric characters.
func (a *agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	return a.requestPin(device)
}

// RequestPasskey answers numeric passkey entry with the supplied PIN, which
// must then be a number up to 999999.
func (a *agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	pin, busErr := a.requestPin(device)
	if busErr != nil {
		return 0, busErr
	}

	key, err := strconv.ParseUint(pin, 10, 32)
	if err != nil || key > 999999 {
		return 0, rejected()
	}
	return uint32(key), nil
}

func (a *agent) DisplayPinCode(device dbus.ObjectPath, pinCode string) *dbus.Error {
	a.log.Info("display PIN code", logger.String("path", string(device)), logger.String("pin", pinCode))
	return nil
}

func (a *agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	a.log.Info("display passkey",
		logger.String("path", string(device)),
		logger.Int("passkey", int(passkey)),
		logger.Int("entered", int(entered)))
	return nil
}

// RequestConfirmation accepts numeric comparison for pairings we started.
func (a *agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	if _, ok := a.pending(device); !ok {
		return rejected()
	}
	a.log.Debug("confirming passkey", logger.Int("passkey", int(passkey)))
	return nil
}

func (a *agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	if _, ok := a.pending(device); !ok {
		return rejected()
	}
	return nil
}

func (a *agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	if _, ok := a.pending(device); !ok {
		return rejected()
	}
	return nil
}

func (a *agent) Cancel() *dbus.Error {
	a.log.Debug("agent request canceled")
	return nil
}
