package session

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
)

var pinPattern = regexp.MustCompile(`^[0-9A-Za-z]{1,16}$`)

// ValidatePIN checks a legacy pairing PIN. The empty PIN means none was
// supplied and is accepted.
func ValidatePIN(ctx context.Context, pin string) error {
	if pin == "" || pinPattern.MatchString(pin) {
		return nil
	}
	return errorkinds.InvalidArgument(ctx, "pair", "PIN must be 1 to 16 letters or digits")
}

type pairingState int

const (
	pairingIdle pairingState = iota
	pairingStarted
	pairingPinRequested
	pairingFinished
)

func (s pairingState) String() string {
	switch s {
	case pairingIdle:
		return "idle"
	case pairingStarted:
		return "started"
	case pairingPinRequested:
		return "pin_requested"
	case pairingFinished:
		return "finished"
	}
	return fmt.Sprintf("pairingState(%d)", int(s))
}

// pairingSession is the radio.PairingHandler for one Pair call.
type pairingSession struct {
	stack radio.Adapter
	pin   string
	log   *logger.Logger

	mu     sync.Mutex
	state  pairingState
	status radio.Status
	done   chan struct{}
}

var _ radio.PairingHandler = (*pairingSession)(nil)

func newPairingSession(stack radio.Adapter, pin string, log *logger.Logger) *pairingSession {
	return &pairingSession{
		stack: stack,
		pin:   pin,
		log:   log,
		done:  make(chan struct{}),
	}
}

func (p *pairingSession) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pairingIdle {
		p.state = pairingStarted
	}
}

func (p *pairingSession) PinRequested(pr radio.Pairing) {
	p.mu.Lock()
	switch p.state {
	case pairingFinished:
		p.mu.Unlock()
		return
	case pairingPinRequested:
		p.mu.Unlock()
		p.log.Debug("PIN already requested")
		return
	}
	p.state = pairingPinRequested
	p.mu.Unlock()

	if p.pin == "" {
		p.log.Warn("device requested a PIN but none was supplied")
		return
	}

	p.log.Debug("replying with PIN")
	p.stack.ReplyPin(pr, p.pin)

	p.mu.Lock()
	if p.state == pairingPinRequested {
		p.state = pairingStarted
	}
	p.mu.Unlock()
}

func (p *pairingSession) Finished(_ radio.Pairing, status radio.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == pairingFinished {
		p.log.Trace("duplicate pairing completion ignored", logger.Stringer("status", status))
		return
	}
	p.state = pairingFinished
	p.status = status
	close(p.done)
}

func (p *pairingSession) result() (pairingState, radio.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.status
}

// Pair runs a pairing handshake with the device. A PIN, when supplied, is
// used to answer the device's PIN request. The call succeeds only when the
// stack reports the device as paired once the handshake is over.
func (c *Controller) Pair(ctx context.Context, identifier, pin string) error {
	ctx, log := c.begin(ctx, "pair")

	if err := ValidatePIN(ctx, pin); err != nil {
		return err
	}

	d, err := c.Resolve(ctx, identifier)
	if err != nil {
		return err
	}
	log = log.With(logger.String("address", d.Address()))

	p := newPairingSession(c.stack, pin, log)
	p.start()

	log.Debug("starting pairing", logger.Bool("pin", pin != ""))
	pairing, status := c.stack.StartPairing(d, p)
	if !status.OK() {
		return errorkinds.OperationFailed(ctx, "pair", fmt.Sprintf("Pair start failed: %d", status), int(status))
	}

	waitErr := await(ctx, "pair", p.done, c.config.PairTimeout, "pairing did not finish")
	c.stack.StopPairing(pairing)
	if waitErr != nil {
		state, _ := p.result()
		log.Warn("pairing not finished", logger.Stringer("state", state), logger.ErrorField(waitErr))
		return waitErr
	}

	_, status = p.result()
	log.Debug("pairing finished", logger.Stringer("status", status))

	if !c.stack.IsPaired(d) {
		return errorkinds.OperationFailed(ctx, "pair", "Device not paired after pairing", int(status))
	}

	log.Info("paired")
	return nil
}
