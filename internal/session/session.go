// Package session drives radio operations to completion.
//
// Every radio operation that completes through a callback is turned into a
// blocking call: the callback signals a single-shot channel and the
// Controller waits on it together with a deadline and the caller's context.
// A Controller serves one invocation and runs one operation at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Southclaws/fault/fctx"
	"github.com/google/uuid"

	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
	"github.com/codefionn/go-blueutil/internal/resolver"
)

// Outcome is the terminal result of an operation.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// OutcomeOf classifies the error returned by a Controller operation.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errorkinds.IsTimeout(err):
		return Timeout
	default:
		return Failure
	}
}

// Config bounds the waits that rely on the stack delivering a terminal
// notification. A zero value waits without a deadline.
type Config struct {
	PairTimeout       time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns the deadlines used when none are configured.
func DefaultConfig() Config {
	return Config{
		PairTimeout:       60 * time.Second,
		DisconnectTimeout: 15 * time.Second,
	}
}

// Controller runs operations against a radio stack.
type Controller struct {
	stack    radio.Adapter
	resolver *resolver.Resolver
	log      *logger.Logger
	config   Config
}

func New(stack radio.Adapter, log *logger.Logger, config Config) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	return &Controller{
		stack:    stack,
		resolver: resolver.New(stack, log),
		log:      log.WithName("session"),
		config:   config,
	}
}

// begin tags ctx and the returned logger with a fresh session id.
func (c *Controller) begin(ctx context.Context, operation string) (context.Context, *logger.Logger) {
	id := uuid.NewString()
	ctx = fctx.WithMeta(ctx, "session_id", id, "operation", operation)
	return ctx, c.log.With(logger.String("session_id", id), logger.String("operation", operation))
}

// Resolve maps identifier to a device handle.
func (c *Controller) Resolve(ctx context.Context, identifier string) (radio.Device, error) {
	return c.resolver.Resolve(ctx, identifier)
}

// await blocks until done is closed, the timeout elapses or ctx ends.
func await(ctx context.Context, where string, done <-chan struct{}, timeout time.Duration, what string) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-done:
		return nil
	case <-deadline:
		return errorkinds.Timeout(ctx, where, what)
	case <-ctx.Done():
		return errorkinds.Cancelled(ctx, where, ctx.Err())
	}
}

// Connect opens a baseband connection to the device.
func (c *Controller) Connect(ctx context.Context, identifier string) error {
	ctx, log := c.begin(ctx, "connect")

	d, err := c.Resolve(ctx, identifier)
	if err != nil {
		return err
	}

	log.Debug("opening connection", logger.String("address", d.Address()))
	if status := c.stack.OpenConnection(d); !status.OK() {
		log.Warn("open connection failed", logger.Int("status", int(status)))
		return errorkinds.ConnectionFailed(ctx, int(status))
	}

	log.Info("connected", logger.String("address", d.Address()))
	return nil
}

// Disconnect closes the connection to the device and waits for the stack to
// confirm it.
//
// The disconnect notification source is shared by every registration, so a
// registration completes only for a notification naming its own device as
// decided by radio.SameDevice. Notifications for other devices are dropped.
func (c *Controller) Disconnect(ctx context.Context, identifier string) error {
	ctx, log := c.begin(ctx, "disconnect")

	d, err := c.Resolve(ctx, identifier)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	var once sync.Once
	token := c.stack.RegisterDisconnectNotification(d, func(got radio.Device) {
		if !radio.SameDevice(got, d) {
			log.Trace("ignoring disconnect of other device", logger.String("address", addressOf(got)))
			return
		}
		once.Do(func() { close(done) })
	})
	defer c.stack.UnregisterDisconnectNotification(token)

	log.Debug("closing connection", logger.String("address", d.Address()))
	if status := c.stack.CloseConnection(d); !status.OK() {
		return errorkinds.OperationFailed(ctx, "disconnect", fmt.Sprintf("Return code: %d", status), int(status))
	}

	if err := await(ctx, "disconnect", done, c.config.DisconnectTimeout,
		"no disconnect notification for "+d.Address()); err != nil {
		log.Warn("disconnect not confirmed", logger.ErrorField(err))
		return err
	}

	log.Info("disconnected", logger.String("address", d.Address()))
	return nil
}

// Unpair removes the pairing with the device and then closes its connection
// best effort.
func (c *Controller) Unpair(ctx context.Context, identifier string) error {
	ctx, log := c.begin(ctx, "unpair")

	d, err := c.Resolve(ctx, identifier)
	if err != nil {
		return err
	}

	if !c.stack.RemoveIfSupported(d) {
		return errorkinds.OperationFailed(ctx, "unpair", "Device does not support unpair operation", 0)
	}

	if status := c.stack.CloseConnection(d); !status.OK() {
		log.Debug("close after removal failed", logger.Stringer("status", status))
	}

	log.Info("unpaired", logger.String("address", d.Address()))
	return nil
}

// IsConnected reports the device's connection state.
func (c *Controller) IsConnected(ctx context.Context, identifier string) (bool, error) {
	d, err := c.Resolve(ctx, identifier)
	if err != nil {
		return false, err
	}
	return c.stack.IsConnected(d), nil
}

// Info returns the resolved handle for display.
func (c *Controller) Info(ctx context.Context, identifier string) (radio.Device, error) {
	return c.Resolve(ctx, identifier)
}

// PairedDevices enumerates the paired devices in stack order.
func (c *Controller) PairedDevices(ctx context.Context) ([]radio.Device, error) {
	devices, err := c.stack.PairedDevices()
	if err != nil {
		return nil, errorkinds.OperationFailed(ctx, "paired_devices", "Failed to get paired devices: "+err.Error(), 0)
	}
	return devices, nil
}

// ConnectedDevices returns the paired devices that are connected.
func (c *Controller) ConnectedDevices(ctx context.Context) ([]radio.Device, error) {
	paired, err := c.PairedDevices(ctx)
	if err != nil {
		return nil, err
	}

	connected := make([]radio.Device, 0, len(paired))
	for _, d := range paired {
		if c.stack.IsConnected(d) {
			connected = append(connected, d)
		}
	}
	return connected, nil
}

// PowerState returns the host controller power state, 1 when powered.
func (c *Controller) PowerState(ctx context.Context) (int, error) {
	state, err := c.stack.HostPowerState()
	if err != nil {
		return 0, errorkinds.OperationFailed(ctx, "power", "Failed to read power state: "+err.Error(), 0)
	}
	return state, nil
}

// DiscoverableState reports whether the host controller is discoverable.
func (c *Controller) DiscoverableState(ctx context.Context) (bool, error) {
	state, err := c.stack.DiscoverableState()
	if err != nil {
		return false, errorkinds.OperationFailed(ctx, "discoverable", "Failed to read discoverable state: "+err.Error(), 0)
	}
	return state, nil
}

func addressOf(d radio.Device) string {
	if d == nil {
		return ""
	}
	return d.Address()
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
