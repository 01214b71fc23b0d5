package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
)

const (
	DefaultInquiryDuration = 10 * time.Second
	MaxInquiryDuration     = 255 * time.Second
)

// inquirySession accumulates the results of one scan. Notifications that
// arrive after the session finished are dropped.
type inquirySession struct {
	mu       sync.Mutex
	devices  []radio.Device
	finished bool
	natural  bool
	status   radio.Status
	done     chan struct{}
	log      *logger.Logger
}

func newInquirySession(log *logger.Logger) *inquirySession {
	return &inquirySession{done: make(chan struct{}), log: log}
}

func (s *inquirySession) found(d radio.Device) {
	if d == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	for _, seen := range s.devices {
		if radio.SameDevice(seen, d) {
			return
		}
	}
	s.devices = append(s.devices, d)
	s.log.Debug("device found", logger.String("address", d.Address()), logger.Int("rssi", d.RSSI()))
}

// complete handles the stack's own end-of-scan notification.
func (s *inquirySession) complete(status radio.Status, aborted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true
	s.natural = !aborted
	s.status = status
	close(s.done)
}

// stop finishes the session on the controller's side. It reports false when
// the stack got there first.
func (s *inquirySession) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	s.finished = true
	close(s.done)
	return true
}

func (s *inquirySession) results() []radio.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]radio.Device{}, s.devices...)
}

// Inquiry scans for nearby devices for duration and returns every distinct
// device seen, in discovery order. The scan ends when the stack reports
// completion or when duration elapses, whichever comes first; an empty
// result is not an error.
func (c *Controller) Inquiry(ctx context.Context, duration time.Duration) ([]radio.Device, error) {
	ctx, log := c.begin(ctx, "inquiry")

	if duration <= 0 || duration > MaxInquiryDuration {
		return nil, errorkinds.InvalidArgument(ctx, "inquiry",
			fmt.Sprintf("inquiry duration must be between 1 and %d seconds", int(MaxInquiryDuration/time.Second)))
	}

	seconds := int((duration + time.Second - 1) / time.Second)
	s := newInquirySession(log)

	log.Debug("starting inquiry", logger.Int("seconds", seconds))
	if err := c.stack.StartInquiry(seconds, s.found, s.complete); err != nil {
		return nil, errorkinds.OperationFailed(ctx, "inquiry", "Inquiry start failed: "+err.Error(), 0)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		if s.stop() {
			c.stopInquiry(log)
		}
	case <-ctx.Done():
		if s.stop() {
			c.stopInquiry(log)
		}
		return nil, errorkinds.Cancelled(ctx, "inquiry", ctx.Err())
	}

	s.mu.Lock()
	natural, status := s.natural, s.status
	s.mu.Unlock()

	if natural && !status.OK() {
		return nil, errorkinds.OperationFailed(ctx, "inquiry",
			fmt.Sprintf("Inquiry failed: Return code: %d", status), int(status))
	}

	devices := s.results()
	log.Debug("inquiry finished", logger.Int("found", len(devices)), logger.Bool("natural", natural))
	return devices, nil
}

func (c *Controller) stopInquiry(log *logger.Logger) {
	if err := c.stack.StopInquiry(); err != nil {
		log.Warn("stop inquiry failed", logger.ErrorField(err))
	}
}
