package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/go-blueutil/internal/config"
	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/radio"
	"github.com/codefionn/go-blueutil/internal/radio/radiotest"
)

var (
	phone   = &radiotest.Device{Addr: "AA:BB:CC:DD:EE:FF", Name: "MyPhone", Rssi: -60}
	headset = &radiotest.Device{Addr: "11:22:33:44:55:66", Name: "Headset", Rssi: -42}
)

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, stack *radiotest.Adapter, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), args, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		NewAdapter: func(*config.Config, *logger.Logger) (radio.Adapter, error) {
			return stack, nil
		},
	})

	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestPairWithPin(t *testing.T) {
	stack := radiotest.New()
	stack.Known = []*radiotest.Device{phone}
	stack.PinRequest = true
	stack.PairMarksPaired = true

	r := execute(t, stack, "device", "AA:BB:CC:DD:EE:FF", "pair", "--pin", "1234")
	require.NoError(t, r.err)
	assert.Equal(t, "Successfully paired with device AA:BB:CC:DD:EE:FF\n", r.stdout)
	assert.Equal(t, []string{"1234"}, stack.Pins())
	assert.True(t, stack.Closed())
}

func TestPairWithInvalidPin(t *testing.T) {
	stack := radiotest.New()
	stack.Known = []*radiotest.Device{phone}

	r := execute(t, stack, "device", "AA:BB:CC:DD:EE:FF", "pair", "--pin", "12 34")
	require.Error(t, r.err)
	assert.Equal(t, errorkinds.KindInvalidArgument, errorkinds.KindOf(r.err))
	assert.Empty(t, r.stdout)
}

func TestUnpairUnsupported(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}

	r := execute(t, stack, "device", "MyPhone", "unpair")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "does not support unpair")
	assert.Empty(t, r.stdout)
}

func TestUnpair(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}
	stack.Removable = []string{phone.Addr}

	r := execute(t, stack, "device", "MyPhone", "unpair")
	require.NoError(t, r.err)
	assert.Equal(t, "Successfully unpaired device MyPhone\n", r.stdout)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, stack.Removed())
}

func TestConnect(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}

	r := execute(t, stack, "device", "MyPhone", "connect")
	require.NoError(t, r.err)
	assert.Equal(t, "Successfully connected to device MyPhone\n", r.stdout)
	assert.True(t, stack.IsConnected(phone))
}

func TestConnectFailure(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}
	stack.OpenStatus = radio.StatusConnectionAttemptFailed

	r := execute(t, stack, "device", "MyPhone", "connect")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "Connection failed: Return code: 10")
}

func TestDisconnect(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}
	stack.SetConnected(phone, true)

	r := execute(t, stack, "device", "aa-bb-cc-dd-ee-ff", "disconnect")
	require.NoError(t, r.err)
	assert.Equal(t, "Successfully disconnected from device aa-bb-cc-dd-ee-ff\n", r.stdout)
	assert.Equal(t, 0, stack.Registrations())
}

func TestDisconnectTimeout(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}
	stack.NoDisconnect = true

	r := execute(t, stack, "--disconnect-timeout", "50ms", "device", "MyPhone", "disconnect")
	require.Error(t, r.err)
	assert.True(t, errorkinds.IsTimeout(r.err))
	assert.Contains(t, r.stderr, "Operation timed out")
}

func TestDeviceInfo(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}
	stack.SetPaired(phone, true)

	r := execute(t, stack, "device", "MyPhone", "info")
	require.NoError(t, r.err)
	assert.Equal(t,
		"Device Information:\n"+
			"Address: AA:BB:CC:DD:EE:FF, Name: MyPhone, Connected: No, RSSI: -60 dbm, Paired: Yes, Incoming: No\n",
		r.stdout)
}

func TestIsConnected(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}

	r := execute(t, stack, "device", "MyPhone", "is-connected")
	require.NoError(t, r.err)
	assert.Equal(t, "0\n", r.stdout)

	stack.SetConnected(phone, true)
	r = execute(t, stack, "device", "MyPhone", "is-connected")
	require.NoError(t, r.err)
	assert.Equal(t, "1\n", r.stdout)
}

func TestDeviceErrors(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}

	tests := []struct {
		name    string
		args    []string
		kind    errorkinds.Kind
		message string
	}{
		{
			name:    "unknown name",
			args:    []string{"device", "Nobody", "connect"},
			kind:    errorkinds.KindInvalidIdentifier,
			message: "Invalid device identifier: Nobody",
		},
		{
			name:    "unknown address",
			args:    []string{"device", "00:00:00:00:00:01", "connect"},
			kind:    errorkinds.KindDeviceNotFound,
			message: "Device not found: 00:00:00:00:00:01",
		},
		{
			name:    "unknown action",
			args:    []string{"device", "MyPhone", "explode"},
			kind:    errorkinds.KindInvalidArgument,
			message: "unknown action explode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := execute(t, stack, tt.args...)
			require.Error(t, r.err)
			assert.Equal(t, tt.kind, errorkinds.KindOf(r.err))
			assert.Contains(t, r.stderr, tt.message)
		})
	}
}

func TestDeviceRequiresTwoArgs(t *testing.T) {
	r := execute(t, radiotest.New(), "device", "MyPhone")
	require.Error(t, r.err)
	assert.NotEmpty(t, r.stderr)
}

func TestGet(t *testing.T) {
	stack := radiotest.New()
	stack.Discoverable = true

	r := execute(t, stack, "get", "power")
	require.NoError(t, r.err)
	assert.Equal(t, "1\n", r.stdout)

	r = execute(t, stack, "get", "discoverable")
	require.NoError(t, r.err)
	assert.Equal(t, "1\n", r.stdout)

	r = execute(t, stack, "get", "volume")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "unknown state volume")
}

func TestGetPowerFailure(t *testing.T) {
	stack := radiotest.New()
	stack.PowerErr = errors.New("adapter gone")

	r := execute(t, stack, "get", "power")
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "adapter gone")
}

func TestListInRangeEmpty(t *testing.T) {
	stack := radiotest.New()

	start := time.Now()
	r := execute(t, stack, "list", "in-range", "1")
	require.NoError(t, r.err)
	assert.Equal(t, "No devices found.\n", r.stdout)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, 1, stack.StopInquiryCalls())
}

func TestListInRange(t *testing.T) {
	stack := radiotest.New()
	stack.InquiryFound = []*radiotest.Device{headset, headset}
	stack.NaturalCompletion = 50 * time.Millisecond

	r := execute(t, stack, "list", "in-range", "5")
	require.NoError(t, r.err)
	assert.Equal(t, "Address: 11:22:33:44:55:66, Name: Headset, Connected: No\n", r.stdout)
}

func TestListInRangeBadDuration(t *testing.T) {
	for _, arg := range []string{"0", "256", "soon"} {
		t.Run(arg, func(t *testing.T) {
			r := execute(t, radiotest.New(), "list", "in-range", arg)
			require.Error(t, r.err)
			assert.Equal(t, errorkinds.KindInvalidArgument, errorkinds.KindOf(r.err))
		})
	}
}

func TestListPaired(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone, headset}
	stack.SetConnected(headset, true)

	r := execute(t, stack, "list", "paired")
	require.NoError(t, r.err)
	assert.Equal(t,
		"Address: AA:BB:CC:DD:EE:FF, Name: MyPhone, Connected: No\n"+
			"Address: 11:22:33:44:55:66, Name: Headset, Connected: Yes\n",
		r.stdout)
}

func TestListConnected(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone, headset}
	stack.SetConnected(headset, true)

	r := execute(t, stack, "list", "connected")
	require.NoError(t, r.err)
	assert.Equal(t, "Address: 11:22:33:44:55:66, Name: Headset\n", r.stdout)
}

func TestListPairedJSON(t *testing.T) {
	stack := radiotest.New()
	stack.Paired = []*radiotest.Device{phone}

	r := execute(t, stack, "--format", "json", "list", "paired")
	require.NoError(t, r.err)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", records[0]["address"])
	assert.Equal(t, "MyPhone", records[0]["name"])
	assert.Equal(t, false, records[0]["connected"])
	assert.NotContains(t, records[0], "paired")
}

func TestAdapterFlagReachesFactory(t *testing.T) {
	var got string
	var stdout, stderr bytes.Buffer

	err := Execute(context.Background(), []string{"--adapter", "hci1", "get", "power"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		NewAdapter: func(cfg *config.Config, _ *logger.Logger) (radio.Adapter, error) {
			got = cfg.Bluetooth.Adapter
			return radiotest.New(), nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hci1", got)
}

func TestAdapterUnavailable(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := Execute(context.Background(), []string{"get", "power"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		NewAdapter: func(*config.Config, *logger.Logger) (radio.Adapter, error) {
			return nil, errors.New("no such adapter")
		},
	})
	require.Error(t, err)
	assert.Equal(t, errorkinds.KindOperationFailed, errorkinds.KindOf(err))
	assert.Contains(t, stderr.String(), "Bluetooth adapter hci0 unavailable")
	assert.Empty(t, stdout.String())
}
