package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stem-connect/keyroute/eventlog"
)

type fakePort struct {
	writes     []string
	failWrites bool
	closed     bool
	boot       []byte
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.boot) == 0 {
		return 0, nil
	}
	n := copy(p, f.boot)
	f.boot = f.boot[n:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.failWrites {
		return 0, errors.New("input/output error")
	}
	f.writes = append(f.writes, string(p))
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }

func newTestChannel(t *testing.T, opts Options, port *fakePort) (*Channel, *eventlog.Log) {
	t.Helper()
	elog := eventlog.New(50)
	c := NewChannel(opts, elog)
	c.sleep = func(time.Duration) {}
	c.discover = func() (string, error) { return "/dev/ttyACM9", nil }
	c.open = func(name string, baud int) (serialPort, error) {
		if port == nil {
			return nil, errors.New("open " + name + ": no such device")
		}
		return port, nil
	}
	return c, elog
}

func TestForcedSimulationNeverTouchesHardware(t *testing.T) {
	c, elog := newTestChannel(t, Options{Simulate: true}, nil)
	opened := false
	c.open = func(string, int) (serialPort, error) {
		opened = true
		return nil, errors.New("must not be called")
	}

	if !c.Send(Urgent()) {
		t.Fatal("expected send to succeed in simulated mode")
	}
	if opened {
		t.Error("hardware open attempted despite forced simulation")
	}
	last, ok := elog.Last()
	if !ok || last.Kind != eventlog.KindSimulated {
		t.Errorf("expected last event kind %s, got %+v", eventlog.KindSimulated, last)
	}
	if last.Payload != "URGENT" {
		t.Errorf("expected payload URGENT, got %s", last.Payload)
	}
	if c.State() != StateSimulated {
		t.Errorf("expected simulated state, got %s", c.State())
	}
}

func TestSendSucceedsWhenNoDeviceDiscoverable(t *testing.T) {
	c, elog := newTestChannel(t, Options{}, nil)
	c.discover = func() (string, error) {
		return "", errors.New("no candidate device among 0 serial ports")
	}

	if !c.Send(Idle()) {
		t.Fatal("expected send to report success without hardware")
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", c.State())
	}
	got := elog.Recent(2)
	if got[0].Kind != eventlog.KindSimulated {
		t.Errorf("expected newest event simulated, got %s", got[0].Kind)
	}
	if got[1].Kind != eventlog.KindConnectError {
		t.Errorf("expected fallback reason logged, got %s", got[1].Kind)
	}
}

func TestDisconnectedSendRetriesConnectEachTime(t *testing.T) {
	c, _ := newTestChannel(t, Options{}, nil)
	attempts := 0
	c.open = func(string, int) (serialPort, error) {
		attempts++
		return nil, errors.New("device busy")
	}

	c.Send(Idle())
	c.Send(Idle())

	if attempts != 2 {
		t.Errorf("expected one connect attempt per send while disconnected, got %d", attempts)
	}
}

func TestConnectedSendWritesNewlineTerminatedLine(t *testing.T) {
	port := &fakePort{}
	c, elog := newTestChannel(t, Options{PortName: "/dev/ttyACM0"}, port)

	if st := c.Connect(); st != StateConnected {
		t.Fatalf("expected connected state, got %s", st)
	}
	if !c.Send(AtStop(SideOrigin)) {
		t.Fatal("send failed")
	}
	if len(port.writes) != 1 || port.writes[0] != "ORIGIN_STOP\n" {
		t.Errorf("expected single ORIGIN_STOP write, got %q", port.writes)
	}
	last, _ := elog.Last()
	if last.Kind != eventlog.KindSent {
		t.Errorf("expected sent event, got %s", last.Kind)
	}
	if c.Mode() != "hardware" {
		t.Errorf("expected hardware mode, got %s", c.Mode())
	}
}

func TestWriteFailureTearsDownAndSimulates(t *testing.T) {
	port := &fakePort{failWrites: true}
	c, elog := newTestChannel(t, Options{PortName: "/dev/ttyACM0"}, port)
	c.Connect()

	if !c.Send(Urgent()) {
		t.Fatal("expected send to report success despite write failure")
	}
	if !port.closed {
		t.Error("expected failed port to be closed")
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected after write failure, got %s", c.State())
	}
	got := elog.Recent(2)
	if got[1].Kind != eventlog.KindSendError || got[0].Kind != eventlog.KindSimulated {
		t.Errorf("expected send_error then simulated, got %s then %s", got[1].Kind, got[0].Kind)
	}
}

func TestReconnectOnSendAfterWriteFailure(t *testing.T) {
	bad := &fakePort{failWrites: true}
	good := &fakePort{}
	queue := []*fakePort{bad, good}
	c, _ := newTestChannel(t, Options{PortName: "/dev/ttyACM0"}, nil)
	c.open = func(string, int) (serialPort, error) {
		p := queue[0]
		queue = queue[1:]
		return p, nil
	}

	c.Connect()
	c.Send(Urgent())
	c.Send(Idle())

	if len(good.writes) != 1 || good.writes[0] != "IDLE\n" {
		t.Errorf("expected IDLE written after reconnect, got %q", good.writes)
	}
	if c.State() != StateConnected {
		t.Errorf("expected connected after successful retry, got %s", c.State())
	}
}

func TestReadyBannerDrainedBeforeUse(t *testing.T) {
	port := &fakePort{boot: []byte("keychain fw 2.1\nREADY\n")}
	c, _ := newTestChannel(t, Options{PortName: "/dev/ttyACM0", WaitReady: true}, port)

	if st := c.Connect(); st != StateConnected {
		t.Fatalf("expected connected state, got %s", st)
	}
	if len(port.boot) != 0 {
		t.Errorf("expected boot banner drained, %q left", port.boot)
	}
}

func TestZeroCommandRefused(t *testing.T) {
	c, elog := newTestChannel(t, Options{Simulate: true}, nil)

	if c.Send(Command{}) {
		t.Error("expected zero command to be refused")
	}
	if elog.Len() != 0 {
		t.Errorf("expected no events for a refused command, got %d", elog.Len())
	}
}
