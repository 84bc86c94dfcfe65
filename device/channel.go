package device

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/metrics"
)

// State is the channel's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateSimulated
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSimulated:
		return "simulated"
	}
	return "disconnected"
}

const (
	DefaultBaudRate = 115200

	defaultSettleDelay  = 2 * time.Second
	defaultReadyTimeout = 3 * time.Second
	readyBanner         = "READY"
)

// serialPort is the subset of serial.Port the channel uses.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
}

type openFunc func(name string, baud int) (serialPort, error)

func openSerial(name string, baud int) (serialPort, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// Options configures a Channel.
type Options struct {
	// PortName pins the serial endpoint, skipping discovery.
	PortName string
	BaudRate int
	// SettleDelay is how long to wait after open while the board reboots
	// off the DTR toggle.
	SettleDelay time.Duration
	// WaitReady reads firmware output for up to ReadyTimeout looking for
	// the READY banner. Best effort; timing out is not a connect failure.
	WaitReady    bool
	ReadyTimeout time.Duration
	// Simulate short-circuits all hardware interaction.
	Simulate bool
}

// Channel owns the serial link to the indicator device. Sends are
// serialized, and delivery failures degrade to the simulated path instead
// of propagating; callers never block or error merely because hardware is
// absent.
type Channel struct {
	mu   sync.Mutex
	opts Options
	elog *eventlog.Log

	open     openFunc
	discover func() (string, error)
	sleep    func(time.Duration)

	port   serialPort
	active string
	state  State
}

// NewChannel creates a channel in the disconnected state, or simulated when
// opts.Simulate is set. No hardware is touched until Connect or Send.
func NewChannel(opts Options, elog *eventlog.Log) *Channel {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if elog == nil {
		elog = eventlog.New(1)
	}
	c := &Channel{
		opts:     opts,
		elog:     elog,
		open:     openSerial,
		discover: DiscoverPort,
		sleep:    time.Sleep,
	}
	if opts.Simulate {
		c.state = StateSimulated
	}
	return c
}

// Connect eagerly establishes the hardware link. The channel accepts sends
// whatever the outcome; the returned state says which delivery path they
// will take.
func (c *Channel) Connect() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
	return c.state
}

func (c *Channel) connectLocked() {
	if c.state != StateDisconnected {
		return
	}
	name := c.opts.PortName
	if name == "" {
		var err error
		name, err = c.discover()
		if err != nil {
			log.Printf("device discovery failed: %v", err)
			c.elog.Append(eventlog.KindConnectError, err.Error())
			return
		}
	}
	p, err := c.open(name, c.opts.BaudRate)
	if err != nil {
		log.Printf("open %s failed: %v", name, err)
		c.elog.Append(eventlog.KindConnectError, fmt.Sprintf("%s: %v", name, err))
		return
	}
	c.sleep(c.opts.SettleDelay)
	if c.opts.WaitReady {
		c.awaitReady(p)
	}
	c.port = p
	c.active = name
	c.state = StateConnected
	log.Printf("device connected on %s at %d baud", name, c.opts.BaudRate)
	c.elog.Append(eventlog.KindConnect, name)
	metrics.SetDeviceConnected(true)
}

// awaitReady drains firmware boot output until the READY banner or the
// timeout, whichever comes first.
func (c *Channel) awaitReady(p serialPort) {
	if err := p.SetReadTimeout(c.opts.ReadyTimeout); err != nil {
		return
	}
	deadline := time.Now().Add(c.opts.ReadyTimeout)
	buf := make([]byte, 128)
	var seen []byte
	for time.Now().Before(deadline) {
		n, err := p.Read(buf)
		if err != nil || n == 0 {
			return
		}
		seen = append(seen, buf[:n]...)
		if strings.Contains(string(seen), readyBanner) {
			return
		}
	}
}

// Send delivers one command to the device. Delivery never fails from the
// caller's point of view: when no hardware is reachable the command is
// recorded as simulated and the result is still success. Only the zero
// Command is refused.
func (c *Channel) Send(cmd Command) bool {
	line := cmd.Line()
	if line == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		c.connectLocked()
	}
	if c.state != StateConnected {
		c.simulateLocked(line)
		return true
	}
	if _, err := c.port.Write([]byte(line + "\n")); err != nil {
		log.Printf("write to %s failed: %v", c.active, err)
		c.elog.Append(eventlog.KindSendError, fmt.Sprintf("%s: %v", line, err))
		c.teardownLocked()
		c.simulateLocked(line)
		return true
	}
	c.elog.Append(eventlog.KindSent, line)
	metrics.IncDeviceCommand(metrics.ModeHardware)
	return true
}

func (c *Channel) simulateLocked(line string) {
	c.elog.Append(eventlog.KindSimulated, line)
	metrics.IncDeviceCommand(metrics.ModeSimulated)
}

func (c *Channel) teardownLocked() {
	if c.port != nil {
		_ = c.port.Close()
		c.port = nil
	}
	c.active = ""
	c.state = StateDisconnected
	metrics.SetDeviceConnected(false)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode reports the delivery path for health reporting: "hardware" when a
// serial link is open, "simulated" otherwise.
func (c *Channel) Mode() string {
	if c.State() == StateConnected {
		return "hardware"
	}
	return "simulated"
}

// PortName returns the endpoint currently in use, empty when none.
func (c *Channel) PortName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close tears down the hardware link if one is open.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnected {
		c.teardownLocked()
	}
}
