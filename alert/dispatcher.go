package alert

import (
	"sync"

	"github.com/stem-connect/keyroute/device"
	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/metrics"
)

// Sender is the subset of device.Channel the dispatcher needs.
type Sender interface {
	Send(device.Command) bool
}

// Dispatcher converts classified levels into device commands. Alert
// commands are deduplicated per side so the buzzer only fires on
// transitions; the orientation indicator is refreshed every cycle.
type Dispatcher struct {
	sender Sender
	elog   *eventlog.Log

	mu   sync.Mutex
	last map[device.Side]Level
}

func NewDispatcher(sender Sender, elog *eventlog.Log) *Dispatcher {
	if elog == nil {
		elog = eventlog.New(1)
	}
	return &Dispatcher{
		sender: sender,
		elog:   elog,
		last: map[device.Side]Level{
			device.SideOrigin: LevelIdle,
			device.SideDest:   LevelIdle,
		},
	}
}

// Dispatch emits the alert command for side when the level changed since
// the previous cycle. The recorded level advances whether or not the write
// reached hardware. It reports whether a command was emitted.
func (d *Dispatcher) Dispatch(side device.Side, level Level) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last[side] == level {
		return false
	}
	d.last[side] = level
	metrics.IncAlertTransition(side.String(), level.String())
	d.sender.Send(commandFor(side, level))
	return true
}

// Orient points the direction indicator at the side with the sooner
// arrival; a tie or a single live side selects origin over dest. It is not
// deduplicated and runs on every poll cycle.
func (d *Dispatcher) Orient(originETA, destETA *int64) {
	target := device.LEDNone
	switch {
	case originETA != nil && destETA != nil:
		if *originETA <= *destETA {
			target = device.LEDOrigin
		} else {
			target = device.LEDDest
		}
	case originETA != nil:
		target = device.LEDOrigin
	case destETA != nil:
		target = device.LEDDest
	}
	d.sender.Send(device.LEDStatus(target))
}

// Inject pushes an operator-supplied command straight to the device,
// bypassing transition dedupe. It reports whether the device accepted the
// command.
func (d *Dispatcher) Inject(cmd device.Command) bool {
	if cmd.IsZero() {
		return false
	}
	d.elog.Append(eventlog.KindManual, cmd.Line())
	return d.sender.Send(cmd)
}

// Heartbeat pings the device between alert transitions.
func (d *Dispatcher) Heartbeat() {
	d.sender.Send(device.StatusUpdate())
}

// Reset returns both sides to idle tracking. Used when the watched stops
// change, so the next cycle re-announces current levels.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last[device.SideOrigin] = LevelIdle
	d.last[device.SideDest] = LevelIdle
}

func commandFor(side device.Side, level Level) device.Command {
	switch level {
	case LevelUrgent:
		return device.Urgent()
	case LevelStop:
		return device.AtStop(side)
	case LevelApproach:
		return device.Approach(side)
	case LevelNearby:
		return device.Nearby(side)
	}
	return device.Idle()
}
