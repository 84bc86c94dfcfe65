package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Side identifies which stop an alert command refers to.
type Side int

const (
	SideOrigin Side = iota
	SideDest
)

func (s Side) String() string {
	if s == SideDest {
		return "dest"
	}
	return "origin"
}

func (s Side) wirePrefix() string {
	if s == SideDest {
		return "DEST"
	}
	return "ORIGIN"
}

// LEDTarget selects the orientation indicator state.
type LEDTarget int

const (
	LEDNone LEDTarget = iota
	LEDOrigin
	LEDDest
)

func (t LEDTarget) wireSuffix() string {
	switch t {
	case LEDOrigin:
		return "ORIGIN"
	case LEDDest:
		return "DEST"
	}
	return "NONE"
}

// Command is one directive from the device vocabulary. The zero value is
// invalid and refused by Channel.Send; build commands through the
// constructors or Parse.
type Command struct {
	word       string
	freqHz     int
	durationMS int
	timed      bool
}

// Idle signals that no alert is active.
func Idle() Command { return Command{word: "IDLE"} }

// Urgent is the highest-priority alert, used for either side.
func Urgent() Command { return Command{word: "URGENT"} }

// StatusUpdate is the heartbeat ping.
func StatusUpdate() Command { return Command{word: "STATUS_UPDATE"} }

// Nearby builds the side-qualified nearby-level alert.
func Nearby(s Side) Command { return Command{word: s.wirePrefix() + "_NEARBY"} }

// Approach builds the side-qualified approach-level alert.
func Approach(s Side) Command { return Command{word: s.wirePrefix() + "_APPROACH"} }

// AtStop builds the side-qualified stop-level alert.
func AtStop(s Side) Command { return Command{word: s.wirePrefix() + "_STOP"} }

// LEDStatus builds the orientation signal for the side with the sooner
// arrival, or none.
func LEDStatus(t LEDTarget) Command { return Command{word: "LED_STATUS_" + t.wireSuffix()} }

// Tone requests a raw tone at freqHz for durationMS.
func Tone(freqHz, durationMS int) Command {
	return Command{word: "TONE", freqHz: freqHz, durationMS: durationMS, timed: true}
}

// Buzz requests a raw buzz at freqHz for durationMS.
func Buzz(freqHz, durationMS int) Command {
	return Command{word: "BUZZ", freqHz: freqHz, durationMS: durationMS, timed: true}
}

// Line returns the wire form of the command without the trailing newline.
// The zero Command serializes to the empty string.
func (c Command) Line() string {
	if c.word == "" {
		return ""
	}
	if c.timed {
		return fmt.Sprintf("%s %d %d", c.word, c.freqHz, c.durationMS)
	}
	return c.word
}

func (c Command) String() string { return c.Line() }

// IsZero reports whether c was not produced by a constructor.
func (c Command) IsZero() bool { return c.word == "" }

var bareWords = map[string]struct{}{
	"IDLE":              {},
	"URGENT":            {},
	"STATUS_UPDATE":     {},
	"ORIGIN_NEARBY":     {},
	"ORIGIN_APPROACH":   {},
	"ORIGIN_STOP":       {},
	"DEST_NEARBY":       {},
	"DEST_APPROACH":     {},
	"DEST_STOP":         {},
	"LED_STATUS_ORIGIN": {},
	"LED_STATUS_DEST":   {},
	"LED_STATUS_NONE":   {},
}

// Parse validates raw text against the command vocabulary. Words are
// case-sensitive; TONE and BUZZ take a positive frequency in Hz and a
// positive duration in ms.
func Parse(raw string) (Command, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	word := fields[0]
	if word == "TONE" || word == "BUZZ" {
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("%s requires <freq_hz> <duration_ms>", word)
		}
		freq, err := strconv.Atoi(fields[1])
		if err != nil || freq <= 0 {
			return Command{}, fmt.Errorf("%s frequency must be a positive integer, got %q", word, fields[1])
		}
		dur, err := strconv.Atoi(fields[2])
		if err != nil || dur <= 0 {
			return Command{}, fmt.Errorf("%s duration must be a positive integer, got %q", word, fields[2])
		}
		return Command{word: word, freqHz: freq, durationMS: dur, timed: true}, nil
	}
	if len(fields) != 1 {
		return Command{}, fmt.Errorf("unknown command: %q", raw)
	}
	if _, ok := bareWords[word]; !ok {
		return Command{}, fmt.Errorf("unknown command: %q", word)
	}
	return Command{word: word}, nil
}
