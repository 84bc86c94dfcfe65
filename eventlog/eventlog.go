package eventlog

import (
	"sync"

	"github.com/stem-connect/keyroute/utils"
)

// Entry kinds recorded by the engine.
const (
	KindConnect      = "connect"
	KindConnectError = "connect_error"
	KindSent         = "sent"
	KindSimulated    = "simulated"
	KindSendError    = "send_error"
	KindManual       = "manual"
	KindPollError    = "poll_error"
	KindConfig       = "config"
)

// Entry is one diagnostic record.
type Entry struct {
	TS      string `json:"ts"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// Log is a bounded ring of entries, oldest evicted first.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	notify   func(Entry)
}

// New creates a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Notify registers fn to be called after every append. Only one hook is
// kept; passing nil removes it. The hook runs outside the log's lock.
func (l *Log) Notify(fn func(Entry)) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

// Append records an entry stamped with the current time.
func (l *Log) Append(kind, payload string) {
	e := Entry{TS: utils.Iso8601Now(), Kind: kind, Payload: payload}
	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, e)
	fn := l.notify
	l.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// Last returns the most recent entry, if any.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
