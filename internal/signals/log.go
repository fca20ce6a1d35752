// Package signals records client-side script errors for one browser session.
//
// The log is append-only: entries are never removed or reordered while the
// session lives. Callers take a Baseline right before an action and ask for
// the Delta afterwards to see exactly which errors the action produced.
package signals

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadySubscribed is returned when a second source is attached to a log.
var ErrAlreadySubscribed = errors.New("signals: log already subscribed")

// Channel identifies where an error was observed.
type Channel int

const (
	// RuntimeError is an uncaught exception thrown by page script.
	RuntimeError Channel = iota
	// ConsoleError is a console.error call.
	ConsoleError
)

func (c Channel) String() string {
	switch c {
	case RuntimeError:
		return "runtime"
	case ConsoleError:
		return "console"
	default:
		return "unknown"
	}
}

// MarshalText lets channels appear as strings in JSON evidence.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Entry is one recorded error.
type Entry struct {
	Sequence  int       `json:"sequence"`
	Channel   Channel   `json:"channel"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Baseline marks the log position right before an action.
type Baseline struct {
	// Sequence is the first sequence number that belongs to the delta.
	Sequence int `json:"sequence"`
	Runtime  int `json:"runtime"`
	Console  int `json:"console"`
}

// Delta is the ordered slice of entries recorded at or after a baseline.
type Delta []Entry

// Empty reports whether nothing was recorded since the baseline.
func (d Delta) Empty() bool { return len(d) == 0 }

// Messages returns the entry messages in sequence order.
func (d Delta) Messages() []string {
	if len(d) == 0 {
		return nil
	}
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Message
	}
	return out
}

// Source delivers error callbacks. driver.Page satisfies it.
type Source interface {
	SubscribeRuntimeError(fn func(message string))
	SubscribeConsoleError(fn func(message string))
}

// Log is the session-scoped error log. Both channels share one sequence
// counter, so the arrival order across channels is total.
type Log struct {
	mu         sync.Mutex
	entries    []Entry
	counts     [2]int
	subscribed bool
	closed     bool
	now        func() time.Time
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// Subscribe wires both channels of src into the log. Subscriptions stay in
// place until Close; a log accepts exactly one source.
func (l *Log) Subscribe(src Source) error {
	l.mu.Lock()
	if l.subscribed {
		l.mu.Unlock()
		return ErrAlreadySubscribed
	}
	l.subscribed = true
	l.mu.Unlock()

	src.SubscribeRuntimeError(func(msg string) { l.Record(RuntimeError, msg) })
	src.SubscribeConsoleError(func(msg string) { l.Record(ConsoleError, msg) })
	return nil
}

// Record appends a message and returns the stored entry. Records after
// Close are dropped and return an entry with Sequence -1.
func (l *Log) Record(ch Channel, message string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Entry{Sequence: -1, Channel: ch, Message: message}
	}
	e := Entry{
		Sequence:  len(l.entries),
		Channel:   ch,
		Message:   message,
		Timestamp: l.now(),
	}
	l.entries = append(l.entries, e)
	if ch == RuntimeError || ch == ConsoleError {
		l.counts[ch]++
	}
	return e
}

// Baseline snapshots the current position.
func (l *Log) Baseline() Baseline {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Baseline{
		Sequence: len(l.entries),
		Runtime:  l.counts[RuntimeError],
		Console:  l.counts[ConsoleError],
	}
}

// Delta returns a copy of every entry with Sequence >= b.Sequence.
func (l *Log) Delta(b Baseline) Delta {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := b.Sequence
	if start < 0 {
		start = 0
	}
	if start >= len(l.entries) {
		return nil
	}
	out := make(Delta, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Entries returns a copy of the whole log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the log from accepting further records. History stays readable.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
