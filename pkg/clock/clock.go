// Package clock implements the per-root logical clock, clock-string
// rendering/parsing, and the named-cursor table. It generalizes an
// incrementing state index guarded by a mutex, an index a caller polls for
// its latest value, into a four-tuple clock that supports crash- and
// recrawl-safe "since" queries.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Tuple is a fully-qualified logical instant: (start_time, pid, root_number,
// tick). start_time and pid are process-wide and constant for the lifetime
// of the process; root_number and tick identify a specific root's clock.
type Tuple struct {
	StartTime  int64
	PID        int64
	RootNumber int64
	Tick       uint64
}

// String renders the tuple in the "c:<start>:<pid>:<root>:<tick>" form.
func (t Tuple) String() string {
	return fmt.Sprintf("c:%d:%d:%d:%d", t.StartTime, t.PID, t.RootNumber, t.Tick)
}

// ErrInvalidClockString indicates a clock string could not be parsed.
var ErrInvalidClockString = errors.New("clock: invalid clock string")

// Parse parses a rendered clock string. It accepts both the current
// four-field form ("c:<start>:<pid>:<root>:<tick>") and the legacy
// three-field form ("c:<pid>:<tick>"). A legacy
// string is treated as a fresh instance: its StartTime and RootNumber are
// zeroed and Legacy is set so callers can apply fresh-instance semantics.
type ParseResult struct {
	Tuple  Tuple
	Legacy bool
}

// Parse parses s into a ParseResult, or returns ErrInvalidClockString.
func Parse(s string) (ParseResult, error) {
	if !strings.HasPrefix(s, "c:") {
		return ParseResult{}, ErrInvalidClockString
	}
	fields := strings.Split(s[2:], ":")
	switch len(fields) {
	case 2:
		pid, err1 := strconv.ParseInt(fields[0], 10, 64)
		tick, err2 := strconv.ParseUint(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return ParseResult{}, ErrInvalidClockString
		}
		return ParseResult{Tuple: Tuple{PID: pid, Tick: tick}, Legacy: true}, nil
	case 4:
		start, err1 := strconv.ParseInt(fields[0], 10, 64)
		pid, err2 := strconv.ParseInt(fields[1], 10, 64)
		root, err3 := strconv.ParseInt(fields[2], 10, 64)
		tick, err4 := strconv.ParseUint(fields[3], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return ParseResult{}, ErrInvalidClockString
		}
		return ParseResult{Tuple: Tuple{StartTime: start, PID: pid, RootNumber: root, Tick: tick}}, nil
	default:
		return ParseResult{}, ErrInvalidClockString
	}
}

// ProcessContext carries the process-wide identity stamped into every clock
// this process renders: its start time and PID. It is constructed once at
// startup and threaded into every Clock rather than read from
// package-level globals.
type ProcessContext struct {
	StartTime int64
	PID       int64
}

// Clock is the monotonic per-root tick counter.
type Clock struct {
	mu         sync.Mutex
	process    ProcessContext
	rootNumber int64
	tick       uint64
}

// New creates a Clock for the given root, starting at tick 0.
func New(process ProcessContext, rootNumber int64) *Clock {
	return &Clock{process: process, rootNumber: rootNumber}
}

// Tick returns the current tick value without advancing it.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Advance strictly increases the tick and returns the new value. Every
// mutation the view records must call this exactly once: the tick strictly
// increases on every mutation the core records.
func (c *Clock) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.tick
}

// Tuple returns the fully-qualified clock tuple for the current tick.
func (c *Clock) Tuple() Tuple {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Tuple{
		StartTime:  c.process.StartTime,
		PID:        c.process.PID,
		RootNumber: c.rootNumber,
		Tick:       c.tick,
	}
}

// String renders the current clock as a clock string.
func (c *Clock) String() string {
	return c.Tuple().String()
}

// CursorTable is the map from cursor name to last-returned tick.
type CursorTable struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

// NewCursorTable creates an empty cursor table.
func NewCursorTable() *CursorTable {
	return &CursorTable{cursors: make(map[string]uint64)}
}

// Evaluate returns the cursor's previous tick (and whether it existed) and
// atomically advances it to currentTick.
func (t *CursorTable) Evaluate(name string, currentTick uint64) (previous uint64, existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, existed = t.cursors[name]
	t.cursors[name] = currentTick
	return previous, existed
}

// Peek returns a cursor's tick without mutating the table, for diagnostics.
func (t *CursorTable) Peek(name string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cursors[name]
	return v, ok
}

// Delete removes a cursor. An unknown cursor continues to evaluate as
// fresh-instance.
func (t *CursorTable) Delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, name)
}

// Since is one of the three since-clause shapes a query spec accepts: a
// timestamp, a clock tuple, or a named cursor.
type Since struct {
	Kind      SinceKind
	Timestamp int64
	Clock     Tuple
	Cursor    string
}

// SinceKind identifies which shape a Since value takes.
type SinceKind int

const (
	SinceTimestamp SinceKind = iota
	SinceClock
	SinceCursor
)

// Resolved is the concrete evaluation of a Since clause against a root's
// current state.
type Resolved struct {
	IsTimestamp      bool
	Timestamp        int64
	IsFreshInstance  bool
	Ticks            uint64
}

// Evaluate resolves spec against the root's process identity, root number,
// current tick, last-age-out tick, and cursor table:
//
//   - Timestamp: copied through.
//   - Clock tuple: matches current process/root and ticks >= lastAgeOutTick
//     -> ticks = clock.Ticks; otherwise fresh-instance.
//   - Named cursor: absent, or present but ticks < lastAgeOutTick -> fresh
//     instance; otherwise ticks = cursor's stored tick. In all cases the
//     cursor is atomically advanced to currentTick.
func Evaluate(spec Since, process ProcessContext, rootNumber int64, currentTick uint64, lastAgeOutTick uint64, cursors *CursorTable) Resolved {
	switch spec.Kind {
	case SinceTimestamp:
		return Resolved{IsTimestamp: true, Timestamp: spec.Timestamp}
	case SinceClock:
		c := spec.Clock
		if c.StartTime == process.StartTime && c.PID == process.PID && c.RootNumber == rootNumber && c.Tick >= lastAgeOutTick {
			return Resolved{Ticks: c.Tick}
		}
		return Resolved{IsFreshInstance: true}
	case SinceCursor:
		previous, existed := cursors.Evaluate(spec.Cursor, currentTick)
		if !existed || previous < lastAgeOutTick {
			return Resolved{IsFreshInstance: true}
		}
		return Resolved{Ticks: previous}
	default:
		return Resolved{IsFreshInstance: true}
	}
}

// ResolveClockString parses a client-supplied clock string and evaluates
// it. The legacy "c:<pid>:<tick>" form is always treated as a fresh
// instance rather than compared against the current process/root identity
// (which it cannot, by construction, carry).
func ResolveClockString(s string, process ProcessContext, rootNumber int64, currentTick uint64, lastAgeOutTick uint64) (Resolved, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Resolved{}, err
	}
	if parsed.Legacy {
		return Resolved{IsFreshInstance: true}, nil
	}
	return Evaluate(Since{Kind: SinceClock, Clock: parsed.Tuple}, process, rootNumber, currentTick, lastAgeOutTick, nil), nil
}
