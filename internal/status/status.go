// Package status publishes the link's connection state and a rolling
// diagnostic log to observers. Only the link's control goroutine mutates a
// Publisher; any goroutine may read or subscribe.
package status

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLogSize is how many diagnostic entries are retained
const DefaultLogSize = 64

// State is the logical connection state
type State int

const (
	Disconnected State = iota
	Discovering
	Listening
	Connecting
	AwaitingHandshake
	Verified
	Failed
)

var stateNames = [...]string{
	Disconnected:      "disconnected",
	Discovering:       "discovering",
	Listening:         "listening",
	Connecting:        "connecting",
	AwaitingHandshake: "awaiting-handshake",
	Verified:          "verified",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return Disconnected, false
}

// Snapshot is the published, per-connection view of a link
type Snapshot struct {
	Role  string
	State State
	// Connected is true only while Verified
	Connected bool
	// Peer is the verified peer's display name
	Peer string
	// Endpoint is the address being connected to or served
	Endpoint string
	// SourceCount is the number of live control-message sources (0 or 1)
	SourceCount int
	// Rejected is the size of the rejected-endpoint set
	Rejected int
	// Discovery describes the active discovery mechanism
	Discovery string
	// Since is when State was entered
	Since time.Time
}

// Level tags a diagnostic entry
type Level string

const (
	LevelInfo Level = "INFO"
	LevelWarn Level = "WARN"
)

// Entry is one diagnostic log line
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.Format("15:04:05.000"), e.Level, e.Message)
}

// Event is delivered to subscribers on every mutation. Entry is nil for
// pure state changes.
type Event struct {
	Snapshot Snapshot
	Entry    *Entry
}

// Publisher holds the current snapshot and diagnostic history
type Publisher struct {
	log *zap.Logger
	max int

	mu      sync.RWMutex
	snap    Snapshot
	entries []Entry
	subs    map[int]chan Event
	nextSub int
}

// NewPublisher creates a Publisher for role keeping max log entries
func NewPublisher(role string, max int, log *zap.Logger) *Publisher {
	if max <= 0 {
		max = DefaultLogSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		log:  log.Named("status"),
		max:  max,
		snap: Snapshot{Role: role, State: Disconnected, Since: time.Now()},
		subs: make(map[int]chan Event),
	}
}

// Snapshot returns the current state
func (p *Publisher) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Entries returns the diagnostic history, oldest first
func (p *Publisher) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entry(nil), p.entries...)
}

// Lines returns the diagnostic history rendered as text
func (p *Publisher) Lines() []string {
	entries := p.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// Update applies fn to the snapshot and notifies subscribers. Since is
// refreshed when the state changes.
func (p *Publisher) Update(fn func(s *Snapshot)) {
	p.mu.Lock()
	prev := p.snap.State
	fn(&p.snap)
	if p.snap.State != prev {
		p.snap.Since = time.Now()
		p.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", p.snap.State))
	}
	ev := Event{Snapshot: p.snap}
	p.broadcastLocked(ev)
	p.mu.Unlock()
}

// Infof appends an INFO entry
func (p *Publisher) Infof(format string, args ...any) {
	p.append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf appends a WARN entry
func (p *Publisher) Warnf(format string, args ...any) {
	p.append(LevelWarn, fmt.Sprintf(format, args...))
}

func (p *Publisher) append(level Level, msg string) {
	e := Entry{Time: time.Now(), Level: level, Message: msg}
	if level == LevelWarn {
		p.log.Warn(msg)
	} else {
		p.log.Info(msg)
	}

	p.mu.Lock()
	p.entries = append(p.entries, e)
	if over := len(p.entries) - p.max; over > 0 {
		p.entries = append(p.entries[:0:0], p.entries[over:]...)
	}
	p.broadcastLocked(Event{Snapshot: p.snap, Entry: &e})
	p.mu.Unlock()
}

// Subscribe returns a channel of events and a cancel func. Events are
// dropped for subscribers that fall more than buf events behind.
func (p *Publisher) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// broadcastLocked fans ev out without blocking. Caller must hold p.mu.
func (p *Publisher) broadcastLocked(ev Event) {
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
