// Package link supervises the ctrlr connection in either role. All state
// lives on one control goroutine per link; I/O goroutines, discovery and
// timers post events back to it tagged with the attempt generation, and
// events from a superseded generation are discarded on arrival.
package link

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/ctrlr/ctrlr/internal/discovery"
	"github.com/ctrlr/ctrlr/internal/frame"
	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/router"
	"github.com/ctrlr/ctrlr/internal/status"
	"github.com/ctrlr/ctrlr/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultHandshakeTimeout is how long a new connection may stay unverified
	DefaultHandshakeTimeout = 5 * time.Second
	// DefaultRetryBackoff separates a failure from the next attempt
	DefaultRetryBackoff = 3 * time.Second
	// DefaultConnectTimeout bounds a TCP dial
	DefaultConnectTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds a single frame write
	DefaultWriteTimeout = 2 * time.Second
	// DefaultSendQueue is the per-connection outbound frame buffer
	DefaultSendQueue = 64

	eventQueue = 64
)

// Link is the interface UI and glue code use to drive the core.
type Link interface {
	// Run drives the link until ctx is cancelled
	Run(ctx context.Context) error
	// Send frames msg to the verified peer; no-op with ErrNoDestination otherwise
	Send(msg []byte) error
	// OnReceive registers a callback for every inbound control message
	OnReceive(fn func(msg []byte))
	// Reconnect restarts discovery from scratch, clearing rejected endpoints
	Reconnect()
	State() status.State
	PeerName() string
	Snapshot() status.Snapshot
	Diagnostics() []string
	Subscribe(buf int) (<-chan status.Event, func())
	Targets() []midi.Info
	RefreshTargets() error
	SelectTarget(id string) error
}

// Config holds the settings shared by both roles
type Config struct {
	Service          discovery.Service
	HandshakeTimeout time.Duration
	RetryBackoff     time.Duration
	ConnectTimeout   time.Duration
	WriteTimeout     time.Duration
	SendQueue        int
	LogSize          int
	// Targets receives inbound control messages; a log target is used if nil
	Targets *midi.Registry
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Service == (discovery.Service{}) {
		c.Service = discovery.DefaultService()
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.SendQueue == 0 {
		c.SendQueue = DefaultSendQueue
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Targets == nil {
		c.Targets = midi.NewRegistry("")
		c.Targets.Add(midi.NewLogTarget(c.Logger))
	}
}

// events posted to the control loop
type event interface{}

type (
	frameIn struct {
		gen     uint64
		payload []byte
	}
	transportClosed struct {
		gen uint64
		err error
	}
	handshakeExpired struct{ gen uint64 }
	retryDue         struct{ gen uint64 }
	reconnectReq     struct{}
)

// core is the machinery both roles share: the event queue, the current
// session, the router and the publisher.
type core struct {
	role    string
	cfg     Config
	log     *zap.Logger
	pub     *status.Publisher
	router  *router.Router
	metrics *telemetry.Metrics

	events  chan event
	done    chan struct{}
	running atomic.Bool

	// owned by the control goroutine
	gen     uint64
	sess    *session
	hsTimer *time.Timer
	retry   *time.Timer
}

func newCore(role string, cfg Config) *core {
	cfg.setDefaults()
	log := cfg.Logger.Named(role)
	c := &core{
		role:    role,
		cfg:     cfg,
		log:     log,
		pub:     status.NewPublisher(role, cfg.LogSize, log),
		router:  router.New(cfg.Targets, cfg.Metrics, log),
		metrics: cfg.Metrics,
		events:  make(chan event, eventQueue),
		done:    make(chan struct{}),
	}
	c.router.OnDrop(func(msg []byte, err error) {
		c.pub.Warnf("send: dropped %s: %v", midi.Describe(msg), err)
	})
	return c
}

// post delivers ev to the control loop unless the loop has exited.
func (c *core) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// after posts ev once d elapses.
func (c *core) after(d time.Duration, ev event) *time.Timer {
	return time.AfterFunc(d, func() { c.post(ev) })
}

// start claims the single Run of a link.
func (c *core) start() error {
	if c.running.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
		return ErrAlreadyRunning
	}
}

func (c *core) setState(s status.State) {
	c.pub.Update(func(snap *status.Snapshot) { snap.State = s })
	c.metrics.StateChanged(c.role, s.String(), int(s))
}

// attach starts a session for conn under a fresh generation and arms the
// handshake timer.
func (c *core) attach(conn net.Conn) *session {
	c.gen++
	c.sess = newSession(conn, c.gen, c.cfg.SendQueue, c.cfg.WriteTimeout, c.post)
	c.pub.Update(func(s *status.Snapshot) {
		s.State = status.AwaitingHandshake
		s.Endpoint = c.sess.remote
		s.Discovery = ""
	})
	c.metrics.StateChanged(c.role, status.AwaitingHandshake.String(), int(status.AwaitingHandshake))
	c.hsTimer = c.after(c.cfg.HandshakeTimeout, handshakeExpired{gen: c.gen})
	return c.sess
}

// ping writes one handshake frame on the current session.
func (c *core) ping() {
	if c.sess == nil {
		return
	}
	buf, _ := frame.Encode(frame.Handshake)
	if err := c.sess.Enqueue(buf); err != nil {
		c.pub.Warnf("conn %s: handshake ping failed: %v", c.sess.id, err)
		return
	}
	c.metrics.Frame("out", "handshake")
}

// verify marks the current session usable.
func (c *core) verify(peer string) {
	c.stopHandshakeTimer()
	c.router.Attach(c.sess)
	c.pub.Update(func(s *status.Snapshot) {
		s.State = status.Verified
		s.Connected = true
		s.Peer = peer
		s.SourceCount = 1
	})
	c.metrics.StateChanged(c.role, status.Verified.String(), int(status.Verified))
	c.pub.Infof("conn %s: verified %s", c.sess.id, c.sess.remote)
}

// dropSession tears down the current connection and resets every
// per-connection field of the published snapshot.
func (c *core) dropSession() {
	c.stopHandshakeTimer()
	if c.sess != nil {
		c.router.Detach(c.sess)
		c.sess.close()
		c.sess = nil
	}
	c.pub.Update(func(s *status.Snapshot) {
		s.Connected = false
		s.Peer = ""
		s.SourceCount = 0
		s.Endpoint = ""
	})
}

func (c *core) stopHandshakeTimer() {
	if c.hsTimer != nil {
		c.hsTimer.Stop()
		c.hsTimer = nil
	}
}

func (c *core) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// inbound routes one frame of the current session. It returns true when
// the frame was a handshake ping.
func (c *core) inbound(payload []byte) bool {
	st := c.pub.Snapshot().State
	if st != status.Verified && !frame.IsHandshake(payload) {
		c.metrics.Dropped("unverified")
		c.log.Debug("dropping control frame before handshake", zap.String("msg", midi.Describe(payload)))
		return false
	}
	kind, err := c.router.Inbound(payload)
	if err != nil {
		c.pub.Warnf("route: %s: %v", midi.Describe(payload), err)
	}
	return kind == router.KindHandshake
}

func (c *core) current(gen uint64) bool {
	return gen == c.gen
}

// Send implements Link
func (c *core) Send(msg []byte) error { return c.router.Send(msg) }

// OnReceive implements Link
func (c *core) OnReceive(fn func(msg []byte)) { c.router.OnReceive(fn) }

// Reconnect implements Link. It is safe from any goroutine and any state.
func (c *core) Reconnect() { c.post(reconnectReq{}) }

// State implements Link
func (c *core) State() status.State { return c.pub.Snapshot().State }

// PeerName implements Link; empty when not verified
func (c *core) PeerName() string { return c.pub.Snapshot().Peer }

// Snapshot implements Link
func (c *core) Snapshot() status.Snapshot { return c.pub.Snapshot() }

// Diagnostics implements Link
func (c *core) Diagnostics() []string { return c.pub.Lines() }

// Subscribe implements Link
func (c *core) Subscribe(buf int) (<-chan status.Event, func()) { return c.pub.Subscribe(buf) }

// Targets implements Link
func (c *core) Targets() []midi.Info { return c.cfg.Targets.List() }

// RefreshTargets implements Link
func (c *core) RefreshTargets() error {
	err := c.cfg.Targets.Refresh()
	c.pub.Infof("targets: %d available", len(c.cfg.Targets.List()))
	return err
}

// SelectTarget implements Link
func (c *core) SelectTarget(id string) error {
	if err := c.cfg.Targets.Select(id); err != nil {
		return err
	}
	c.pub.Infof("targets: selected %s", id)
	return nil
}
