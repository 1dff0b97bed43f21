package link

import (
	"context"
	"errors"
	"net"

	"github.com/ctrlr/ctrlr/internal/discovery"
	"github.com/ctrlr/ctrlr/internal/status"
	"go.uber.org/zap"
)

// Resolver finds the advertised peer. *discovery.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, q discovery.Query) (discovery.PeerAddress, error)
}

// DialFunc opens the TCP connection to a resolved peer
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type (
	discovered struct {
		gen  uint64
		addr discovery.PeerAddress
	}
	discoveryFailed struct {
		gen uint64
		err error
	}
	discoveryNote struct {
		gen uint64
		msg string
	}
	recordRejected struct {
		gen    uint64
		addr   discovery.PeerAddress
		reason string
	}
	dialed struct {
		gen  uint64
		conn net.Conn
	}
	dialFailed struct {
		gen uint64
		err error
	}
)

// Supervisor is the discovering role: it resolves the advertiser, dials
// it, and waits for its handshake ping before routing anything.
type Supervisor struct {
	*core
	resolver Resolver
	dial     DialFunc

	// owned by the control goroutine
	rejected map[string]struct{}
	attempt  context.CancelFunc
	target   discovery.PeerAddress
}

// NewSupervisor creates a discoverer. dial may be nil.
func NewSupervisor(cfg Config, resolver Resolver, dial DialFunc) *Supervisor {
	c := newCore("discoverer", cfg)
	if dial == nil {
		d := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
		dial = d.DialContext
	}
	return &Supervisor{
		core:     c,
		resolver: resolver,
		dial:     dial,
		rejected: make(map[string]struct{}),
	}
}

// Run implements Link
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.start(); err != nil {
		return err
	}
	defer close(s.done)
	s.pub.Infof("discoverer: looking for %s", s.cfg.Service.Instance)
	s.startDiscovery()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Supervisor) handle(ev event) {
	switch ev := ev.(type) {
	case discoveryNote:
		if s.current(ev.gen) {
			s.pub.Infof("discovery: %s", ev.msg)
			s.pub.Update(func(snap *status.Snapshot) { snap.Discovery = ev.msg })
		}
	case recordRejected:
		if s.current(ev.gen) {
			s.reject(ev.addr, ev.reason)
		}
	case discovered:
		if s.current(ev.gen) {
			s.connect(ev.addr)
		}
	case discoveryFailed:
		if s.current(ev.gen) {
			s.metrics.Discovery("failed")
			s.fail("discovery", ev.err)
		}
	case dialed:
		if !s.current(ev.gen) {
			ev.conn.Close()
			return
		}
		s.attach(ev.conn)
		s.pub.Infof("conn %s: connected to %s, awaiting handshake", s.sess.id, s.target)
	case dialFailed:
		if s.current(ev.gen) {
			s.fail("connect", errors.Join(ErrConnectFailed, ev.err))
		}
	case frameIn:
		if !s.current(ev.gen) || s.sess == nil {
			return
		}
		if s.inbound(ev.payload) && s.State() == status.AwaitingHandshake {
			s.verify(s.cfg.Service.Instance)
			// one reply ping lets the advertiser verify this side
			s.ping()
		}
	case handshakeExpired:
		if !s.current(ev.gen) || s.State() != status.AwaitingHandshake {
			return
		}
		s.reject(s.target, "no handshake")
		s.fail("handshake", ErrHandshakeTimeout)
	case transportClosed:
		if !s.current(ev.gen) {
			return
		}
		s.fail("conn", errors.Join(ErrTransportClosed, ev.err))
	case retryDue:
		if s.current(ev.gen) {
			s.startDiscovery()
		}
	case reconnectReq:
		s.teardown()
		clear(s.rejected)
		s.pub.Update(func(snap *status.Snapshot) { snap.Rejected = 0 })
		s.pub.Infof("reconnect requested, rejected endpoints cleared")
		s.startDiscovery()
	}
}

// startDiscovery begins a new attempt generation.
func (s *Supervisor) startDiscovery() {
	s.teardown()
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.attempt = cancel
	s.target = discovery.PeerAddress{}
	s.setState(status.Discovering)

	q := discovery.Query{
		Rejected: make(map[string]struct{}, len(s.rejected)),
		OnReject: func(addr discovery.PeerAddress, reason string) {
			s.post(recordRejected{gen: gen, addr: addr, reason: reason})
		},
		OnStatus: func(msg string) {
			s.post(discoveryNote{gen: gen, msg: msg})
		},
	}
	for k := range s.rejected {
		q.Rejected[k] = struct{}{}
	}
	go func() {
		addr, err := s.resolver.Resolve(ctx, q)
		if err != nil {
			s.post(discoveryFailed{gen: gen, err: err})
			return
		}
		s.post(discovered{gen: gen, addr: addr})
	}()
}

func (s *Supervisor) connect(addr discovery.PeerAddress) {
	if _, bad := s.rejected[addr.String()]; bad {
		s.fail("discovery", ErrStaleRecord)
		return
	}
	s.metrics.Discovery("found")
	s.target = addr
	s.pub.Update(func(snap *status.Snapshot) {
		snap.State = status.Connecting
		snap.Endpoint = addr.String()
		snap.Discovery = ""
	})
	s.metrics.StateChanged(s.role, status.Connecting.String(), int(status.Connecting))
	s.pub.Infof("conn: connecting to %s", addr)

	gen := s.gen
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	prev := s.attempt
	s.attempt = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}
	go func() {
		defer cancel()
		conn, err := s.dial(ctx, "tcp", addr.String())
		if err != nil {
			s.post(dialFailed{gen: gen, err: err})
			return
		}
		s.post(dialed{gen: gen, conn: conn})
	}()
}

func (s *Supervisor) reject(addr discovery.PeerAddress, reason string) {
	if addr.IsZero() {
		return
	}
	key := addr.String()
	if _, ok := s.rejected[key]; ok {
		return
	}
	s.rejected[key] = struct{}{}
	n := len(s.rejected)
	s.pub.Update(func(snap *status.Snapshot) { snap.Rejected = n })
	s.metrics.Rejected(reason)
	s.pub.Warnf("discovery: rejected %s (%s)", key, reason)
}

// fail tears the attempt down, enters Failed and schedules the next one.
func (s *Supervisor) fail(stage string, err error) {
	s.teardown()
	s.gen++
	s.setState(status.Failed)
	s.pub.Warnf("%s: %v, retrying in %s", stage, err, s.cfg.RetryBackoff)
	s.retry = s.after(s.cfg.RetryBackoff, retryDue{gen: s.gen})
}

// teardown cancels in-flight work and drops the session.
func (s *Supervisor) teardown() {
	s.stopRetry()
	if s.attempt != nil {
		s.attempt()
		s.attempt = nil
	}
	s.dropSession()
}

func (s *Supervisor) shutdown() {
	s.teardown()
	s.gen++
	s.setState(status.Disconnected)
	s.log.Info("discoverer stopped", zap.Int("rejected", len(s.rejected)))
}
