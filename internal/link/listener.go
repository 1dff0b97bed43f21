package link

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/ctrlr/ctrlr/internal/status"
	"go.uber.org/zap"
)

// Announcer publishes the listening port. *discovery.Advertiser implements it.
type Announcer interface {
	Advertise(port int) error
	// Port is the port currently on record, 0 if none
	Port() int
	Shutdown()
}

// ListenFunc opens the listening socket
type ListenFunc func(network, addr string) (net.Listener, error)

type (
	accepted struct {
		lgen uint64
		conn net.Conn
	}
	acceptFailed struct {
		lgen uint64
		err  error
	}
	rebindDue    struct{ lgen uint64 }
	advertiseDue struct{ port int }
)

// Listener is the advertising role: it serves one TCP port, announces it,
// and pings every accepted connection. A newer connection always
// supersedes the current one.
type Listener struct {
	*core
	addr      string
	announcer Announcer
	listen    ListenFunc
	bound     atomic.Value // string

	// owned by the control goroutine
	ln          net.Listener
	lgen        uint64
	port        int
	readvertise *time.Timer
}

// NewListener creates an advertiser listening on addr ("host:port", port
// 0 for ephemeral). announcer may be nil.
func NewListener(cfg Config, addr string, announcer Announcer) *Listener {
	l := &Listener{
		core:      newCore("advertiser", cfg),
		addr:      addr,
		announcer: announcer,
		listen:    net.Listen,
	}
	l.bound.Store("")
	return l
}

// Addr is the bound listening address, empty before Run binds
func (l *Listener) Addr() string {
	return l.bound.Load().(string)
}

// Run implements Link. It only returns early with ErrListenUnavailable.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.start(); err != nil {
		return err
	}
	defer close(l.done)
	if err := l.bind(); err != nil {
		return l.fatal(err)
	}
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case ev := <-l.events:
			if err := l.handle(ev); err != nil {
				return l.fatal(err)
			}
		}
	}
}

func (l *Listener) handle(ev event) error {
	switch ev := ev.(type) {
	case accepted:
		if ev.lgen != l.lgen {
			ev.conn.Close()
			return nil
		}
		if l.sess != nil {
			l.pub.Infof("conn %s: superseded by %s", l.sess.id, ev.conn.RemoteAddr())
			l.dropSession()
		}
		l.attach(ev.conn)
		l.pub.Infof("conn %s: accepted %s", l.sess.id, l.sess.remote)
		l.ping()
	case acceptFailed:
		if ev.lgen != l.lgen {
			return nil
		}
		l.pub.Warnf("listen: %v, rebinding in %s", ev.err, l.cfg.RetryBackoff)
		l.closeListener()
		l.dropSession()
		l.gen++
		l.setState(status.Failed)
		l.retry = l.after(l.cfg.RetryBackoff, rebindDue{lgen: l.lgen})
	case rebindDue:
		if ev.lgen == l.lgen && l.ln == nil {
			return l.bind()
		}
	case advertiseDue:
		if ev.port == l.port {
			l.announce()
		}
	case frameIn:
		if !l.current(ev.gen) || l.sess == nil {
			return nil
		}
		if l.inbound(ev.payload) && l.State() == status.AwaitingHandshake {
			l.verify(peerHost(l.sess.remote))
		}
	case handshakeExpired:
		if !l.current(ev.gen) || l.State() != status.AwaitingHandshake {
			return nil
		}
		l.pub.Warnf("conn %s: no handshake from %s within %s", l.sess.id, l.sess.remote, l.cfg.HandshakeTimeout)
		l.metrics.Rejected("no handshake")
		l.resume()
	case transportClosed:
		if !l.current(ev.gen) || l.sess == nil {
			return nil
		}
		l.pub.Infof("conn %s: closed: %v", l.sess.id, ev.err)
		l.resume()
	case reconnectReq:
		l.pub.Infof("reconnect requested")
		if l.ln == nil {
			l.stopRetry()
			l.dropSession()
			l.gen++
			return l.bind()
		}
		l.resume()
	}
	return nil
}

// bind opens the listening socket, falling back to an ephemeral port when
// the preferred one is taken, and re-announces if the port changed.
func (l *Listener) bind() error {
	ln, err := l.listen("tcp", l.addr)
	if err != nil {
		host, port, splitErr := net.SplitHostPort(l.addr)
		if splitErr != nil || port == "0" {
			return errors.Join(ErrListenUnavailable, err)
		}
		l.pub.Warnf("listen: %s unavailable (%v), using an ephemeral port", l.addr, err)
		ln, err = l.listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return errors.Join(ErrListenUnavailable, err)
		}
	}
	l.lgen++
	l.ln = ln
	l.bound.Store(ln.Addr().String())
	port := 0
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	l.pub.Infof("listen: serving on %s", ln.Addr())
	if port != l.port {
		l.port = port
		l.announce()
	}
	l.setListening()
	go l.acceptLoop(ln, l.lgen)
	return nil
}

func (l *Listener) acceptLoop(ln net.Listener, lgen uint64) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.post(acceptFailed{lgen: lgen, err: err})
			return
		}
		l.post(accepted{lgen: lgen, conn: conn})
	}
}

func (l *Listener) announce() {
	if l.announcer == nil {
		return
	}
	if l.readvertise != nil {
		l.readvertise.Stop()
		l.readvertise = nil
	}
	if err := l.announcer.Advertise(l.port); err != nil {
		l.pub.Warnf("advertise: %v, retrying in %s", err, l.cfg.RetryBackoff)
		l.readvertise = l.after(l.cfg.RetryBackoff, advertiseDue{port: l.port})
		return
	}
	l.pub.Infof("advertise: %s.%s on port %d", l.cfg.Service.Instance, l.cfg.Service.Type, l.announcer.Port())
}

// resume drops the current connection and goes back to waiting.
func (l *Listener) resume() {
	l.dropSession()
	l.gen++
	l.setListening()
}

func (l *Listener) setListening() {
	bound := l.Addr()
	l.pub.Update(func(s *status.Snapshot) {
		s.State = status.Listening
		s.Endpoint = bound
	})
	l.metrics.StateChanged(l.role, status.Listening.String(), int(status.Listening))
}

func (l *Listener) closeListener() {
	if l.ln != nil {
		// bump lgen first so the accept loop's error is ignored
		l.lgen++
		l.ln.Close()
		l.ln = nil
	}
}

func (l *Listener) shutdown() {
	l.stopRetry()
	if l.readvertise != nil {
		l.readvertise.Stop()
	}
	l.dropSession()
	l.gen++
	l.closeListener()
	if l.announcer != nil {
		l.announcer.Shutdown()
	}
	l.setState(status.Disconnected)
	l.log.Info("advertiser stopped", zap.String("addr", l.Addr()))
}

func (l *Listener) fatal(err error) error {
	l.shutdown()
	l.setState(status.Failed)
	l.pub.Warnf("listen: %v", err)
	return err
}

func peerHost(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
