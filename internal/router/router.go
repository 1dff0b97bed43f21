// Package router translates between wire frames and local control
// messages. Inbound frames are classified and delivered to the selected
// target; outbound messages are framed and handed to the attached
// connection. Nothing is queued when no connection is attached.
package router

import (
	"errors"
	"sync"

	"github.com/ctrlr/ctrlr/internal/frame"
	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/telemetry"
	"go.uber.org/zap"
)

// ErrNoDestination is returned by Send when no verified connection is attached
var ErrNoDestination = errors.New("no destination: link not verified")

// Kind classifies an inbound payload
type Kind int

const (
	KindIgnored Kind = iota
	KindHandshake
	KindControl
)

// Writer accepts encoded frames for one connection
type Writer interface {
	Enqueue(frame []byte) error
}

// Router routes control messages in both directions
type Router struct {
	targets *midi.Registry
	metrics *telemetry.Metrics
	log     *zap.Logger

	mu        sync.RWMutex
	writer    Writer
	observers []func(msg []byte)
	onDrop    func(msg []byte, err error)
}

// New creates a Router delivering to targets
func New(targets *midi.Registry, metrics *telemetry.Metrics, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{targets: targets, metrics: metrics, log: log.Named("router")}
}

// OnReceive registers fn to be called with every inbound control message
func (r *Router) OnReceive(fn func(msg []byte)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// OnDrop sets the hook told about every dropped outbound message
func (r *Router) OnDrop(fn func(msg []byte, err error)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// Attach makes w the outbound destination
func (r *Router) Attach(w Writer) {
	r.mu.Lock()
	r.writer = w
	r.mu.Unlock()
}

// Detach clears the destination if it is still w
func (r *Router) Detach(w Writer) {
	r.mu.Lock()
	if r.writer == w {
		r.writer = nil
	}
	r.mu.Unlock()
}

// attached reports whether a destination is set
func (r *Router) attached() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writer != nil
}

// Inbound classifies payload and routes control messages. Handshakes are
// returned to the caller and never routed. The returned error reports a
// failed delivery to the local target.
func (r *Router) Inbound(payload []byte) (Kind, error) {
	if len(payload) == 0 {
		return KindIgnored, nil
	}
	if frame.IsHandshake(payload) {
		r.metrics.Frame("in", "handshake")
		return KindHandshake, nil
	}
	r.metrics.Frame("in", "control")

	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(payload)
	}

	if r.targets == nil {
		return KindControl, nil
	}
	if err := r.targets.Send(payload); err != nil {
		r.metrics.Dropped("target")
		return KindControl, err
	}
	return KindControl, nil
}

// Send frames msg and hands it to the attached connection. Every value is
// sent as its own frame; there is no coalescing.
func (r *Router) Send(msg []byte) error {
	buf, err := frame.Encode(msg)
	if err != nil {
		r.drop(msg, "too_large", err)
		return err
	}

	r.mu.RLock()
	w := r.writer
	r.mu.RUnlock()
	if w == nil {
		r.drop(msg, "no_destination", ErrNoDestination)
		return ErrNoDestination
	}
	if err := w.Enqueue(buf); err != nil {
		r.drop(msg, "write", err)
		return err
	}
	r.metrics.Frame("out", "control")
	return nil
}

func (r *Router) drop(msg []byte, reason string, err error) {
	r.metrics.Dropped(reason)
	r.log.Debug("dropped outbound message", zap.String("msg", midi.Describe(msg)), zap.Error(err))

	r.mu.RLock()
	fn := r.onDrop
	r.mu.RUnlock()
	if fn != nil {
		fn(msg, err)
	}
}
