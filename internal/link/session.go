package link

import (
	"net"
	"sync"
	"time"

	"github.com/ctrlr/ctrlr/internal/frame"
	"github.com/google/uuid"
)

// session owns one TCP connection. Its reader and writer goroutines report
// back to the control loop through post, tagged with gen.
type session struct {
	id     string
	gen    uint64
	conn   net.Conn
	remote string

	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn net.Conn, gen uint64, queue int, writeTimeout time.Duration, post func(event)) *session {
	s := &session{
		id:     uuid.NewString()[:8],
		gen:    gen,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		out:    make(chan []byte, queue),
		closed: make(chan struct{}),
	}
	go s.readLoop(post)
	go s.writeLoop(writeTimeout, post)
	return s
}

func (s *session) readLoop(post func(event)) {
	for {
		payload, err := frame.Read(s.conn)
		if err != nil {
			post(transportClosed{gen: s.gen, err: err})
			return
		}
		post(frameIn{gen: s.gen, payload: payload})
	}
}

func (s *session) writeLoop(timeout time.Duration, post func(event)) {
	for {
		select {
		case <-s.closed:
			return
		case buf := <-s.out:
			if timeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			if _, err := s.conn.Write(buf); err != nil {
				post(transportClosed{gen: s.gen, err: err})
				s.close()
				return
			}
		}
	}
}

// Enqueue implements router.Writer. It never blocks.
func (s *session) Enqueue(buf []byte) error {
	select {
	case <-s.closed:
		return ErrTransportClosed
	default:
	}
	select {
	case s.out <- buf:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
