package link

import (
	"errors"

	"github.com/ctrlr/ctrlr/internal/discovery"
	"github.com/ctrlr/ctrlr/internal/frame"
	"github.com/ctrlr/ctrlr/internal/router"
)

// Every error except ErrListenUnavailable is recovered inside the link by
// restarting discovery (or listening); they surface only in diagnostics
// and as return values of Send.
var (
	ErrDiscoveryTimeout = discovery.ErrTimeout
	ErrDiscoveryFailed  = discovery.ErrFailed
	ErrStaleRecord      = discovery.ErrStaleRecord
	ErrConnectFailed    = errors.New("connect failed")
	ErrHandshakeTimeout = errors.New("handshake timed out")
	ErrTransportClosed  = errors.New("transport closed")
	ErrNoDestination    = router.ErrNoDestination
	ErrFrameTooLarge    = frame.ErrTooLarge
	ErrSendQueueFull    = errors.New("send queue full")

	// ErrListenUnavailable is fatal: the listening socket cannot be bound.
	ErrListenUnavailable = errors.New("listening socket unavailable")
	// ErrAlreadyRunning is returned by Run while another Run is active
	ErrAlreadyRunning = errors.New("link already running")
	// ErrClosed is returned by Run once the link has stopped
	ErrClosed = errors.New("link closed")
)
