// Package discovery locates the ctrlr peer on the local network or
// advertises this process as one. A live mDNS browser is the primary
// mechanism; a lookup subprocess is the fallback. Both apply the same
// candidate filter, which rejects records pointing back at this machine.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInstance is the advertised service instance name
	DefaultInstance = "Ctrlr"
	// DefaultServiceType is the DNS-SD service type
	DefaultServiceType = "_ctrlr._tcp"
	// DefaultDomain is the mDNS domain
	DefaultDomain = "local."

	// BrowseTimeout is how long the live browser runs before falling back
	BrowseTimeout = 10 * time.Second
	// LookupTimeout bounds one run of the lookup subprocess
	LookupTimeout = 8 * time.Second
	// RetryBackoff separates failed lookups
	RetryBackoff = 3 * time.Second
)

var (
	// ErrTimeout means no acceptable record was found in time
	ErrTimeout = errors.New("discovery timed out")
	// ErrFailed means the browser or lookup mechanism itself failed
	ErrFailed = errors.New("discovery failed")
	// ErrStaleRecord means a record was found but rejected
	ErrStaleRecord = errors.New("stale record rejected")
)

// Service identifies the advertised record
type Service struct {
	Instance string
	Type     string
	Domain   string
}

// DefaultService returns the well-known ctrlr service
func DefaultService() Service {
	return Service{
		Instance: DefaultInstance,
		Type:     DefaultServiceType,
		Domain:   DefaultDomain,
	}
}

// PeerAddress is a resolved peer. It is immutable once produced.
type PeerAddress struct {
	Host string
	Port uint16
}

// String returns host:port; it is also the rejected-endpoint key.
func (p PeerAddress) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// IsZero reports whether p is unset
func (p PeerAddress) IsZero() bool {
	return p.Host == "" && p.Port == 0
}

// Candidate is a record a Source found, before filtering.
type Candidate struct {
	// Addr is the address to dial
	Addr PeerAddress
	// HostName is the record's target host name, if known
	HostName string
	// InstanceID is the advertiser's id from the TXT record, if any
	InstanceID string
}

// Source yields an accepted PeerAddress for the service or an error.
// accept is consulted for every candidate; rejected candidates are skipped.
type Source interface {
	Name() string
	Find(ctx context.Context, accept func(Candidate) bool) (PeerAddress, error)
}

// NormalizeHost lower-cases h and strips the trailing dot and .local suffix
// so that "Studio-Mac.local." and "studio-mac" compare equal.
func NormalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, ".")
	h = strings.TrimSuffix(h, ".local")
	return h
}

// LocalHostname returns this machine's normalized host name
func LocalHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return NormalizeHost(h)
}

// Config configures a Resolver
type Config struct {
	// Browser is the primary source (may be nil)
	Browser Source
	// Lookup is the fallback source (may be nil)
	Lookup Source
	// BrowseTimeout defaults to BrowseTimeout
	BrowseTimeout time.Duration
	// RetryBackoff defaults to RetryBackoff
	RetryBackoff time.Duration
	// SelfHost is the normalized local host name; defaults to LocalHostname()
	SelfHost string
	// SelfID is this process's advertised instance id, if any
	SelfID string
	Logger *zap.Logger
}

// Query carries the per-attempt inputs of Resolve
type Query struct {
	// Rejected holds PeerAddress.String() keys never to return
	Rejected map[string]struct{}
	// OnReject is told about every record the self filter rejects
	OnReject func(addr PeerAddress, reason string)
	// OnStatus receives human-readable progress lines
	OnStatus func(msg string)
}

// Resolver maps the service to a live PeerAddress
type Resolver struct {
	cfg Config
	log *zap.Logger
}

// NewResolver creates a Resolver
func NewResolver(cfg Config) *Resolver {
	if cfg.BrowseTimeout == 0 {
		cfg.BrowseTimeout = BrowseTimeout
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = RetryBackoff
	}
	if cfg.SelfHost == "" {
		cfg.SelfHost = LocalHostname()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, log: cfg.Logger.Named("discovery")}
}

// Resolve runs the browser for BrowseTimeout, then the lookup fallback with
// RetryBackoff between attempts until a candidate is accepted or ctx ends.
// Browsing stops as soon as a candidate is accepted.
func (r *Resolver) Resolve(ctx context.Context, q Query) (PeerAddress, error) {
	rejected := make(map[string]struct{}, len(q.Rejected))
	for k := range q.Rejected {
		rejected[k] = struct{}{}
	}
	status := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		r.log.Debug(msg)
		if q.OnStatus != nil {
			q.OnStatus(msg)
		}
	}
	accept := func(c Candidate) bool {
		key := c.Addr.String()
		if _, ok := rejected[key]; ok {
			r.log.Debug("skipping rejected endpoint", zap.String("endpoint", key))
			return false
		}
		if reason := r.selfReason(c); reason != "" {
			rejected[key] = struct{}{}
			status("skipped self (%s): %s", key, reason)
			if q.OnReject != nil {
				q.OnReject(c.Addr, reason)
			}
			return false
		}
		return true
	}

	var lastErr error = ErrTimeout
	if b := r.cfg.Browser; b != nil {
		status("%s: searching", b.Name())
		bctx, cancel := context.WithTimeout(ctx, r.cfg.BrowseTimeout)
		addr, err := b.Find(bctx, accept)
		cancel()
		if err == nil {
			return addr, nil
		}
		if ctx.Err() != nil {
			return PeerAddress{}, ctx.Err()
		}
		lastErr = err
		if errors.Is(err, ErrTimeout) {
			status("%s timeout", b.Name())
		} else {
			status("%s failed: %v", b.Name(), err)
		}
	}

	l := r.cfg.Lookup
	if l == nil {
		return PeerAddress{}, lastErr
	}
	for {
		status("%s: looking up", l.Name())
		addr, err := l.Find(ctx, accept)
		if err == nil {
			return addr, nil
		}
		if ctx.Err() != nil {
			return PeerAddress{}, ctx.Err()
		}
		status("%s: %v, retrying in %s", l.Name(), err, r.cfg.RetryBackoff)

		t := time.NewTimer(r.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return PeerAddress{}, ctx.Err()
		case <-t.C:
		}
	}
}

// selfReason explains why c points back at this process, or returns "".
func (r *Resolver) selfReason(c Candidate) string {
	if r.cfg.SelfID != "" && c.InstanceID == r.cfg.SelfID {
		return "own instance id"
	}
	if r.cfg.SelfHost == "" {
		return ""
	}
	if c.HostName != "" && NormalizeHost(c.HostName) == r.cfg.SelfHost {
		return "resolves to local host"
	}
	if NormalizeHost(c.Addr.Host) == r.cfg.SelfHost {
		return "resolves to local host"
	}
	return ""
}
