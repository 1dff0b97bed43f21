package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
)

type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Browser is the live mDNS browser
type Browser struct {
	service Service
	browse  browseFunc
}

// NewBrowser creates a Browser for service
func NewBrowser(service Service) *Browser {
	return &Browser{service: service, browse: zeroconfBrowse}
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return err
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Name implements Source
func (b *Browser) Name() string { return "mdns browser" }

// Find implements Source. It returns ErrTimeout when ctx expires first.
func (b *Browser) Find(ctx context.Context, accept func(Candidate) bool) (PeerAddress, error) {
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := b.browse(bctx, b.service.Type, b.service.Domain, entries); err != nil {
		return PeerAddress{}, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	for {
		select {
		case <-ctx.Done():
			return PeerAddress{}, browseEnded(ctx)
		case e, ok := <-entries:
			if !ok {
				return PeerAddress{}, browseEnded(ctx)
			}
			if e == nil || e.Instance != b.service.Instance || e.Port <= 0 || e.Port > 65535 {
				continue
			}
			c, ok := candidateFromEntry(e)
			if !ok {
				continue
			}
			if accept(c) {
				return c.Addr, nil
			}
		}
	}
}

func browseEnded(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return ErrTimeout
}

// candidateFromEntry prefers the first IPv4 address, then IPv6, then the
// record's host name.
func candidateFromEntry(e *zeroconf.ServiceEntry) (Candidate, bool) {
	c := Candidate{
		HostName:   e.HostName,
		InstanceID: txtValue(e.Text, "id"),
	}
	host := ""
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	default:
		host = strings.TrimSuffix(e.HostName, ".")
	}
	if host == "" {
		return Candidate{}, false
	}
	c.Addr = PeerAddress{Host: host, Port: uint16(e.Port)}
	return c, true
}

func txtValue(txt []string, key string) string {
	prefix := key + "="
	for _, kv := range txt {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix)
		}
	}
	return ""
}
