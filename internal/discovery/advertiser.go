package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

type registration interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error) {
	return zeroconf.Register(instance, service, domain, port, text, ifaces)
}

// Advertiser publishes this process as the service. Advertise may be called
// again after the listening socket is rebuilt; the old record is withdrawn
// first.
type Advertiser struct {
	service  Service
	id       string
	register registerFunc
	log      *zap.Logger

	mu     sync.Mutex
	server registration
	port   int
}

// NewAdvertiser creates an Advertiser; id is published as TXT "id=".
func NewAdvertiser(service Service, id string, log *zap.Logger) *Advertiser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advertiser{
		service:  service,
		id:       id,
		register: zeroconfRegister,
		log:      log.Named("advertiser"),
	}
}

// Advertise registers the record for port, replacing any earlier record.
func (a *Advertiser) Advertise(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		if a.port == port {
			return nil
		}
		a.server.Shutdown()
		a.server = nil
	}

	txt := []string{"v=1"}
	if a.id != "" {
		txt = append(txt, "id="+a.id)
	}
	server, err := a.register(a.service.Instance, a.service.Type, a.service.Domain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register %s.%s port %d: %w", a.service.Instance, a.service.Type, port, err)
	}
	a.server = server
	a.port = port
	a.log.Info("advertised",
		zap.String("instance", a.service.Instance),
		zap.String("type", a.service.Type),
		zap.Int("port", port))
	return nil
}

// Port returns the currently advertised port, 0 if none
func (a *Advertiser) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return 0
	}
	return a.port
}

// Shutdown withdraws the record
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.port = 0
	}
}
