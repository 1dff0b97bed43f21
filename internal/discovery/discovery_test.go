package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Studio-Mac.local.", "studio-mac"},
		{"studio-mac.local", "studio-mac"},
		{"STUDIO-MAC", "studio-mac"},
		{" iphone.local. ", "iphone"},
		{"10.0.0.5", "10.0.0.5"},
	}
	for _, tt := range tests {
		if got := NormalizeHost(tt.in); got != tt.want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseReachable(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantHost string
		wantPort uint16
		wantOK   bool
	}{
		{
			name:     "dns-sd output",
			line:     "12:00:01.123  Ctrlr._ctrlr._tcp.local. can be reached at Phone.local.:51235 (interface 4)",
			wantHost: "Phone.local.",
			wantPort: 51235,
			wantOK:   true,
		},
		{
			name:     "reachable wording",
			line:     "service reachable at 10.0.0.5:51235",
			wantHost: "10.0.0.5",
			wantPort: 51235,
			wantOK:   true,
		},
		{name: "banner", line: "Lookup Ctrlr._ctrlr._tcp.local.", wantOK: false},
		{name: "port overflow", line: "reachable at host:70000", wantOK: false},
		{name: "port zero", line: "reachable at host:0", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, ok := ParseReachable(tt.line)
			if ok != tt.wantOK || host != tt.wantHost || port != tt.wantPort {
				t.Fatalf("ParseReachable = (%q, %d, %v), want (%q, %d, %v)",
					host, port, ok, tt.wantHost, tt.wantPort, tt.wantOK)
			}
		})
	}
}

type fakeSource struct {
	name string
	mu   sync.Mutex
	// rounds[i] are the candidates offered on the i-th call; the last
	// round repeats.
	rounds [][]Candidate
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Find(ctx context.Context, accept func(Candidate) bool) (PeerAddress, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if len(f.rounds) > 0 {
		if i >= len(f.rounds) {
			i = len(f.rounds) - 1
		}
		for _, c := range f.rounds[i] {
			if accept(c) {
				return c.Addr, nil
			}
		}
	}
	if f.err != nil {
		return PeerAddress{}, f.err
	}
	return PeerAddress{}, ErrStaleRecord
}

func TestResolverFallsBackAndRejectsSelf(t *testing.T) {
	browser := &fakeSource{name: "browser", err: ErrTimeout}
	self := Candidate{Addr: PeerAddress{Host: "studio-mac.local", Port: 51235}, HostName: "Studio-Mac.local."}
	phone := Candidate{Addr: PeerAddress{Host: "10.0.0.5", Port: 51235}, HostName: "phone.local."}
	lookup := &fakeSource{name: "lookup", rounds: [][]Candidate{{self}, {self, phone}}}

	r := NewResolver(Config{
		Browser:      browser,
		Lookup:       lookup,
		RetryBackoff: 10 * time.Millisecond,
		SelfHost:     "studio-mac",
	})

	var rejected []PeerAddress
	var lines []string
	start := time.Now()
	addr, err := r.Resolve(context.Background(), Query{
		OnReject: func(a PeerAddress, reason string) { rejected = append(rejected, a) },
		OnStatus: func(msg string) { lines = append(lines, msg) },
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != phone.Addr {
		t.Fatalf("resolved %s, want %s", addr, phone.Addr)
	}
	if len(rejected) != 1 || rejected[0] != self.Addr {
		t.Fatalf("rejected = %v, want exactly the self record", rejected)
	}
	if lookup.calls != 2 {
		t.Fatalf("lookup ran %d times, want 2", lookup.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("retry did not wait for the backoff")
	}
	if len(lines) == 0 {
		t.Fatal("expected status lines")
	}
}

func TestResolverSkipsRejectedEndpoints(t *testing.T) {
	stale := Candidate{Addr: PeerAddress{Host: "10.0.0.9", Port: 4000}}
	good := Candidate{Addr: PeerAddress{Host: "10.0.0.5", Port: 51235}}
	browser := &fakeSource{name: "browser", rounds: [][]Candidate{{stale, good}}}

	r := NewResolver(Config{Browser: browser, SelfHost: "desk"})
	addr, err := r.Resolve(context.Background(), Query{
		Rejected: map[string]struct{}{stale.Addr.String(): {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if addr != good.Addr {
		t.Fatalf("resolved %s, want %s", addr, good.Addr)
	}
}

func TestResolverRejectsOwnInstanceID(t *testing.T) {
	mine := Candidate{Addr: PeerAddress{Host: "10.0.0.2", Port: 1}, InstanceID: "abc"}
	browser := &fakeSource{name: "browser", rounds: [][]Candidate{{mine}}, err: ErrTimeout}

	r := NewResolver(Config{Browser: browser, SelfHost: "desk", SelfID: "abc"})
	var rejected int
	_, err := r.Resolve(context.Background(), Query{
		OnReject: func(PeerAddress, string) { rejected++ },
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout without a lookup fallback, got %v", err)
	}
	if rejected != 1 {
		t.Fatalf("rejected %d records, want 1", rejected)
	}
}

func TestResolverCancel(t *testing.T) {
	lookup := &fakeSource{name: "lookup", err: ErrFailed}
	r := NewResolver(Config{Lookup: lookup, RetryBackoff: time.Hour, SelfHost: "desk"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, Query{})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Resolve did not return after cancel")
	}
}

func TestBrowserPicksMatchingInstance(t *testing.T) {
	b := NewBrowser(DefaultService())
	b.browse = func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		if service != DefaultServiceType || domain != DefaultDomain {
			t.Errorf("browse(%q, %q)", service, domain)
		}
		other := zeroconf.NewServiceEntry("Other", service, domain)
		other.Port = 1234
		other.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.8")}

		ctrlr := zeroconf.NewServiceEntry(DefaultInstance, service, domain)
		ctrlr.HostName = "phone.local."
		ctrlr.Port = 51235
		ctrlr.Text = []string{"v=1", "id=phone-1"}
		ctrlr.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.5")}

		go func() {
			entries <- other
			entries <- ctrlr
		}()
		return nil
	}

	var seen Candidate
	addr, err := b.Find(context.Background(), func(c Candidate) bool {
		seen = c
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if addr.String() != "10.0.0.5:51235" {
		t.Fatalf("addr = %s", addr)
	}
	if seen.InstanceID != "phone-1" || seen.HostName != "phone.local." {
		t.Fatalf("candidate = %+v", seen)
	}
}

func TestBrowserTimeout(t *testing.T) {
	b := NewBrowser(DefaultService())
	b.browse = func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Find(ctx, func(Candidate) bool { return true }); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

type fakeRegistration struct{ shut bool }

func (f *fakeRegistration) Shutdown() { f.shut = true }

func TestAdvertiserReregistersOnRebind(t *testing.T) {
	a := NewAdvertiser(DefaultService(), "desk-1", nil)
	var regs []*fakeRegistration
	var ports []int
	var texts [][]string
	a.register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error) {
		r := &fakeRegistration{}
		regs = append(regs, r)
		ports = append(ports, port)
		texts = append(texts, text)
		return r, nil
	}

	if err := a.Advertise(51235); err != nil {
		t.Fatal(err)
	}
	if err := a.Advertise(51235); err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 {
		t.Fatalf("same port registered %d times, want 1", len(regs))
	}

	if err := a.Advertise(40001); err != nil {
		t.Fatal(err)
	}
	if len(regs) != 2 || !regs[0].shut {
		t.Fatal("rebind must withdraw the old record and register a new one")
	}
	if ports[1] != 40001 || a.Port() != 40001 {
		t.Fatalf("ports = %v", ports)
	}
	if texts[0][1] != "id=desk-1" {
		t.Fatalf("txt = %v", texts[0])
	}

	a.Shutdown()
	if !regs[1].shut || a.Port() != 0 {
		t.Fatal("Shutdown must withdraw the record")
	}
}
