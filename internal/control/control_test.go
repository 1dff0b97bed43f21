package control

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ctrlr/ctrlr/internal/frame"
	"github.com/ctrlr/ctrlr/internal/link"
	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// fakeLink is a link.Link backed by a real publisher and target registry.
type fakeLink struct {
	pub     *status.Publisher
	targets *midi.Registry

	mu         sync.Mutex
	sent       [][]byte
	sendErr    error
	reconnects int
}

var _ link.Link = (*fakeLink)(nil)

func newFakeLink() *fakeLink {
	reg := midi.NewRegistry("")
	reg.Add(&midi.FuncTarget{TargetID: "script", TargetName: "Script", Fn: func([]byte) error { return nil }})
	reg.Add(&midi.FuncTarget{TargetID: "map", TargetName: "Map", Fn: func([]byte) error { return nil }})
	return &fakeLink{pub: status.NewPublisher("discoverer", 0, nil), targets: reg}
}

func (f *fakeLink) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (f *fakeLink) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), msg...))
	return nil
}
func (f *fakeLink) OnReceive(fn func([]byte)) {}
func (f *fakeLink) Reconnect() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
	f.pub.Update(func(s *status.Snapshot) { s.State = status.Discovering; s.Rejected = 0 })
}
func (f *fakeLink) State() status.State       { return f.pub.Snapshot().State }
func (f *fakeLink) PeerName() string          { return f.pub.Snapshot().Peer }
func (f *fakeLink) Snapshot() status.Snapshot { return f.pub.Snapshot() }
func (f *fakeLink) Diagnostics() []string     { return f.pub.Lines() }
func (f *fakeLink) Subscribe(buf int) (<-chan status.Event, func()) {
	return f.pub.Subscribe(buf)
}
func (f *fakeLink) Targets() []midi.Info         { return f.targets.List() }
func (f *fakeLink) RefreshTargets() error        { return f.targets.Refresh() }
func (f *fakeLink) SelectTarget(id string) error { return f.targets.Select(id) }

func startServer(t *testing.T, l link.Link) (*Client, func()) {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, lis, l, nil) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dialCancel()
	client, err := Dial(dialCtx, "bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		cancel()
		t.Fatalf("Dial: %v", err)
	}
	return client, func() {
		client.Close()
		cancel()
		<-done
	}
}

func TestStatusAndDiagnostics(t *testing.T) {
	fl := newFakeLink()
	fl.pub.Update(func(s *status.Snapshot) {
		s.State = status.Verified
		s.Connected = true
		s.Peer = "Ctrlr"
		s.Endpoint = "10.0.0.5:51235"
		s.SourceCount = 1
	})
	fl.pub.Infof("conn: verified 10.0.0.5:51235")
	client, stop := startServer(t, fl)
	defer stop()

	ctx := context.Background()
	snap, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.State != status.Verified || !snap.Connected || snap.Peer != "Ctrlr" || snap.SourceCount != 1 {
		t.Fatalf("Status = %+v", snap)
	}
	if snap.Since.IsZero() {
		t.Fatalf("Since not carried over")
	}

	lines, err := client.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if len(lines) != 1 || lines[0] != fl.pub.Lines()[0] {
		t.Fatalf("Diagnostics = %q", lines)
	}
}

func TestSendMapsErrors(t *testing.T) {
	fl := newFakeLink()
	client, stop := startServer(t, fl)
	defer stop()
	ctx := context.Background()

	if err := client.Send(ctx, midi.NoteOn(0, 60, 100)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	fl.mu.Lock()
	if len(fl.sent) != 1 || fl.sent[0][0] != 0x90 {
		t.Fatalf("sent = %v", fl.sent)
	}
	fl.mu.Unlock()

	tests := []struct {
		name string
		err  error
		msg  []byte
		code codes.Code
	}{
		{"empty", nil, nil, codes.InvalidArgument},
		{"no destination", link.ErrNoDestination, []byte{0x90, 60, 100}, codes.FailedPrecondition},
		{"too large", frame.ErrTooLarge, []byte{0x90, 60, 100}, codes.InvalidArgument},
		{"queue full", link.ErrSendQueueFull, []byte{0x90, 60, 100}, codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl.mu.Lock()
			fl.sendErr = tt.err
			fl.mu.Unlock()
			err := client.Send(ctx, tt.msg)
			if got := grpcstatus.Code(err); got != tt.code {
				t.Fatalf("Send error code = %s (%v), want %s", got, err, tt.code)
			}
		})
	}
}

func TestReconnect(t *testing.T) {
	fl := newFakeLink()
	client, stop := startServer(t, fl)
	defer stop()

	if err := client.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.reconnects != 1 {
		t.Fatalf("reconnects = %d", fl.reconnects)
	}
}

func TestTargets(t *testing.T) {
	fl := newFakeLink()
	client, stop := startServer(t, fl)
	defer stop()
	ctx := context.Background()

	if err := client.SelectTarget(ctx, "script"); err != nil {
		t.Fatalf("SelectTarget: %v", err)
	}
	infos, err := client.Targets(ctx)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Targets = %+v", infos)
	}
	for _, info := range infos {
		if info.Selected != (info.ID == "script") {
			t.Fatalf("selection wrong: %+v", infos)
		}
	}

	err = client.SelectTarget(ctx, "nope")
	if grpcstatus.Code(err) != codes.NotFound {
		t.Fatalf("SelectTarget(nope) = %v, want NotFound", err)
	}
	if _, err := client.RefreshTargets(ctx); err != nil {
		t.Fatalf("RefreshTargets: %v", err)
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	fl := newFakeLink()
	client, stop := startServer(t, fl)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan status.Event, 8)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- client.Watch(ctx, func(ev status.Event) bool {
			got <- ev
			return ev.Entry == nil
		})
	}()

	first := <-got
	if first.Snapshot.State != status.Disconnected {
		t.Fatalf("first event state = %s", first.Snapshot.State)
	}
	// the subscription is live once the first snapshot arrives
	fl.pub.Update(func(s *status.Snapshot) { s.State = status.Discovering })
	fl.pub.Warnf("send: dropped note-on: no destination")

	var sawState, sawEntry bool
	for !sawEntry {
		select {
		case ev := <-got:
			if ev.Snapshot.State == status.Discovering {
				sawState = true
			}
			if ev.Entry != nil {
				sawEntry = true
				if ev.Entry.Level != status.LevelWarn {
					t.Fatalf("entry level = %s", ev.Entry.Level)
				}
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for events")
		}
	}
	if !sawState {
		t.Fatalf("state change not streamed")
	}
	if err := <-watchDone; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestShutdownEndsOpenWatch(t *testing.T) {
	fl := newFakeLink()
	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- ServeListener(ctx, lis, fl, nil) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dialCancel()
	client, err := Dial(dialCtx, "bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	first := make(chan struct{}, 1)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- client.Watch(context.Background(), func(status.Event) bool {
			select {
			case first <- struct{}{}:
			default:
			}
			return true
		})
	}()
	select {
	case <-first:
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot from Watch")
	}

	start := time.Now()
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("ServeListener: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ServeListener blocked on an open Watch")
	}
	if elapsed := time.Since(start); elapsed >= stopGrace {
		t.Fatalf("shutdown took %s, Watch was not ended by the server", elapsed)
	}
	select {
	case <-watchDone:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after shutdown")
	}
}
