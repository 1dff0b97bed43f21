package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ctrlr/ctrlr/internal/frame"
	"github.com/ctrlr/ctrlr/internal/link"
	"github.com/ctrlr/ctrlr/internal/midi"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// watchBuffer is the per-subscriber event buffer of a Watch stream
	watchBuffer = 32
	// stopGrace bounds how long shutdown waits for in-flight calls
	stopGrace = 2 * time.Second
)

// Server implements ControlServer on top of a link.Link
type Server struct {
	link link.Link
	log  *zap.Logger
	// done ends every Watch stream when closed; nil never fires
	done <-chan struct{}
}

// NewServer creates a control server for l
func NewServer(l link.Link, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{link: l, log: log.Named("control")}
}

// Status returns the current snapshot
func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := encodeSnapshot(s.link.Snapshot())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

// Diagnostics returns the rolling diagnostic log, oldest first
func (s *Server) Diagnostics(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	out, err := encodeLines(s.link.Diagnostics())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode diagnostics: %v", err)
	}
	return out, nil
}

// Reconnect restarts discovery
func (s *Server) Reconnect(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.log.Info("reconnect requested over control plane")
	s.link.Reconnect()
	return &emptypb.Empty{}, nil
}

// Send forwards one control message to the peer
func (s *Server) Send(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	msg := req.GetValue()
	if len(msg) == 0 {
		return nil, status.Error(codes.InvalidArgument, "message is empty")
	}
	if err := s.link.Send(msg); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Targets lists the local control-message targets
func (s *Server) Targets(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	return s.targets()
}

// RefreshTargets rescans targets and returns the new list
func (s *Server) RefreshTargets(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.link.RefreshTargets(); err != nil {
		return nil, toStatus(err)
	}
	return s.targets()
}

// SelectTarget switches the active target
func (s *Server) SelectTarget(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "target id is required")
	}
	if err := s.link.SelectTarget(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Watch streams the current snapshot followed by every change and
// diagnostic entry until the client goes away or the server shuts down.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	events, cancel := s.link.Subscribe(watchBuffer)
	defer cancel()

	first, err := encodeSnapshot(s.link.Snapshot())
	if err != nil {
		return status.Errorf(codes.Internal, "encode status: %v", err)
	}
	if err := stream.SendMsg(first); err != nil {
		return err
	}
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-s.done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			out, err := encodeEvent(ev)
			if err != nil {
				return status.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

func (s *Server) targets() (*structpb.ListValue, error) {
	out, err := encodeTargets(s.link.Targets())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode targets: %v", err)
	}
	return out, nil
}

// toStatus maps link errors onto gRPC codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, link.ErrNoDestination):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, frame.ErrTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, midi.ErrUnknownTarget):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, midi.ErrNoTarget):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, link.ErrSendQueueFull), errors.Is(err, link.ErrTransportClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Serve runs the control plane on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, l link.Link, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ServeListener(ctx, lis, l, log)
}

// ServeListener is Serve on an existing listener
func ServeListener(ctx context.Context, lis net.Listener, l link.Link, log *zap.Logger) error {
	srv := NewServer(l, log)
	srv.done = ctx.Done()
	grpcServer := grpc.NewServer()
	RegisterControlServer(grpcServer, srv)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		graceful := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(graceful)
		}()
		select {
		case <-graceful:
		case <-time.After(stopGrace):
			srv.log.Warn("control plane did not drain, forcing stop")
			grpcServer.Stop()
		}
	}()
	srv.log.Info("control plane listening", zap.String("addr", lis.Addr().String()))
	err := grpcServer.Serve(lis)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	<-stopped
	return nil
}
