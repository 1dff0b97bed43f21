package control

import (
	"context"
	"fmt"
	"io"

	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a running daemon's control plane
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to the control plane at addr
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close releases the connection opened by Dial
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Status fetches the current snapshot
func (c *Client) Status(ctx context.Context) (status.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return status.Snapshot{}, err
	}
	return decodeSnapshot(out), nil
}

// Diagnostics fetches the diagnostic log lines
func (c *Client) Diagnostics(ctx context.Context) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodDiagnostics, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return decodeLines(out), nil
}

// Reconnect asks the daemon to restart discovery
func (c *Client) Reconnect(ctx context.Context) error {
	return c.cc.Invoke(ctx, methodReconnect, &emptypb.Empty{}, new(emptypb.Empty))
}

// Send forwards msg to the daemon's peer
func (c *Client) Send(ctx context.Context, msg []byte) error {
	return c.cc.Invoke(ctx, methodSend, wrapperspb.Bytes(msg), new(emptypb.Empty))
}

// Targets lists the daemon's control-message targets
func (c *Client) Targets(ctx context.Context) ([]midi.Info, error) {
	return c.targets(ctx, methodTargets)
}

// RefreshTargets rescans and lists targets
func (c *Client) RefreshTargets(ctx context.Context) ([]midi.Info, error) {
	return c.targets(ctx, methodRefreshTargets)
}

// SelectTarget selects the target with id
func (c *Client) SelectTarget(ctx context.Context, id string) error {
	return c.cc.Invoke(ctx, methodSelectTarget, wrapperspb.String(id), new(emptypb.Empty))
}

func (c *Client) targets(ctx context.Context, method string) ([]midi.Info, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, method, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return decodeTargets(out), nil
}

// Watch calls fn with the current snapshot and every later event until
// ctx ends, the stream closes or fn returns false.
func (c *Client) Watch(ctx context.Context, fn func(status.Event) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodWatch)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !fn(decodeEvent(out)) {
			return nil
		}
	}
}
