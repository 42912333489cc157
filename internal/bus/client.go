package bus

import (
	"context"
	"maps"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client sends messages to the agent.
type Client struct {
	cc      grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

func withRequestID(ctx context.Context, id string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.BusRequestIDHeaderName, id)
	return metadata.NewOutgoingContext(ctx, md)
}

func requestIDInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	return invoker(withRequestID(ctx, uuid.NewString()), method, req, reply, cc, opts...)
}

// Dial connects to the agent at addr. Every Send is bounded by timeout.
func Dial(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(requestIDInterceptor),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: conn, closer: conn.Close, timeout: timeout}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface, timeout time.Duration) *Client {
	return &Client{cc: cc, timeout: timeout}
}

// Send delivers a message of msgType and returns the agent's response.
// Failures reported by the agent come back as *RemoteError.
func (c *Client) Send(ctx context.Context, msgType string, fields map[string]any) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg := make(map[string]any, len(fields)+1)
	maps.Copy(msg, fields)
	msg["type"] = msgType

	in, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SendMethod, in, out); err != nil {
		return nil, fromStatus(err)
	}
	return Response(Decode(out)), nil
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
