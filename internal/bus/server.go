package bus

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler answers one message type.
type Handler func(ctx context.Context, req Request) (Response, error)

type Server struct {
	address  string
	handlers map[string]Handler
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func NewServer(address string, l logging.Logger, m *metrics.Metrics) *Server {
	return &Server{
		address:  address,
		handlers: map[string]Handler{},
		logger:   l.With("module", "bus"),
		metrics:  m,
	}
}

// Handle registers h for msgType, replacing any previous handler.
func (s *Server) Handle(msgType string, h Handler) {
	s.handlers[msgType] = h
}

// Send dispatches one message. Handler errors become statuses carrying the
// failure body.
func (s *Server) Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := Request(Decode(in))
	msgType := req.Type()

	h, ok := s.handlers[msgType]
	if !ok {
		s.metrics.BusRequest("unknown", false)
		return nil, toStatus(fmt.Errorf("%w: %q", ErrUnknownMessage, msgType))
	}

	resp, err := h(ctx, req)
	s.metrics.BusRequest(msgType, err == nil)
	if err != nil {
		s.logger.Warn(ctx, "message failed", "type", msgType, "error", err)
		return nil, toStatus(err)
	}

	if resp == nil {
		resp = Response{}
	}
	if _, ok := resp["success"]; !ok {
		resp["success"] = true
	}
	out, err := Encode(resp)
	if err != nil {
		s.logger.Error(ctx, "encoding response failed", "type", msgType, "error", err)
		return nil, toStatus(fmt.Errorf("%w: %v", common.ErrInternal, err))
	}
	return out, nil
}

// Register adds the bus to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
}

type ctxKey string

const requestIDKey ctxKey = "requestID"

// RequestID returns the id the interceptor attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDInterceptor tags each call with the caller's request id (or a new
// one) and logs its outcome.
func (s *Server) requestIDInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.BusRequestIDHeaderName); len(values) > 0 {
			id = values[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx = context.WithValue(ctx, requestIDKey, id)

	start := time.Now()
	resp, err := handler(ctx, req)

	msgType := ""
	if in, ok := req.(*structpb.Struct); ok {
		msgType = Request(Decode(in)).Type()
	}
	s.logger.Debug(ctx, "bus request", "req_id", id, "type", msgType, "duration", time.Since(start), "ok", err == nil)
	return resp, err
}

// NewGRPCServer builds a grpc.Server with the bus registered.
func (s *Server) NewGRPCServer() *grpc.Server {
	g := grpc.NewServer(grpc.ChainUnaryInterceptor(s.requestIDInterceptor))
	s.Register(g)
	return g
}

// Run serves the bus on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves the bus on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping message bus...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting message bus", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
