// Package bus is the agent's message bus: typed JSON-like messages carried
// over a single gRPC method. Requests and responses are structpb.Struct
// values; the "type" field selects the handler.
package bus

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "mata.v1.MessageBus"
	SendMethod  = "/" + ServiceName + "/Send"
)

// Message types.
const (
	GetLocalStorageValue = "GET_LOCAL_STORAGE_VALUE"
	SetLocalStorageValue = "SET_LOCAL_STORAGE_VALUE"
	SyncStorage          = "SYNC_STORAGE"
	SyncCriticalFiles    = "SYNC_CRITICAL_FILES"
	GetKeys              = "GET_KEYS"
	FindAllUsers         = "FIND_ALL_USERS"
	ListAccounts         = "LIST_ACCOUNTS"
	StoreKeys            = "STORE_KEYS"
	GetSettings          = "GET_SETTINGS"
	SaveSettings         = "SAVE_SETTINGS"
	Heartbeat            = "HEARTBEAT"
	TestStorage          = "TEST_STORAGE"
	ExportBackup         = "EXPORT_BACKUP"
	SetActiveUser        = "SET_ACTIVE_USER"
	Logout               = "LOGOUT"
)

// Request is a decoded message. Type is also present as the "type" field.
type Request map[string]any

func (r Request) Type() string { return r.String("type") }

// String returns a trimmed string field, or "" when absent or not a string.
func (r Request) String(key string) string {
	s, _ := r[key].(string)
	return strings.TrimSpace(s)
}

func (r Request) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Map returns an object field, or nil.
func (r Request) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}

// Response is a handler's reply. The server sets "success".
type Response map[string]any

// BusServer is implemented by the agent.
type BusServer interface {
	Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BusServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BusServer).Send(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the bus for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mata/v1/bus.proto",
}

// Encode builds the wire form of a message.
func Encode(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// Decode returns the generic form of a wire message.
func Decode(s *structpb.Struct) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s.AsMap()
}
