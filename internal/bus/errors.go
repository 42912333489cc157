package bus

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrUnavailable means the agent could not be reached at all.
	ErrUnavailable = errors.New("agent unavailable")
	// ErrUnknownMessage is returned for a message type with no handler.
	ErrUnknownMessage = errors.New("unknown message type")
)

// Failure is an error whose Body travels to the caller with the status, so
// diagnostics (lookup attempts, discovered users) survive the transport.
type Failure struct {
	Err  error
	Body Response
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// Fail wraps err with a response body.
func Fail(err error, body Response) error {
	return &Failure{Err: err, Body: body}
}

var errorTypes = []struct {
	err  error
	name string
	code codes.Code
}{
	{common.ErrIsolationViolation, "isolation_violation", codes.FailedPrecondition},
	{common.ErrNotFound, "not_found", codes.NotFound},
	{common.ErrNoRelay, "no_relay", codes.Unavailable},
	{common.ErrTimeout, "timeout", codes.DeadlineExceeded},
	{common.ErrInvalidRequest, "invalid_request", codes.InvalidArgument},
	{common.ErrParse, "parse_error", codes.InvalidArgument},
	{common.ErrQuotaExceeded, "quota_exceeded", codes.ResourceExhausted},
	{ErrUnknownMessage, "unknown_message", codes.Unimplemented},
}

func classify(err error) (string, codes.Code) {
	for _, t := range errorTypes {
		if errors.Is(err, t.err) {
			return t.name, t.code
		}
	}
	return "internal", codes.Internal
}

// toStatus turns a handler error into a gRPC status carrying the response
// body, with success=false, error and errorType set.
func toStatus(err error) error {
	name, code := classify(err)

	body := Response{}
	var f *Failure
	if errors.As(err, &f) {
		for k, v := range f.Body {
			body[k] = v
		}
	}
	body["success"] = false
	body["error"] = err.Error()
	if _, ok := body["errorType"]; !ok {
		body["errorType"] = name
	}

	st := status.New(code, err.Error())
	detail, encErr := structpb.NewStruct(body)
	if encErr != nil {
		return st.Err()
	}
	withDetail, detErr := st.WithDetails(detail)
	if detErr != nil {
		return st.Err()
	}
	return withDetail.Err()
}

// RemoteError is a failure reported by the agent. It unwraps to the sentinel
// matching its error type.
type RemoteError struct {
	Code    codes.Code
	Type    string
	Message string
	Body    Response
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *RemoteError) Unwrap() error {
	for _, t := range errorTypes {
		if t.name == e.Type {
			return t.err
		}
	}
	return common.ErrInternal
}

// fromStatus maps a call error back to a RemoteError, or to ErrUnavailable
// when the agent never answered.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("bus call: %w", err)
	}

	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			body := Response(s.AsMap())
			t, _ := body["errorType"].(string)
			return &RemoteError{Code: st.Code(), Type: t, Message: st.Message(), Body: body}
		}
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("bus call: %w", err)
	}
}
