package bus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusRoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		want error
	}{
		{fmt.Errorf("x: %w", common.ErrNotFound), codes.NotFound, common.ErrNotFound},
		{common.ErrNoRelay, codes.Unavailable, common.ErrNoRelay},
		{common.ErrTimeout, codes.DeadlineExceeded, common.ErrTimeout},
		{common.ErrIsolationViolation, codes.FailedPrecondition, common.ErrIsolationViolation},
		{common.ErrInvalidRequest, codes.InvalidArgument, common.ErrInvalidRequest},
		{common.ErrQuotaExceeded, codes.ResourceExhausted, common.ErrQuotaExceeded},
		{errors.New("boom"), codes.Internal, common.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			st := toStatus(Fail(tt.err, Response{"extra": "v"}))
			assert.Equal(t, tt.code, status.Code(st))

			got := fromStatus(st)
			require.ErrorIs(t, got, tt.want)
			var re *RemoteError
			require.True(t, errors.As(got, &re))
			assert.Equal(t, "v", re.Body["extra"])
			assert.Equal(t, false, re.Body["success"])
		})
	}
}

func TestFromStatus_TransportFailures(t *testing.T) {
	require.ErrorIs(t, fromStatus(status.Error(codes.Unavailable, "connection refused")), ErrUnavailable)
	require.ErrorIs(t, fromStatus(status.Error(codes.DeadlineExceeded, "slow")), ErrUnavailable)
	assert.NoError(t, fromStatus(nil))

	err := fromStatus(status.Error(codes.PermissionDenied, "no"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestRequestAccessors(t *testing.T) {
	r := Request{"type": "X", "s": "  v ", "b": true, "m": map[string]any{"k": 1}, "n": 3}
	assert.Equal(t, "X", r.Type())
	assert.Equal(t, "v", r.String("s"))
	assert.Equal(t, "", r.String("n"))
	assert.True(t, r.Bool("b"))
	assert.False(t, r.Bool("s"))
	assert.Equal(t, map[string]any{"k": 1}, r.Map("m"))
	assert.Nil(t, r.Map("s"))
}
