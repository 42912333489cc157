package relay

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	tok, err := IssueToken([]byte("k"), "https://app.mata-app.com", time.Minute)
	require.NoError(t, err)

	claims, err := VerifyToken(tok, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "https://app.mata-app.com", claims.Origin)
	assert.Equal(t, "page-relay", claims.Subject)
}

func TestToken_Expired(t *testing.T) {
	tok, err := IssueToken([]byte("k"), "", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(tok, []byte("k"))
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestToken_WrongSecret(t *testing.T) {
	tok, err := IssueToken([]byte("k"), "", time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(tok, []byte("other"))
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
