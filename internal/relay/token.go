package relay

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the page origin a relay token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	Origin string `json:"origin,omitempty"`
}

func IssueToken(secret []byte, origin string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   "page-relay",
		},
		Origin: origin,
	})
	return token.SignedString(secret)
}

func VerifyToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
