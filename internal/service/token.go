package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "postflow"

var ErrTokenInvalid = errors.New("invalid token")

type UserClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"sub"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens. Tokens are issued by the
// identity provider in front of postflow; Issue exists for dev tooling and tests.
type TokenCodec struct {
	key []byte
}

func NewTokenCodec(signingKey string) *TokenCodec {
	return &TokenCodec{key: []byte(signingKey)}
}

func (c *TokenCodec) Issue(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

func (c *TokenCodec) Parse(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
