package util

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any other unusable token
	ErrTokenInvalid = errors.New("invalid token")
)

// SessionClaims binds a session token to an admin
type SessionClaims struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// CreateSessionToken signs an HS256 token for the admin, valid for ttl
func CreateSessionToken(id int64, email, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expTime := now.Add(ttl)

	claims := &SessionClaims{
		ID:    id,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return t, expTime, nil
}

// ParseSessionToken validates the signature and expiry of a session token
func ParseSessionToken(requestToken, secret string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(requestToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.ID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
