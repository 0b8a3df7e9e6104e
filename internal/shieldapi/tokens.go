package shieldapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// mintToken creates a signed HS256 credential for the subject. The expiry
// claim embedded here is what the client's local validity checks read.
func mintToken(secret []byte, subject string, ttl time.Duration) (token string, issuedAt, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(ttl)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	return token, now, expiresAt, nil
}

// validateToken parses and verifies a credential, returning the subject.
// The signing method is pinned to HS256 to prevent algorithm confusion.
func validateToken(secret []byte, tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
