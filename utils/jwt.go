package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const serviceTokenTTL = 5 * time.Minute

var ErrInvalidToken = errors.New("invalid token")

// ServiceClaims identifies the internal caller of a storage node.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// GenerateServiceToken signs a short-lived HS256 token for service.
func GenerateServiceToken(secret, service string) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyServiceToken parses and validates a service token.
func VerifyServiceToken(secret, tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims, ok := token.Claims.(*ServiceClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
