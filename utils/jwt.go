package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SchedulerScope is the only scope accepted on job endpoints.
const SchedulerScope = "jobs"

var ErrEmptySigningKey = errors.New("jwt secret is not configured")

// SchedulerClaims identify a batch caller such as a cron runner.
type SchedulerClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateSchedulerToken issues an HS256 token for subject valid for duration.
func GenerateSchedulerToken(secret, subject string, duration time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySigningKey
	}
	now := time.Now()
	claims := SchedulerClaims{
		Scope: SchedulerScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSchedulerToken validates a token and its scope and returns its claims.
func ParseSchedulerToken(secret, tokenStr string) (*SchedulerClaims, error) {
	if secret == "" {
		return nil, ErrEmptySigningKey
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &SchedulerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*SchedulerClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Scope != SchedulerScope {
		return nil, errors.New("token scope does not allow job access")
	}
	return claims, nil
}
