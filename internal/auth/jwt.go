// Package auth issues and validates operator bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trafficwatch/internal/support"
)

const (
	tokenIssuer     = "trafficwatch"
	DefaultTokenTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrNoSecret     = errors.New("auth: JWT_SECRET is not configured")

	secretMu sync.RWMutex
	secret   []byte
)

func jwtSecret() ([]byte, error) {
	secretMu.RLock()
	current := secret
	secretMu.RUnlock()
	if len(current) > 0 {
		return current, nil
	}

	fromEnv := support.GetEnv("JWT_SECRET", "")
	if fromEnv == "" {
		return nil, ErrNoSecret
	}
	return []byte(fromEnv), nil
}

// SetSecret overrides JWT_SECRET. An empty value restores the env lookup.
func SetSecret(value string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = []byte(value)
}

func GenerateJWT(subject, role string, ttl time.Duration) (string, error) {
	key, err := jwtSecret()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iss":  tokenIssuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	key, err := jwtSecret()
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
