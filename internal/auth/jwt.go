package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "sonos-broker"
	audience = "sonos-broker-client"
)

// TokenType describes the purpose of a token.
type TokenType string

const TokenTypeAccess TokenType = "access"

// TokenPayload represents the validated payload data.
type TokenPayload struct {
	Sub        string
	DeviceName string
	Type       TokenType
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrNoSecret     = errors.New("no signing secret configured")
)

type tokenClaims struct {
	DeviceName string    `json:"deviceName"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an access token for a control client.
// ttl <= 0 issues a token without expiry.
func GenerateAccessToken(secret string, payload TokenPayload, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if payload.Sub == "" || payload.DeviceName == "" {
		return "", ErrTokenInvalid
	}
	now := time.Now()
	claims := tokenClaims{
		DeviceName: payload.DeviceName,
		Type:       TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  payload.Sub,
			Issuer:   issuer,
			Audience: []string{audience},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken parses and validates the JWT.
func VerifyToken(secret, token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{
		Sub:        claims.Subject,
		DeviceName: claims.DeviceName,
		Type:       claims.Type,
	}
	if payload.Sub == "" || payload.DeviceName == "" || payload.Type != TokenTypeAccess {
		return TokenPayload{}, ErrTokenInvalid
	}
	return payload, nil
}
