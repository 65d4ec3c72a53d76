package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
)

// Claims is the payload inside every JWT token.
//
// The middleware and the WebSocket upgrade both read it back to learn WHO is
// calling without touching the database. Everything downstream trusts
// UserID and never re-checks credentials.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 JWT for a user.
func GenerateToken(userID uuid.UUID, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "relaychat",
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims.
//
// It verifies:
//  1. The signature matches our secret (not tampered with).
//  2. The token hasn't expired.
//  3. The signing method is HMAC, which blocks the "alg: none" and
//     RSA/HMAC confusion attacks.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token has no user id")
	}

	return claims, nil
}

// Tokens issues and verifies tokens with one secret and lifetime. It is the
// identity collaborator handed to the HTTP middleware and the WebSocket
// gateway.
type Tokens struct {
	secret string
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl}
}

func (t *Tokens) Issue(userID uuid.UUID, email string) (string, error) {
	return GenerateToken(userID, email, t.secret, t.ttl)
}

// Verify returns the user a token belongs to, or an apperr.KindAuth error.
func (t *Tokens) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, apperr.Auth("missing token")
	}
	claims, err := ParseToken(token, t.secret)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindAuth, Message: "invalid or expired token", Cause: err}
	}
	return claims, nil
}
