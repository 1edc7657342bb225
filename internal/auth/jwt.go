package auth

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type settings struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

var (
	mu  sync.RWMutex
	cur = settings{
		secret:   []byte("development-insecure-secret-change-me"),
		issuer:   "task-tracker-api",
		audience: "task-tracker-clients",
		ttl:      24 * time.Hour,
	}
)

// Configure replaces the signing settings. Empty values keep the current ones.
func Configure(secret, issuer, audience string, ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if secret != "" {
		cur.secret = []byte(secret)
	}
	if issuer != "" {
		cur.issuer = issuer
	}
	if audience != "" {
		cur.audience = audience
	}
	if ttl > 0 {
		cur.ttl = ttl
	}
}

func current() settings {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// Claims represents the JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken generates a JWT token for the given user
func GenerateToken(userID, username string) (string, error) {
	s := current()
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	s := current()
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return nil, errors.New("invalid token issuer")
	}
	if !slices.Contains(claims.Audience, s.audience) {
		return nil, errors.New("invalid token audience")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
