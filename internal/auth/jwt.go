package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultAccessTokenTTL bounds dashboard access issued after approval.
const defaultAccessTokenTTL = 15 * time.Minute

// JWTClaims are the dashboard access token claims.
type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies dashboard access tokens. A token is only
// issued once an approval session reaches the verified state, and it carries
// its own expiry independent of the session TTL.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService creates a JWT service. A non-positive ttl selects the
// default.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &JWTService{secret: []byte(secret), ttl: ttl}
}

// SignAccessToken creates an HS256 access token for the username.
func (s *JWTService) SignAccessToken(username string) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken verifies and parses an access token.
func (s *JWTService) VerifyToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
