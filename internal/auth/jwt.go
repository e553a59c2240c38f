// Package auth verifies the signed credentials presented on WebSocket
// upgrade requests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when an upgrade request carries no
	// credential in either the query parameter or the bearer header.
	ErrMissingToken = errors.New("no credential token found")
)

// Claims are the verified fields bound to a connection after the handshake.
type Claims struct {
	UserID  string `json:"userId"`
	Address string `json:"address"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 credential tokens.
type Manager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewManager(secretKey string, tokenDuration time.Duration) *Manager {
	return &Manager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate creates a signed token. Primarily used by tooling and tests; the
// production issuer lives outside this service.
func (m *Manager) Generate(userID, address, role string) (string, error) {
	claims := &Claims{
		UserID:  userID,
		Address: address,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "launch-hub",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify validates a token and returns its claims. The address claim is
// canonicalized to lowercase so registry lookups and ownership checks are
// case-insensitive.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Address == "" {
		return nil, errors.New("token missing address claim")
	}

	claims.Address = strings.ToLower(claims.Address)
	return claims, nil
}

// ExtractToken pulls the credential from the upgrade request: the token
// query parameter first (the common WebSocket path, headers are awkward from
// browsers), then the Authorization bearer header.
func ExtractToken(r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	authHeader := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix), nil
	}

	return "", ErrMissingToken
}

// VerifyRequest extracts and verifies the credential on an upgrade request.
func (m *Manager) VerifyRequest(r *http.Request) (*Claims, error) {
	token, err := ExtractToken(r)
	if err != nil {
		return nil, err
	}
	return m.Verify(token)
}
