package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"qugate/crypto"
)

const (
	roleAdmin      = "admin"
	tokenClockSkew = 2 * time.Minute
)

// Claims carried by caller tokens. The subject is the caller identity in
// bech32 or hex form; Role "admin" unlocks operator methods.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Admin reports whether the token grants operator access.
func (c *Claims) Admin() bool { return c != nil && c.Role == roleAdmin }

// Identity parses the token subject.
func (c *Claims) Identity() (crypto.Identity, error) {
	if c == nil {
		return crypto.Identity{}, errors.New("no claims")
	}
	return crypto.ParseIdentity(c.Subject)
}

// Authenticator checks HS256 bearer tokens. The host that issues tokens is
// trusted to have verified the caller.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret))}
}

// Authenticate validates the Authorization header of r.
func (a *Authenticator) Authenticate(r *http.Request) (*Claims, *RPCError) {
	if len(a.secret) == 0 {
		return nil, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(tokenClockSkew))
	if err != nil {
		return nil, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	return claims, nil
}

// IssueToken signs a caller token. It backs the CLI and tests; production
// deployments issue tokens from the host.
func IssueToken(secret string, subject string, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("rpc: token secret required")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}
