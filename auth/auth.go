// Package auth verifies bearer tokens: Cognito user pool tokens (RS256, keys from the pool's
// JWKS) in deployed environments and HS256 tokens signed with a shared secret for local runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KamdynS/bedrock-agents/config"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the Cognito claims the agents look at.
type Claims struct {
	TokenUse        string   `json:"token_use,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
	Scope           string   `json:"scope,omitempty"`
	Username        string   `json:"username,omitempty"`
	CognitoUsername string   `json:"cognito:username,omitempty"`
	Groups          []string `json:"cognito:groups,omitempty"`
	Email           string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User returns the best human-readable identity in the token.
func (c *Claims) User() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.CognitoUsername != "":
		return c.CognitoUsername
	case c.Email != "":
		return c.Email
	}
	return c.Subject
}

// IsService reports whether the token was issued to an app client through the
// client-credentials grant: an access token with no user behind it.
func (c *Claims) IsService() bool {
	return c.TokenUse == "access" && c.ClientID != "" && c.Username == "" && c.CognitoUsername == ""
}

// HasScope reports whether scope is one of the space-separated OAuth scopes.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier checks a raw bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// HS256Verifier accepts tokens signed with a shared secret.
type HS256Verifier struct {
	Secret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
}

func (v HS256Verifier) Verify(_ context.Context, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

// IssueHS256 signs a development token for subject valid for ttl.
func IssueHS256(secret []byte, issuer, subject, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenUse: "access",
		Scope:    scope,
		Username: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// FromConfig builds the verifier selected by cfg.Mode. Mode "none" returns nil.
func FromConfig(cfg config.Auth) (Verifier, error) {
	switch cfg.Mode {
	case "", "none":
		return nil, nil
	case "hs256":
		if err := config.Require("auth.hs256_secret", cfg.HS256Secret); err != nil {
			return nil, err
		}
		return HS256Verifier{Secret: []byte(cfg.HS256Secret)}, nil
	case "cognito":
		if err := config.Require("auth.cognito_region", cfg.CognitoRegion, "auth.user_pool_id", cfg.UserPoolID); err != nil {
			return nil, err
		}
		return NewCognitoVerifier(cfg.CognitoRegion, cfg.UserPoolID, cfg.ClientID), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
