package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// CognitoVerifier validates user pool ID and access tokens. Signing keys are fetched from
// the pool's JWKS and refreshed when a token names an unknown key id.
type CognitoVerifier struct {
	issuer   string
	jwksURL  string
	clientID string
	http     *http.Client

	fetch       singleflight.Group
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
	// minRefresh limits JWKS fetches triggered by unknown key ids.
	minRefresh time.Duration
}

// NewCognitoVerifier verifies tokens of the given user pool. clientID, when set, must match
// client_id (access tokens) or aud (ID tokens).
func NewCognitoVerifier(region, userPoolID, clientID string) *CognitoVerifier {
	issuer := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
	return newCognitoVerifier(issuer, issuer+"/.well-known/jwks.json", clientID)
}

func newCognitoVerifier(issuer, jwksURL, clientID string) *CognitoVerifier {
	return &CognitoVerifier{
		issuer:     issuer,
		jwksURL:    jwksURL,
		clientID:   clientID,
		http:       &http.Client{Timeout: 10 * time.Second},
		keys:       map[string]*rsa.PublicKey{},
		minRefresh: time.Minute,
	}
}

// Issuer is the expected iss claim.
func (v *CognitoVerifier) Issuer() string { return v.issuer }

func (v *CognitoVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch claims.TokenUse {
	case "access":
		if v.clientID != "" && claims.ClientID != v.clientID {
			return nil, fmt.Errorf("%w: client_id mismatch", ErrInvalidToken)
		}
	case "id":
		if v.clientID != "" {
			aud, _ := claims.GetAudience()
			if !contains(aud, v.clientID) {
				return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected token_use %q", ErrInvalidToken, claims.TokenUse)
	}
	return &claims, nil
}

func (v *CognitoVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	stale := time.Since(v.lastRefresh) >= v.minRefresh
	v.mu.RUnlock()
	if ok {
		return k, nil
	}
	if !stale {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	// concurrent misses share one fetch
	_, err, _ := v.fetch.Do("jwks", func() (interface{}, error) {
		v.mu.RLock()
		fresh := time.Since(v.lastRefresh) < v.minRefresh
		v.mu.RUnlock()
		if fresh {
			return nil, nil
		}
		return nil, v.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		Alg string `json:"alg"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *CognitoVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: %s", resp.Status)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			slog.WarnContext(ctx, "jwks key skipped", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	v.mu.Lock()
	v.keys = keys
	v.lastRefresh = time.Now()
	v.mu.Unlock()
	return nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

var (
	_ Verifier = (*CognitoVerifier)(nil)
	_ Verifier = HS256Verifier{}
)
