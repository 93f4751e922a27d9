// Package token verifies the push tokens exchanged through QR codes.
package token

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

const issuerPrefix = "https://securetoken.google.com/"

// Claims is the subset of a verified token the daemon keeps.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Verifier checks RS256 tokens issued for one project. Keys are indexed by
// the `kid` header.
type Verifier struct {
	projectID string
	keys      map[string]*rsa.PublicKey
	logger    *zap.Logger
	now       func() time.Time
}

// NewVerifier loads keysFile, a JSON object mapping key ids to PEM public
// keys or certificates. With no project configured, tokens are accepted
// after a syntax check and a warning.
func NewVerifier(projectID, keysFile string, logger *zap.Logger) (*Verifier, error) {
	v := &Verifier{
		projectID: projectID,
		keys:      map[string]*rsa.PublicKey{},
		logger:    logger,
		now:       time.Now,
	}
	if keysFile == "" {
		return v, nil
	}

	raw, err := os.ReadFile(keysFile)
	if err != nil {
		return nil, fmt.Errorf("read token keys: %w", err)
	}
	var pems map[string]string
	if err := json.Unmarshal(raw, &pems); err != nil {
		return nil, fmt.Errorf("parse token keys: %w", err)
	}
	for kid, p := range pems {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(p))
		if err != nil {
			return nil, fmt.Errorf("token key %s: %w", kid, err)
		}
		v.AddKey(kid, pub)
	}
	return v, nil
}

// AddKey registers a public key under kid.
func (v *Verifier) AddKey(kid string, pub *rsa.PublicKey) {
	v.keys[kid] = pub
}

// Enforcing reports whether signatures are checked.
func (v *Verifier) Enforcing() bool {
	return v.projectID != "" && len(v.keys) > 0
}

// Verify checks signature, issuer, audience and expiry.
func (v *Verifier) Verify(tokenStr string) (Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Claims{}, ErrInvalidToken
	}

	if !v.Enforcing() {
		tok, _, err := jwt.NewParser().ParseUnverified(tokenStr, &jwt.RegisteredClaims{})
		if err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		v.logger.Warn("accepting push token without verification, no token keys configured")
		return claimsOf(tok), nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	tok, err := parser.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := v.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return pub, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsOf(tok), nil
}

func claimsOf(tok *jwt.Token) Claims {
	var c Claims
	if rc, ok := tok.Claims.(*jwt.RegisteredClaims); ok {
		c.Subject = rc.Subject
		if rc.ExpiresAt != nil {
			c.ExpiresAt = rc.ExpiresAt.Time
		}
	}
	return c
}
