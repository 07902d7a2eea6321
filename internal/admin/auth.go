package admin

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CapManageOptions = "manage_options"
	CapEditPosts     = "edit_posts"

	ActionSettings = "noindex_seo_settings"
	ActionOverride = "noindex_seo_override"
	ActionBulk     = "noindex_seo_bulk"

	audienceToken = "noindex-seo-admin"
	audienceNonce = "noindex-seo-nonce"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// actionCaps is the capability each nonce action requires.
var actionCaps = map[string]string{
	ActionSettings: CapManageOptions,
	ActionOverride: CapEditPosts,
	ActionBulk:     CapEditPosts,
}

type Claims struct {
	Capabilities []string `json:"caps"`
	jwt.RegisteredClaims
}

func (c *Claims) Can(capability string) bool {
	return slices.Contains(c.Capabilities, capability)
}

type NonceClaims struct {
	Action string `json:"action"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks bearer tokens and action nonces. Both are
// HS256 JWTs signed with the same secret but kept apart by audience.
type Authenticator struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	nonceTTL time.Duration
	now      func() time.Time
}

func NewAuthenticator(secret, issuer string, tokenTTL, nonceTTL time.Duration) (*Authenticator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &Authenticator{
		secret:   []byte(secret),
		issuer:   issuer,
		tokenTTL: tokenTTL,
		nonceTTL: nonceTTL,
		now:      time.Now,
	}, nil
}

// RandomSecret is used when no secret is configured; tokens then only live
// as long as the process.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (a *Authenticator) registered(subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := a.now()
	return jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (a *Authenticator) IssueToken(subject string, caps []string) (string, error) {
	claims := &Claims{Capabilities: caps, RegisteredClaims: a.registered(subject, audienceToken, a.tokenTTL)}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parse(token string, claims jwt.Claims, audience string) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	return err
}

func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	claims := &Claims{}
	if err := a.parse(token, claims, audienceToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims, nil
}

// IssueNonce binds an action to the subject that asked for it.
func (a *Authenticator) IssueNonce(claims *Claims, action string) (string, error) {
	capability, ok := actionCaps[action]
	if !ok {
		return "", fmt.Errorf("unknown action %q", action)
	}
	if !claims.Can(capability) {
		return "", ErrForbidden
	}
	nc := &NonceClaims{Action: action, RegisteredClaims: a.registered(claims.Subject, audienceNonce, a.nonceTTL)}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, nc).SignedString(a.secret)
}

func (a *Authenticator) VerifyNonce(nonce, subject, action string) error {
	nc := &NonceClaims{}
	if err := a.parse(nonce, nc, audienceNonce); err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if nc.Action != action || nc.Subject != subject {
		return fmt.Errorf("%w: nonce not valid for %s", ErrForbidden, action)
	}
	return nil
}
