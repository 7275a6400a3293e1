package simulator

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/signature"
)

const (
	// DefaultAccessTokenTTL is the default access token lifetime.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultRefreshTokenTTL is the default refresh token lifetime.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	// MaxClockSkew bounds the age of a signed login timestamp.
	MaxClockSkew = 5 * time.Minute

	tokenIssuer       = "vmplane-simulator"
	defaultTokenBytes = 32
)

var (
	// ErrTokenNotFound is returned when a token is missing or revoked.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned when a token is expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrCSRFMismatch is returned when the CSRF header does not match.
	ErrCSRFMismatch = errors.New("csrf token mismatch")
	// ErrStaleLogin is returned for a replayed or out-of-window signed login.
	ErrStaleLogin = errors.New("stale login request")
)

// Claims are carried by simulator access tokens.
type Claims struct {
	Device string   `json:"device"`
	Roles  []string `json:"roles,omitempty"`
	CSRF   string   `json:"csrf"`
	jwt.RegisteredClaims
}

type liveToken struct {
	owner     string
	expiresAt time.Time
}

type refreshGrant struct {
	User      string
	Device    string
	ExpiresAt time.Time
}

// Issuer mints EdDSA access tokens and opaque refresh tokens.
type Issuer struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	mu      sync.Mutex
	live    map[string]liveToken
	refresh map[string]refreshGrant
	nonces  map[string]time.Time
}

// NewIssuer generates a fresh signing key.
func NewIssuer(accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &Issuer{
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		priv:       priv,
		pub:        pub,
		live:       make(map[string]liveToken),
		refresh:    make(map[string]refreshGrant),
		nonces:     make(map[string]time.Time),
	}, nil
}

// PublicKey returns the hex encoded verification key.
func (i *Issuer) PublicKey() string {
	return hex.EncodeToString(i.pub)
}

// Issue returns a complete token bundle for user on device.
func (i *Issuer) Issue(user User, device string, now time.Time) (authstore.Bundle, error) {
	now = now.UTC().Truncate(time.Second)
	csrf, err := randomToken(16)
	if err != nil {
		return authstore.Bundle{}, err
	}
	refresh, err := randomToken(defaultTokenBytes)
	if err != nil {
		return authstore.Bundle{}, err
	}
	jti := uuid.NewString()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)
	claims := Claims{
		Device: device,
		Roles:  user.Roles,
		CSRF:   csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.Name,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.priv)
	if err != nil {
		return authstore.Bundle{}, fmt.Errorf("sign access token: %w", err)
	}

	i.mu.Lock()
	for id, tok := range i.live {
		if now.After(tok.expiresAt) {
			delete(i.live, id)
		}
	}
	i.live[jti] = liveToken{owner: deviceKey(user.Name, device), expiresAt: accessExp}
	i.refresh[refresh] = refreshGrant{User: user.Name, Device: device, ExpiresAt: refreshExp}
	i.mu.Unlock()

	return authstore.Bundle{
		AccessToken:      access,
		RefreshToken:     refresh,
		CSRFToken:        csrf,
		PublicKey:        i.PublicKey(),
		Algorithm:        signature.AlgorithmEd25519,
		AccessExpiredAt:  accessExp.Format(time.RFC3339),
		RefreshExpiredAt: refreshExp.Format(time.RFC3339),
		Roles:            append([]string(nil), user.Roles...),
		User:             user.Name,
	}, nil
}

// ValidateAccess parses an access token and checks its CSRF binding.
func (i *Issuer) ValidateAccess(token, csrf string, now time.Time) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}
	i.mu.Lock()
	_, ok := i.live[claims.ID]
	i.mu.Unlock()
	if !ok {
		return nil, ErrTokenNotFound
	}
	if csrf != claims.CSRF {
		return nil, ErrCSRFMismatch
	}
	return claims, nil
}

// Redeem consumes a refresh token issued to user on device.
func (i *Issuer) Redeem(user, device, token string, now time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	grant, ok := i.refresh[token]
	if !ok || grant.User != user || grant.Device != device {
		return ErrTokenNotFound
	}
	delete(i.refresh, token)
	if now.After(grant.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// RevokeDevice drops every token issued to user on device and returns
// how many were removed.
func (i *Issuer) RevokeDevice(user, device string) int {
	key := deviceKey(user, device)
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for jti, tok := range i.live {
		if tok.owner == key {
			delete(i.live, jti)
			n++
		}
	}
	for token, grant := range i.refresh {
		if grant.User == user && grant.Device == device {
			delete(i.refresh, token)
			n++
		}
	}
	return n
}

// RevokeUser drops every token issued to user.
func (i *Issuer) RevokeUser(user string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for token, grant := range i.refresh {
		if grant.User == user {
			delete(i.refresh, token)
		}
	}
	for jti, tok := range i.live {
		if userOf(tok.owner) == user {
			delete(i.live, jti)
		}
	}
}

// CheckNonce rejects replayed nonces and timestamps outside MaxClockSkew.
func (i *Issuer) CheckNonce(payload signature.AuthPayload, now time.Time) error {
	ts, err := time.Parse(time.RFC3339, payload.Timestamp)
	if err != nil {
		return ErrStaleLogin
	}
	if d := now.Sub(ts); d > MaxClockSkew || d < -MaxClockSkew {
		return ErrStaleLogin
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for nonce, seen := range i.nonces {
		if now.Sub(seen) > 2*MaxClockSkew {
			delete(i.nonces, nonce)
		}
	}
	if _, used := i.nonces[payload.Nonce]; used {
		return ErrStaleLogin
	}
	i.nonces[payload.Nonce] = now
	return nil
}

func deviceKey(user, device string) string {
	return user + "\x00" + device
}

func userOf(key string) string {
	user, _, _ := strings.Cut(key, "\x00")
	return user
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.EncodeToString(buf), nil
}
