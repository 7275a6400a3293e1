// Package signature signs token-authentication requests.
//
// The backend verifies an Ed25519 signature over a canonical payload
// built from the request fields. The canonical form sorts the fields by
// name and joins them as key=value pairs separated by '&'; the byte
// sequence must match the server's exactly.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"
)

// AlgorithmEd25519 is the only supported signature algorithm.
const AlgorithmEd25519 = "ed25519"

const (
	seedBytes      = ed25519.SeedSize
	nonceMinLength = 20
	nonceSpread    = 10
	nonceAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrUnsupportedAlgorithm is returned for any algorithm other than Ed25519.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	// ErrInvalidSignature is returned when verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

// AuthPayload holds the fields covered by a token-authentication signature.
type AuthPayload struct {
	Timestamp string
	Nonce     string
	User      string
	Serial    string
	Device    string
}

// NewAuthPayload fills in a fresh timestamp and nonce.
func NewAuthPayload(now time.Time, user, serial, device string) (AuthPayload, error) {
	nonce, err := NewNonce()
	if err != nil {
		return AuthPayload{}, err
	}
	return AuthPayload{
		Timestamp: now.UTC().Format(time.RFC3339),
		Nonce:     nonce,
		User:      user,
		Serial:    serial,
		Device:    device,
	}, nil
}

// Canonical returns the string that is signed.
func (p AuthPayload) Canonical() string {
	return Canonical(map[string]string{
		"timestamp": p.Timestamp,
		"nonce":     p.Nonce,
		"user":      p.User,
		"serial":    p.Serial,
		"device":    p.Device,
	})
}

// Canonical sorts fields by key and joins them as key=value&key=value.
func Canonical(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// Sign signs payload with the hex-encoded private key. Only the first
// 32 decoded bytes (the Ed25519 seed) are used.
func Sign(payload, privateKeyHex, algorithm string) (string, error) {
	if algorithm != AlgorithmEd25519 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) < seedBytes {
		return "", fmt.Errorf("private key too short: %d bytes", len(raw))
	}
	key := ed25519.NewKeyFromSeed(raw[:seedBytes])
	return hex.EncodeToString(ed25519.Sign(key, []byte(payload))), nil
}

// Verify checks a hex signature against a hex public key.
func Verify(payload, signatureHex, publicKeyHex, algorithm string) error {
	if algorithm != AlgorithmEd25519 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pub))
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(payload), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateKey returns a new keypair as hex strings. The private key is
// the 64-byte Ed25519 form (seed followed by public key).
func GenerateKey() (publicKeyHex, privateKeyHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}

// NewNonce returns a random alphanumeric string of 20 to 29 characters.
func NewNonce() (string, error) {
	spread, err := rand.Int(rand.Reader, big.NewInt(nonceSpread))
	if err != nil {
		return "", err
	}
	n := nonceMinLength + int(spread.Int64())
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(nonceAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = nonceAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
