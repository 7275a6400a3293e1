package authstore

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryTolerance is how far past its stated expiry a token is still
// accepted. It absorbs clock skew between client and backend.
const ExpiryTolerance = 10 * time.Minute

// Bundle is the token set issued by one authentication.
type Bundle struct {
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	CSRFToken        string   `json:"csrf_token"`
	PublicKey        string   `json:"public_key"`
	Algorithm        string   `json:"algorithm"`
	AccessExpiredAt  string   `json:"access_expired_at"`
	RefreshExpiredAt string   `json:"refresh_expired_at"`
	Roles            []string `json:"roles,omitempty"`
	User             string   `json:"user"`
}

// IsZero reports whether the bundle carries no access token.
func (b Bundle) IsZero() bool {
	return b.AccessToken == ""
}

// AccessExpiry parses access_expired_at.
func (b Bundle) AccessExpiry() (time.Time, error) {
	return time.Parse(time.RFC3339, b.AccessExpiredAt)
}

// RefreshExpiry parses refresh_expired_at.
func (b Bundle) RefreshExpiry() (time.Time, error) {
	return time.Parse(time.RFC3339, b.RefreshExpiredAt)
}

// HasRole reports whether role was granted.
func (b Bundle) HasRole(role string) bool {
	for _, r := range b.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ValidationError describes why a bundle was rejected.
type ValidationError struct {
	User   string
	Field  string
	Expiry string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Expiry != "" {
		return fmt.Sprintf("invalid token bundle for %q: %s %s (%s)", e.User, e.Field, e.Reason, e.Expiry)
	}
	return fmt.Sprintf("invalid token bundle for %q: %s %s", e.User, e.Field, e.Reason)
}

// Validate checks that every required field is present and that neither
// token is more than ExpiryTolerance past its expiry at now.
func Validate(b Bundle, now time.Time) error {
	required := []struct {
		name  string
		value string
	}{
		{"user", b.User},
		{"access_token", b.AccessToken},
		{"refresh_token", b.RefreshToken},
		{"csrf_token", b.CSRFToken},
		{"public_key", b.PublicKey},
		{"algorithm", b.Algorithm},
		{"refresh_expired_at", b.RefreshExpiredAt},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{User: b.User, Field: f.name, Reason: "is missing"}
		}
	}
	if err := checkExpiry(b.User, "access_expired_at", b.AccessExpiredAt, now); err != nil {
		return err
	}
	return checkExpiry(b.User, "refresh_expired_at", b.RefreshExpiredAt, now)
}

func checkExpiry(user, field, value string, now time.Time) error {
	expiry, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return &ValidationError{User: user, Field: field, Expiry: value, Reason: "is malformed"}
	}
	if now.Sub(expiry) > ExpiryTolerance {
		return &ValidationError{User: user, Field: field, Expiry: value, Reason: "has expired"}
	}
	return nil
}
