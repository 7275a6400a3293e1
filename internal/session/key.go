package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pkt.systems/vmplane/internal/signature"
)

// KeyDescriptor is a private access key as distributed out of band.
type KeyDescriptor struct {
	ID          string `json:"id"`
	Serial      string `json:"serial"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"public_key"`
	CreatedTime string `json:"created_time,omitempty"`
	PrivateKey  string `json:"private_key"`
}

// NewKey generates an Ed25519 access key for user id.
func NewKey(id string, now time.Time) (KeyDescriptor, error) {
	if strings.TrimSpace(id) == "" {
		return KeyDescriptor{}, fmt.Errorf("key id is required")
	}
	pub, priv, err := signature.GenerateKey()
	if err != nil {
		return KeyDescriptor{}, err
	}
	return KeyDescriptor{
		ID:          id,
		Serial:      uuid.NewString(),
		Algorithm:   signature.AlgorithmEd25519,
		PublicKey:   pub,
		CreatedTime: now.UTC().Format(time.RFC3339),
		PrivateKey:  priv,
	}, nil
}

// EncodeKeyToken returns the base64 JSON form of d.
func EncodeKeyToken(d KeyDescriptor) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeKeyToken parses a base64 JSON key token. The id field is
// required.
func DecodeKeyToken(token string) (KeyDescriptor, error) {
	token = strings.TrimSpace(token)
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(token); err != nil {
			return KeyDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidTokenFormat, err)
		}
	}
	var d KeyDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return KeyDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidTokenFormat, err)
	}
	if d.ID == "" {
		return KeyDescriptor{}, fmt.Errorf("%w: missing id", ErrInvalidTokenFormat)
	}
	if d.Algorithm == "" {
		d.Algorithm = signature.AlgorithmEd25519
	}
	return d, nil
}
