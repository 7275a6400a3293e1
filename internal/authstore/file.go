package authstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

// State is the on-disk layout of a FileStore.
type State struct {
	Sessions map[string]Bundle `json:"sessions"`
}

// FileStore persists bundles to a single JSON file, optionally sealed
// with an age X25519 identity.
type FileStore struct {
	path     string
	identity *age.X25519Identity

	mu sync.Mutex
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithIdentity seals the file to identity's recipient.
func WithIdentity(identity *age.X25519Identity) FileOption {
	return func(s *FileStore) {
		s.identity = identity
	}
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{path: path}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Sealed reports whether the file is age encrypted.
func (s *FileStore) Sealed() bool { return s.identity != nil }

// Load returns the bundle stored under key.
func (s *FileStore) Load(_ context.Context, key string) (Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return Bundle{}, err
	}
	return state.Sessions[key], nil
}

// Save writes bundle under key, preserving other sessions.
func (s *FileStore) Save(_ context.Context, key string, bundle Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return err
	}
	state.Sessions[key] = bundle
	return s.write(state)
}

// Delete removes the bundle stored under key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := state.Sessions[key]; !ok {
		return nil
	}
	delete(state.Sessions, key)
	return s.write(state)
}

// Keys lists the stored session keys.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(state.Sessions))
	for k := range state.Sessions {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *FileStore) read() (State, error) {
	state := State{Sessions: make(map[string]Bundle)}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	if s.identity != nil {
		r, err := age.Decrypt(bytes.NewReader(data), s.identity)
		if err != nil {
			return state, fmt.Errorf("unseal %s: %w", s.path, err)
		}
		if data, err = io.ReadAll(r); err != nil {
			return state, fmt.Errorf("unseal %s: %w", s.path, err)
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.Sessions == nil {
		state.Sessions = make(map[string]Bundle)
	}
	return state, nil
}

func (s *FileStore) write(state State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if s.identity != nil {
		var sealed bytes.Buffer
		w, err := age.Encrypt(&sealed, s.identity.Recipient())
		if err != nil {
			return fmt.Errorf("seal %s: %w", s.path, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("seal %s: %w", s.path, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("seal %s: %w", s.path, err)
		}
		data = sealed.Bytes()
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// GenerateIdentity creates a new age identity and writes it to path.
func GenerateIdentity(path string) (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, err
	}
	return identity, nil
}

// LoadIdentity reads an age X25519 identity from path.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse age identity %s: %w", path, err)
		}
		return identity, nil
	}
	return nil, fmt.Errorf("no age identity in %s", path)
}

// LoadOrGenerateIdentity loads the identity at path, creating it when
// the file does not exist.
func LoadOrGenerateIdentity(path string) (*age.X25519Identity, error) {
	identity, err := LoadIdentity(path)
	if errors.Is(err, fs.ErrNotExist) {
		return GenerateIdentity(path)
	}
	return identity, err
}
