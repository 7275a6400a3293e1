package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pkt.systems/vmplane/internal/signature"
)

// RoleAdmin grants pool, node and user management.
const RoleAdmin = "admin"

var (
	// ErrUserExists indicates a duplicate user name.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates a missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserRequired indicates a missing user name.
	ErrUserRequired = errors.New("user name is required")
	// ErrSecretRequired indicates a missing secret.
	ErrSecretRequired = errors.New("secret is required")
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is an account known to the simulator.
type User struct {
	Name       string            `json:"name"`
	SecretHash string            `json:"secret_hash"`
	Roles      []string          `json:"roles,omitempty"`
	Keys       map[string]string `json:"keys,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// HasRole reports whether the user carries role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserStore holds users keyed by name and optionally persists them.
type UserStore struct {
	mu sync.RWMutex

	Users map[string]User `json:"users"`
}

// NewUserStore returns an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{Users: make(map[string]User)}
}

// LoadUserStore reads users from path. A missing file yields an empty store.
func LoadUserStore(path string) (*UserStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewUserStore(), nil
		}
		return nil, err
	}
	var store UserStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if store.Users == nil {
		store.Users = make(map[string]User)
	}
	for name, user := range store.Users {
		if user.Name == "" {
			user.Name = name
			store.Users[name] = user
		}
	}
	return &store, nil
}

// Save writes the store to path.
func (s *UserStore) Save(path string) error {
	if s == nil {
		return fmt.Errorf("user store is nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Get retrieves a user by name.
func (s *UserStore) Get(name string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.Users[name]
	return user, ok
}

// Upsert inserts or replaces a user.
func (s *UserStore) Upsert(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Users == nil {
		s.Users = make(map[string]User)
	}
	s.Users[user.Name] = user
}

// Delete removes a user and returns the removed record.
func (s *UserStore) Delete(name string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.Users[name]
	if ok {
		delete(s.Users, name)
	}
	return user, ok
}

// List returns users sorted by name.
func (s *UserStore) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.Users))
	for _, user := range s.Users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateUser adds a user with a bcrypt-hashed secret.
func CreateUser(store *UserStore, name, secret string, roles []string, now time.Time) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, ErrUserRequired
	}
	if secret == "" {
		return User{}, ErrSecretRequired
	}
	if _, exists := store.Get(name); exists {
		return User{}, ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Name:       name,
		SecretHash: string(hash),
		Roles:      append([]string(nil), roles...),
		CreatedAt:  now.UTC(),
	}
	store.Upsert(user)
	return user, nil
}

// ChangeUserSecret replaces a user's secret.
func ChangeUserSecret(store *UserStore, name, secret string) error {
	if secret == "" {
		return ErrSecretRequired
	}
	user, ok := store.Get(name)
	if !ok {
		return ErrUserNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.SecretHash = string(hash)
	store.Upsert(user)
	return nil
}

// DeleteUser removes a user by name.
func DeleteUser(store *UserStore, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrUserRequired
	}
	if _, ok := store.Delete(name); !ok {
		return ErrUserNotFound
	}
	return nil
}

// RegisterKey records a public key for token logins under serial.
func RegisterKey(store *UserStore, name, serial, publicKey string) error {
	user, ok := store.Get(name)
	if !ok {
		return ErrUserNotFound
	}
	if serial == "" || publicKey == "" {
		return errors.New("serial and public key are required")
	}
	if user.Keys == nil {
		user.Keys = make(map[string]string)
	}
	user.Keys[serial] = publicKey
	store.Upsert(user)
	return nil
}

// VerifySecret checks a user's secret.
func VerifySecret(store *UserStore, name, secret string) (User, error) {
	user, ok := store.Get(name)
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.SecretHash), []byte(secret)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// VerifySignature checks a signed token login against the key registered
// under the payload serial.
func VerifySignature(store *UserStore, payload signature.AuthPayload, sig, alg string) (User, error) {
	user, ok := store.Get(payload.User)
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	pub, ok := user.Keys[payload.Serial]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := signature.Verify(payload.Canonical(), sig, pub, alg); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}
