package authstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validBundle(now time.Time) Bundle {
	return Bundle{
		AccessToken:      "access",
		RefreshToken:     "refresh",
		CSRFToken:        "csrf",
		PublicKey:        "pub",
		Algorithm:        "ed25519",
		AccessExpiredAt:  now.Add(5 * time.Minute).Format(time.RFC3339),
		RefreshExpiredAt: now.Add(24 * time.Hour).Format(time.RFC3339),
		Roles:            []string{"admin"},
		User:             "alice",
	}
}

func TestValidateAcceptsFreshBundle(t *testing.T) {
	if err := Validate(validBundle(testNow), testNow); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := map[string]func(*Bundle){
		"user":               func(b *Bundle) { b.User = "" },
		"access_token":       func(b *Bundle) { b.AccessToken = "" },
		"refresh_token":      func(b *Bundle) { b.RefreshToken = "" },
		"csrf_token":         func(b *Bundle) { b.CSRFToken = "" },
		"public_key":         func(b *Bundle) { b.PublicKey = "" },
		"algorithm":          func(b *Bundle) { b.Algorithm = "" },
		"refresh_expired_at": func(b *Bundle) { b.RefreshExpiredAt = "" },
	}
	for field, mutate := range cases {
		b := validBundle(testNow)
		mutate(&b)
		err := Validate(b, testNow)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: Validate = %v, want *ValidationError", field, err)
		}
		if verr.Field != field {
			t.Fatalf("%s: Field = %q", field, verr.Field)
		}
	}
}

func TestValidateExpiryTolerance(t *testing.T) {
	b := validBundle(testNow)
	b.AccessExpiredAt = testNow.Add(-9 * time.Minute).Format(time.RFC3339)
	if err := Validate(b, testNow); err != nil {
		t.Fatalf("within tolerance: %v", err)
	}

	b.AccessExpiredAt = testNow.Add(-11 * time.Minute).Format(time.RFC3339)
	var verr *ValidationError
	if err := Validate(b, testNow); !errors.As(err, &verr) || verr.Field != "access_expired_at" {
		t.Fatalf("access past tolerance: %v", err)
	}

	b = validBundle(testNow)
	b.RefreshExpiredAt = testNow.Add(-time.Hour).Format(time.RFC3339)
	if err := Validate(b, testNow); !errors.As(err, &verr) || verr.Field != "refresh_expired_at" {
		t.Fatalf("refresh past tolerance: %v", err)
	}

	b = validBundle(testNow)
	b.AccessExpiredAt = "tomorrow"
	if err := Validate(b, testNow); !errors.As(err, &verr) || verr.Reason != "is malformed" {
		t.Fatalf("malformed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.Load(ctx, "k")
	if err != nil || !got.IsZero() {
		t.Fatalf("empty Load = %+v, %v", got, err)
	}
	b := validBundle(testNow)
	if err := s.Save(ctx, "k", b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Load(ctx, "k"); got.AccessToken != "access" {
		t.Fatalf("AccessToken = %q", got.AccessToken)
	}
	s.AuthStateChanged("k", true)
	if !s.Authenticated("k") {
		t.Fatalf("Authenticated = false")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Fatalf("Snapshot not empty after Delete")
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	s := NewFileStore(path)

	if got, err := s.Load(ctx, "a"); err != nil || !got.IsZero() {
		t.Fatalf("missing file Load = %+v, %v", got, err)
	}

	first := validBundle(testNow)
	second := validBundle(testNow)
	second.User = "bob"
	if err := s.Save(ctx, "a", first); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := s.Save(ctx, "b", second); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	reopened := NewFileStore(path)
	got, err := reopened.Load(ctx, "b")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.User != "bob" || got.AccessExpiredAt != second.AccessExpiredAt {
		t.Fatalf("Load b = %+v", got)
	}
	keys, err := reopened.Keys()
	if err != nil || len(keys) != 2 {
		t.Fatalf("Keys = %v, %v", keys, err)
	}

	if err := reopened.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Load(ctx, "a"); !got.IsZero() {
		t.Fatalf("a still present after Delete")
	}
}

func TestFileStoreSealed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	identity, err := LoadOrGenerateIdentity(filepath.Join(dir, "identity.txt"))
	if err != nil {
		t.Fatalf("LoadOrGenerateIdentity: %v", err)
	}
	path := filepath.Join(dir, "tokens.age")
	s := NewFileStore(path, WithIdentity(identity))
	if !s.Sealed() {
		t.Fatalf("Sealed = false")
	}
	if err := s.Save(ctx, "k", validBundle(testNow)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(raw, []byte("refresh")) {
		t.Fatalf("sealed file contains plaintext token")
	}

	again, err := LoadIdentity(filepath.Join(dir, "identity.txt"))
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	got, err := NewFileStore(path, WithIdentity(again)).Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RefreshToken != "refresh" {
		t.Fatalf("RefreshToken = %q", got.RefreshToken)
	}

	if _, err := NewFileStore(path).Load(ctx, "k"); err == nil {
		t.Fatalf("unsealed read of sealed file should fail")
	}
}
