package session

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/authstore"
	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/signature"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// stubBackend answers the auth and command endpoints from memory.
type stubBackend struct {
	t     *testing.T
	srv   *httptest.Server
	clock clock.Clock

	mu            sync.Mutex
	accessTTL     time.Duration
	issued        int
	keys          map[string]string
	secretStatus  int
	refreshStatus int
	commandQueue  []int
	secretCalls   int
	tokenCalls    int
	refreshCalls  int
	commandCalls  int
	commands      []command.Request
	bearers       []string
	mutate        func(*authstore.Bundle)
	handle        func(command.Request) any
	onRefresh     func()
}

func newStubBackend(t *testing.T, clk clock.Clock) *stubBackend {
	t.Helper()
	s := &stubBackend{
		t:         t,
		clock:     clk,
		accessTTL: 300 * time.Second,
		keys:      make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/by-secret", s.bySecret)
	mux.HandleFunc("/api/v1/auth/by-token", s.byToken)
	mux.HandleFunc("/api/v1/auth/refresh", s.refresh)
	mux.HandleFunc("/api/v1/commands/", s.commandsHandler)
	mux.HandleFunc("/api/v1/monitor/", s.monitor)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubBackend) endpoint() string { return s.srv.URL + "/api/v1/" }

func (s *stubBackend) issue(user string) authstore.Bundle {
	s.issued++
	now := s.clock.Now()
	b := authstore.Bundle{
		AccessToken:      fmt.Sprintf("access-%d", s.issued),
		RefreshToken:     fmt.Sprintf("refresh-%d", s.issued),
		CSRFToken:        fmt.Sprintf("csrf-%d", s.issued),
		PublicKey:        "pub",
		Algorithm:        signature.AlgorithmEd25519,
		AccessExpiredAt:  now.Add(s.accessTTL).Format(time.RFC3339),
		RefreshExpiredAt: now.Add(24 * time.Hour).Format(time.RFC3339),
		Roles:            []string{"admin"},
		User:             user,
	}
	if s.mutate != nil {
		s.mutate(&b)
	}
	return b
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (s *stubBackend) bySecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secretCalls++
	if s.secretStatus != 0 {
		w.WriteHeader(s.secretStatus)
		return
	}
	if req.User != "alice" || req.Secret != "pw" || req.Device == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeData(w, s.issue(req.User))
}

func (s *stubBackend) byToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenCalls++
	pub, ok := s.keys[req.User]
	payload := signature.AuthPayload{
		Timestamp: req.Timestamp,
		Nonce:     req.Nonce,
		User:      req.User,
		Serial:    req.Serial,
		Device:    req.Device,
	}
	if !ok || signature.Verify(payload.Canonical(), req.Signature, pub, req.SignatureAlgorithm) != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeData(w, s.issue(req.User))
}

func (s *stubBackend) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if s.onRefresh != nil {
		s.onRefresh()
	}
	if s.refreshStatus != 0 {
		w.WriteHeader(s.refreshStatus)
		return
	}
	if req.Token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeData(w, s.issue(req.User))
}

func (s *stubBackend) commandsHandler(w http.ResponseWriter, r *http.Request) {
	var req command.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.t.Errorf("decode command: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.commandCalls++
	s.commands = append(s.commands, req)
	s.bearers = append(s.bearers, r.Header.Get("Authorization"))
	status := http.StatusOK
	if len(s.commandQueue) > 0 {
		status = s.commandQueue[0]
		s.commandQueue = s.commandQueue[1:]
	}
	handle := s.handle
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	var body any = command.Response{Data: &command.Data{}}
	if handle != nil {
		body = handle(req)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *stubBackend) monitor(w http.ResponseWriter, r *http.Request) {
	var req command.MonitorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	writeData(w, command.MonitorChannel{
		Protocol: "vnc",
		Secret:   "s3cret",
		URL:      "ws://127.0.0.1/monitor/" + req.ID,
	})
}

func (s *stubBackend) counts() (secret, refresh, commands int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secretCalls, s.refreshCalls, s.commandCalls
}

// set mutates stub configuration under its lock.
func (s *stubBackend) set(fn func(*stubBackend)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *stubBackend) queue(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandQueue = append(s.commandQueue, statuses...)
}

// recorder counts observer notifications.
type recorder struct {
	mu      sync.Mutex
	tokens  []authstore.Bundle
	expired int
	states  []bool
}

func (r *recorder) TokensChanged(b authstore.Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, b)
}

func (r *recorder) AuthExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired++
}

func (r *recorder) StateChanged(authenticated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, authenticated)
}

func (r *recorder) stateLog() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func (r *recorder) expiredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

type fixture struct {
	clock    *clock.FakeClock
	backend  *stubBackend
	store    *authstore.MemoryStore
	observer *recorder
	conn     *Connector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	backend := newStubBackend(t, clk)
	store := authstore.NewMemoryStore()
	obs := &recorder{}
	conn, err := New(Options{
		Endpoint: backend.endpoint(),
		Device:   "test-device",
		Store:    store,
		Observer: obs,
		Logger:   pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, DisableTimestamp: true, NoColor: true}),
		Clock:    clk,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &fixture{clock: clk, backend: backend, store: store, observer: obs, conn: conn}
}
