// Package simulator is an in-process control plane that speaks the same
// wire contract as the real backend. It backs the SDK end-to-end tests
// and the simulate command.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/clock"
	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/server"
	"pkt.systems/vmplane/internal/signature"
)

// DefaultBasePath is where the API is mounted.
const DefaultBasePath = "/api/v1"

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Users     *UserStore
	UsersFile string
	Inventory *Inventory
	Clock     clock.Clock
	Logger    pslog.Logger

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	TaskPolls  int

	// BasePath defaults to DefaultBasePath.
	BasePath string
	// PublishedURL, when set, is the externally reachable base for
	// monitor channels.
	PublishedURL string
}

// Server exposes the simulated control plane over HTTP.
type Server struct {
	users        *UserStore
	usersFile    string
	inventory    *Inventory
	tasks        *TaskQueue
	issuer       *Issuer
	monitors     *monitorGrants
	clock        clock.Clock
	logger       pslog.Logger
	basePath     string
	publishedURL string
}

// New constructs a simulator. Missing users or inventory are created
// empty.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	users := opts.Users
	if users == nil {
		users = NewUserStore()
	}
	inv := opts.Inventory
	if inv == nil {
		inv = NewInventory(clk)
	}
	base := DefaultBasePath
	if opts.BasePath != "" {
		normalized, err := server.NormalizeBasePath(opts.BasePath)
		if err != nil {
			return nil, err
		}
		base = normalized
	}
	issuer, err := NewIssuer(opts.AccessTTL, opts.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &Server{
		users:        users,
		usersFile:    opts.UsersFile,
		inventory:    inv,
		tasks:        NewTaskQueue(opts.TaskPolls),
		issuer:       issuer,
		monitors:     newMonitorGrants(),
		clock:        clk,
		logger:       logger.With("component", "simulator"),
		basePath:     base,
		publishedURL: opts.PublishedURL,
	}, nil
}

// Users returns the user store.
func (s *Server) Users() *UserStore { return s.users }

// Inventory returns the simulated cluster state.
func (s *Server) Inventory() *Inventory { return s.inventory }

// Tasks returns the task queue.
func (s *Server) Tasks() *TaskQueue { return s.tasks }

// Issuer returns the token issuer.
func (s *Server) Issuer() *Issuer { return s.issuer }

// BasePath returns the mount point of the API.
func (s *Server) BasePath() string { return s.basePath }

// Handler returns the API mounted under the base path with access
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/auth/by-secret", s.handleBySecret)
	mux.HandleFunc("/auth/by-token", s.handleByToken)
	mux.HandleFunc("/auth/refresh", s.handleRefresh)
	mux.HandleFunc("/commands/", s.handleCommand)
	mux.HandleFunc("/monitor/", s.handleMonitor)
	mux.HandleFunc(monitorPath, s.handleMonitorSocket)
	return server.AccessLog(s.logger, server.WrapBasePath(s.basePath, mux))
}

type envelope struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type secretRequest struct {
	User   string `json:"user"`
	Device string `json:"device"`
	Secret string `json:"secret"`
}

type tokenRequest struct {
	User               string `json:"user"`
	Device             string `json:"device"`
	Serial             string `json:"serial"`
	Nonce              string `json:"nonce"`
	Timestamp          string `json:"timestamp"`
	SignatureAlgorithm string `json:"signature_algorithm"`
	Signature          string `json:"signature"`
}

type refreshRequest struct {
	User   string `json:"user"`
	Device string `json:"device"`
	Token  string `json:"token"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBySecret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req secretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Device == "" {
		writeError(w, http.StatusBadRequest, "device is required")
		return
	}
	user, err := VerifySecret(s.users, req.User, req.Secret)
	if err != nil {
		s.loggerWithContext(r.Context()).Warn("secret login rejected", "user", req.User, "device", req.Device)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.grant(w, r, user, req.Device, "secret")
}

func (s *Server) handleByToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Device == "" {
		writeError(w, http.StatusBadRequest, "device is required")
		return
	}
	payload := signature.AuthPayload{
		Timestamp: req.Timestamp,
		Nonce:     req.Nonce,
		User:      req.User,
		Serial:    req.Serial,
		Device:    req.Device,
	}
	logger := s.loggerWithContext(r.Context())
	if err := s.issuer.CheckNonce(payload, s.clock.Now()); err != nil {
		logger.Warn("token login rejected", "user", req.User, "serial", req.Serial, "error", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	user, err := VerifySignature(s.users, payload, req.Signature, req.SignatureAlgorithm)
	if err != nil {
		logger.Warn("token login rejected", "user", req.User, "serial", req.Serial, "error", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.grant(w, r, user, req.Device, "token")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.issuer.Redeem(req.User, req.Device, req.Token, s.clock.Now()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	user, ok := s.users.Get(req.User)
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUserNotFound.Error())
		return
	}
	s.grant(w, r, user, req.Device, "refresh")
}

func (s *Server) grant(w http.ResponseWriter, r *http.Request, user User, device, method string) {
	bundle, err := s.issuer.Issue(user, device, s.clock.Now())
	if err != nil {
		s.loggerWithContext(r.Context()).Error("token issue failed", "user", user.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	s.loggerWithContext(r.Context()).Info("tokens issued", "user", user.Name, "device", device, "method", method)
	writeData(w, bundle)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.requireAuth(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req command.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := s.dispatch(caller, req)
	if resp.Error != "" {
		s.loggerWithContext(r.Context()).Debug("command failed", "type", req.Type, "user", caller.Subject, "error", resp.Error)
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAuth validates the bearer token and its CSRF header.
func (s *Server) requireAuth(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing authorization")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, errors.New("invalid authorization")
	}
	return s.issuer.ValidateAccess(strings.TrimSpace(parts[1]), r.Header.Get("X-CSRF-Token"), s.clock.Now())
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, envelope{Data: payload})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Error: message})
}

func (s *Server) persistUsers() error {
	if s.usersFile == "" {
		return nil
	}
	if err := s.users.Save(s.usersFile); err != nil {
		s.logger.Error("failed to persist users", "error", err)
		return err
	}
	return nil
}

func (s *Server) loggerWithContext(ctx context.Context) pslog.Logger {
	if ctx == nil {
		return s.logger
	}
	if logger := pslog.Ctx(ctx); logger != nil {
		return logger
	}
	return s.logger
}

// Bootstrap creates the admin user when the store is empty and seeds
// the inventory when it has no nodes.
func (s *Server) Bootstrap(adminUser, adminSecret string) error {
	if len(s.users.List()) == 0 {
		if _, err := CreateUser(s.users, adminUser, adminSecret, []string{RoleAdmin}, s.clock.Now()); err != nil {
			return err
		}
		if err := s.persistUsers(); err != nil {
			return err
		}
		s.logger.Info("admin user created", "user", adminUser)
	}
	if len(s.inventory.Nodes()) == 0 {
		Seed(s.inventory)
	}
	return nil
}
