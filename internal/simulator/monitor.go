package simulator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/command"
	"pkt.systems/vmplane/internal/monitor"
)

const (
	monitorProtocol  = "vnc"
	monitorGrantTTL  = time.Minute
	monitorPath      = "/monitor/ws/"
	wsReadLimit      = 1 << 20
	handshakeTimeout = 10 * time.Second
)

type monitorGrant struct {
	guest     string
	expiresAt time.Time
}

// monitorGrants holds one-shot channel secrets.
type monitorGrants struct {
	mu     sync.Mutex
	grants map[string]monitorGrant
}

func newMonitorGrants() *monitorGrants {
	return &monitorGrants{grants: make(map[string]monitorGrant)}
}

func (m *monitorGrants) issue(guest string, now time.Time) (string, error) {
	secret, err := randomToken(20)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for s, g := range m.grants {
		if now.After(g.expiresAt) {
			delete(m.grants, s)
		}
	}
	m.grants[secret] = monitorGrant{guest: guest, expiresAt: now.Add(monitorGrantTTL)}
	return secret, nil
}

func (m *monitorGrants) redeem(secret, guest string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[secret]
	if !ok {
		return false
	}
	delete(m.grants, secret)
	return g.guest == guest && !now.After(g.expiresAt)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, err := s.requireAuth(r); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req command.MonitorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	guest, err := s.inventory.Guest(req.ID)
	if err != nil {
		writeJSON(w, http.StatusOK, envelope{Error: err.Error()})
		return
	}
	if guest.State != command.GuestRunning {
		writeJSON(w, http.StatusOK, envelope{Error: "guest is not running"})
		return
	}
	secret, err := s.monitors.issue(guest.ID, s.clock.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "secret generation failed")
		return
	}
	ch := command.MonitorChannel{
		Protocol: monitorProtocol,
		Secret:   secret,
		URL:      s.monitorURL(r, guest.ID),
	}
	if s.publishedURL != "" {
		ch.PublishedURL = strings.TrimRight(s.publishedURL, "/") + monitorPath + guest.ID
	}
	writeData(w, ch)
}

func (s *Server) monitorURL(r *http.Request, guest string) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + s.basePath + monitorPath + guest
}

// handleMonitorSocket checks the channel secret and then echoes binary
// frames back to the client as a console loopback. A secret in the URL
// query is redeemed before the upgrade and skips the Hello exchange.
func (s *Server) handleMonitorSocket(w http.ResponseWriter, r *http.Request) {
	guest := strings.TrimPrefix(r.URL.Path, monitorPath)
	raw := r.URL.Query().Get(monitor.SecretParam)
	if raw != "" && !s.monitors.redeem(raw, guest, s.clock.Now()) {
		s.logger.Warn("monitor secret rejected", "guest", guest)
		writeError(w, http.StatusForbidden, "invalid or expired secret")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("monitor accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)
	logger := s.logger.With("guest", guest)

	if raw == "" && !s.monitorHandshake(r.Context(), conn, guest, logger) {
		return
	}
	logger.Info("monitor channel open")

	ctx := r.Context()
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				logger.Debug("monitor read ended", "error", err)
			}
			return
		}
		if err := conn.Write(ctx, typ, payload); err != nil {
			return
		}
	}
}

func (s *Server) monitorHandshake(ctx context.Context, conn *websocket.Conn, guest string, logger pslog.Logger) bool {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	var hello monitor.Hello
	err := wsjson.Read(hctx, conn, &hello)
	if err == nil && !s.monitors.redeem(hello.Secret, guest, s.clock.Now()) {
		_ = wsjson.Write(hctx, conn, monitor.Welcome{Status: "denied", Error: "invalid or expired secret"})
		cancel()
		logger.Warn("monitor secret rejected")
		_ = conn.Close(websocket.StatusPolicyViolation, "rejected")
		return false
	}
	if err == nil {
		err = wsjson.Write(hctx, conn, monitor.Welcome{Status: monitor.StatusOK, Protocol: monitorProtocol})
	}
	cancel()
	if err != nil {
		logger.Debug("monitor handshake failed", "error", err)
		return false
	}
	return true
}
