package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"
)

// RequestIDHeader carries the request id assigned by AccessLog.
const RequestIDHeader = "X-Request-ID"

// AccessLog logs one line per request and stores a request-scoped logger
// in the request context, retrievable with pslog.Ctx. Health checks are
// logged at debug level.
func AccessLog(logger pslog.Logger, handler http.Handler) http.Handler {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		reqLogger := logger.With("request_id", id, "ip", RealIP(r))
		r = r.WithContext(pslog.ContextWithLogger(r.Context(), reqLogger))

		rec := &statusRecorder{ResponseWriter: w}
		handler.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start).String(),
		}
		switch {
		case rec.status >= 500:
			reqLogger.Error("http request", fields...)
		case rec.status >= 400:
			reqLogger.Warn("http request", fields...)
		case isHealthPath(r.URL.Path):
			reqLogger.Debug("http request", fields...)
		default:
			reqLogger.Info("http request", fields...)
		}
	})
}

func isHealthPath(p string) bool {
	return strings.HasSuffix(p, "/health")
}

// statusRecorder captures status and size while still letting websocket
// upgrades hijack the connection.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijack not supported by %T", s.ResponseWriter)
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
