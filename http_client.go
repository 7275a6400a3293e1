package vmplane

import (
	"net/http"

	"pkt.systems/vmplane/internal/transport"
)

// NewHTTPClient returns an HTTP client trusting the system roots and the
// local CA in tlsDir. An empty tlsDir uses DefaultTLSDir.
func NewHTTPClient(tlsDir string) (*http.Client, error) {
	if tlsDir == "" {
		tlsDir = DefaultTLSDir()
	}
	return transport.NewHTTPClient(tlsDir)
}
