package tlsmgr

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// ClientRoots returns the system roots plus the local CA in dir when
// one exists.
func ClientRoots(dir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if dir == "" {
		return pool, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, caCertFile))
	if os.IsNotExist(err) {
		return pool, nil
	}
	if err != nil {
		return nil, err
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("parse %s: no certificates", filepath.Join(dir, caCertFile))
	}
	return pool, nil
}
