package tlsmgr

import (
	"bytes"
	"crypto/tls"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// LoadBundle reads a certificate chain and its private key from one or
// more PEM files, in any order.
func LoadBundle(files []string) (tls.Certificate, error) {
	if len(files) == 0 {
		return tls.Certificate{}, fmt.Errorf("tls bundle needs at least one file")
	}
	var all bytes.Buffer
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return tls.Certificate{}, err
		}
		all.Write(data)
		all.WriteByte('\n')
	}
	var certs, keys int
	for rest := all.Bytes(); ; {
		var block *pem.Block
		if block, rest = pem.Decode(rest); block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			certs++
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			keys++
		}
	}
	if certs == 0 {
		return tls.Certificate{}, fmt.Errorf("no certificate in tls bundle %v", files)
	}
	if keys == 0 {
		return tls.Certificate{}, fmt.Errorf("no private key in tls bundle %v", files)
	}
	return tls.X509KeyPair(all.Bytes(), all.Bytes())
}
