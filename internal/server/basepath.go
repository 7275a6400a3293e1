package server

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

// NormalizeBasePath cleans a mount path. The root mount is returned as
// the empty string.
func NormalizeBasePath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" || p == "/" {
		return "", nil
	}
	if strings.Contains(p, "://") || strings.ContainsAny(p, "?#") {
		return "", fmt.Errorf("base path %q must be a plain URL path", raw)
	}
	p = "/" + strings.TrimLeft(p, "/")
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("base path %q contains a relative segment", raw)
		}
	}
	if p = path.Clean(p); p == "/" {
		return "", nil
	}
	return p, nil
}

// WrapBasePath serves handler below base with the prefix stripped. A
// request for base itself is redirected to base + "/".
func WrapBasePath(base string, handler http.Handler) http.Handler {
	if base == "" {
		return handler
	}
	mux := http.NewServeMux()
	mux.Handle(base+"/", http.StripPrefix(base, handler))
	mux.Handle(base, http.RedirectHandler(base+"/", http.StatusMovedPermanently))
	return mux
}
