package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// NewCheckOrigin returns the upgrade origin check for the session feed.
// Empty origins (non-browser clients), the app's own origin and any extra
// allowed origins pass. Localhost is accepted outside production.
func NewCheckOrigin(appURL string, allowLocalhost bool, extra ...string) func(r *http.Request) bool {
	allowed := []string{extractOrigin(appURL)}
	for _, e := range extra {
		if o := extractOrigin(e); o != "" {
			allowed = append(allowed, o)
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, origin) {
			return true
		}
		if allowLocalhost && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("Feed origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
