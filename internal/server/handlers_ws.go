package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// newCheckOrigin returns the origin policy for overlay connections. It allows
// empty origins (non-browser clients), obs:// origins (OBS browser sources),
// and the app's own origin derived from domainName. When isDevelopment is
// true, localhost origins are additionally allowed.
func newCheckOrigin(domainName string, isDevelopment bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(domainName)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if strings.HasPrefix(origin, "obs://") {
			return true
		}

		if origin == appOrigin {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
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
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// handleWebSocket upgrades overlay clients and registers them for gifter
// updates. The tenant comes from the broadcaster query parameter so overlays
// can connect without a browser session; logged-in broadcasters fall back to
// their session identity.
func (s *Server) handleWebSocket(c echo.Context) error {
	tenantID := c.QueryParam("broadcaster")
	if tenantID == "" {
		_, tenantID = s.sessionIdentity(c)
	}
	if tenantID == "" {
		return c.NoContent(http.StatusUnauthorized)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "tenant_id", tenantID, "error", err)
		return nil
	}

	if err := s.hub.Register(tenantID, conn); err != nil {
		slog.Warn("Rejected WebSocket client", "tenant_id", tenantID, "error", err)
		conn.Close()
		return nil
	}

	// Drain reads until the client goes away. Writes happen in the hub.
	go func() {
		defer s.hub.Unregister(tenantID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}
