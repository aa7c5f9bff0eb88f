package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// handleAuthorize stores a fresh state value in the session and redirects the
// broadcaster to the Twitch authorization URL.
func (s *Server) handleAuthorize(c echo.Context) error {
	state := uuid.NewString()

	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("Failed to save session", "error", err)
		return c.String(http.StatusInternalServerError, "Failed to save session")
	}

	return c.Redirect(http.StatusFound, s.identity.AuthURL(state))
}

// handleOAuthCallback is the GET side of the fixed callback URL: Twitch
// redirects here with either an authorization code or an error description.
func (s *Server) handleOAuthCallback(c echo.Context) error {
	if errName := c.QueryParam("error"); errName != "" {
		msg := fmt.Sprintf("Error: %s: %s", errName, c.QueryParam("error_description"))
		slog.Warn("Authorization denied by Twitch", "error", errName)
		return c.String(http.StatusBadRequest, msg)
	}

	code := c.QueryParam("code")
	if code == "" {
		return c.String(http.StatusBadRequest, `Missing "code" argument.`)
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Warn("Failed to get session, starting a fresh one", "error", err)
	}
	expectedState, _ := session.Values[sessionKeyOAuthState].(string)
	if expectedState == "" || c.QueryParam("state") != expectedState {
		slog.Warn("OAuth state mismatch", "remote", c.RealIP())
		return c.String(http.StatusBadRequest, "Invalid state parameter.")
	}
	delete(session.Values, sessionKeyOAuthState)

	token, broadcasterID, err := s.identity.HandleAuthorized(c.Request().Context(), code)
	if err != nil {
		var authErr *domain.AuthError
		var identityErr *domain.IdentityError
		switch {
		case errors.As(err, &authErr):
			slog.Error("Token exchange failed", "error", authErr)
			return c.String(http.StatusUnauthorized, fmt.Sprintf("Error: %s", authErr.Description))
		case errors.As(err, &identityErr):
			slog.Error("Identity resolution failed", "error", identityErr)
			return c.String(http.StatusBadRequest, identityErr.Error())
		default:
			slog.Error("Authorization handshake failed", "error", err)
			return c.String(http.StatusBadGateway, "Failed to authenticate with Twitch")
		}
	}

	session.Values[sessionKeyToken] = token
	session.Values[sessionKeyBroadcaster] = broadcasterID
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("Failed to save session", "error", err)
		return c.String(http.StatusInternalServerError, "Failed to save session")
	}

	return c.Redirect(http.StatusFound, "/")
}

// sessionIdentity returns the stored access token and broadcaster id, empty
// strings when the visitor has no session.
func (s *Server) sessionIdentity(c echo.Context) (token, broadcasterID string) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return "", ""
	}
	token, _ = session.Values[sessionKeyToken].(string)
	broadcasterID, _ = session.Values[sessionKeyBroadcaster].(string)
	return token, broadcasterID
}
