package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/brandondunbar/GiftSubTracker/internal/ingest"
	"github.com/labstack/echo/v4"
)

// handleHome renders the gifter table for the logged-in broadcaster. Visitors
// without a valid token see the authorize link instead.
func (s *Server) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	token, broadcasterID := s.sessionIdentity(c)

	authorized := token != "" && s.identity.IsAccessTokenValid(ctx, token)

	var gifters []domain.Row
	if authorized && broadcasterID != "" {
		ledger, err := s.registry.Resolve(ctx, broadcasterID)
		if err != nil {
			slog.Error("Failed to resolve ledger for home page", "tenant_id", broadcasterID, "error", err)
		} else if gifters, err = ledger.Rows(ctx); err != nil {
			slog.Error("Failed to read gifter rows", "tenant_id", broadcasterID, "error", err)
			gifters = nil
		}
	}

	data := map[string]any{
		"Authorized": authorized,
		"Gifters":    gifters,
	}
	return renderTemplate(c, s.indexTemplate, data)
}

// handleGiftedSubs upserts a gifter row from a manual JSON request, using the
// same semantics as a webhook notification.
func (s *Server) handleGiftedSubs(c echo.Context) error {
	_, broadcasterID := s.sessionIdentity(c)
	if broadcasterID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]any{"success": false, "error": "not authorized"})
	}

	var req struct {
		Data struct {
			UserID     string `json:"user_id"`
			UserName   string `json:"user_name"`
			GiftedSubs int    `json:"gifted_subs"`
		} `json:"data"`
	}
	if err := c.Bind(&req); err != nil || req.Data.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
	}

	payload := ingest.NotificationPayload{Event: domain.GiftEvent{
		UserID:   req.Data.UserID,
		UserName: req.Data.UserName,
		Total:    req.Data.GiftedSubs,
	}}
	if _, err := s.ingest.Handle(c.Request().Context(), broadcasterID, payload); err != nil {
		slog.Error("Failed to record gifted subs", "tenant_id", broadcasterID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false})
	}

	s.ledgerMetrics.Upserts.Inc()
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// handleReward increments rewards_given for a gifter and pushes the new state
// to connected viewers.
func (s *Server) handleReward(c echo.Context) error {
	ctx := c.Request().Context()
	_, broadcasterID := s.sessionIdentity(c)
	if broadcasterID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]any{"success": false, "error": "not authorized"})
	}

	userID := c.FormValue("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "user_id is required"})
	}

	ledger, err := s.registry.Resolve(ctx, broadcasterID)
	if err != nil {
		slog.Error("Failed to resolve ledger", "tenant_id", broadcasterID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false})
	}

	row, err := ledger.FindRow(ctx, domain.ColUserID, userID)
	if errors.Is(err, domain.ErrRowNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{"success": false, "error": "unknown user_id"})
	}
	if err != nil {
		slog.Error("Failed to look up gifter", "tenant_id", broadcasterID, "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false})
	}

	rewards := parseCount(row.Cells[domain.ColRewardsGiven]) + 1
	giftedSubs := parseCount(row.Cells[domain.ColGiftedSubs])

	err = ledger.Upsert(ctx, map[string]string{
		domain.ColUserID:       userID,
		domain.ColUserName:     row.Cells[domain.ColUserName],
		domain.ColGiftedSubs:   strconv.Itoa(giftedSubs),
		domain.ColRewardsGiven: strconv.Itoa(rewards),
	})
	if err != nil {
		slog.Error("Failed to update rewards", "tenant_id", broadcasterID, "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false})
	}

	s.ledgerMetrics.Upserts.Inc()
	s.hub.PublishGifterUpdate(broadcasterID, domain.GifterUpdate{
		UserID:       userID,
		UserName:     row.Cells[domain.ColUserName],
		GiftedSubs:   giftedSubs,
		RewardsGiven: rewards,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"new_data": map[string]any{"rewards_given": rewards},
	})
}

func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
