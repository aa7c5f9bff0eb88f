package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/brandondunbar/GiftSubTracker/internal/adapter/twitch"
	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/brandondunbar/GiftSubTracker/internal/ingest"
	"github.com/labstack/echo/v4"
)

const maxWebhookBodyBytes = 1 << 20

// handleWebhookPost receives EventSub deliveries. The signature check runs
// before anything touches the payload; a mismatch is rejected with no detail
// and no side effects. Malformed payloads are acknowledged to avoid
// redelivery storms; ledger failures are not, so Twitch redelivers and the
// idempotent upsert absorbs the repeat.
func (s *Server) handleWebhookPost(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	header := c.Request().Header
	verified := s.verifier.Verify(
		header.Get(twitch.HeaderMessageID),
		header.Get(twitch.HeaderMessageTimestamp),
		body,
		header.Get(twitch.HeaderMessageSignature),
	)
	if !verified {
		s.webhookMetrics.Rejected.Inc()
		slog.Warn("Rejected webhook delivery with invalid signature", "remote", c.RealIP())
		return c.NoContent(http.StatusForbidden)
	}

	envelope, err := ingest.ParseEnvelope(body)
	if err != nil {
		var malformed *domain.MalformedEventError
		if errors.As(err, &malformed) {
			s.webhookMetrics.Malformed.Inc()
			slog.Error("Malformed webhook payload", "reason", malformed.Reason)
			return c.String(http.StatusOK, "OK")
		}
		return c.NoContent(http.StatusBadRequest)
	}

	outcome, err := s.ingest.Handle(c.Request().Context(), envelope.TenantID, envelope.Payload)
	if err != nil {
		slog.Error("Failed to handle webhook delivery", "tenant_id", envelope.TenantID, "error", err)
		return c.NoContent(http.StatusInternalServerError)
	}

	if outcome.Challenge != "" {
		s.webhookMetrics.Deliveries.WithLabelValues("challenge").Inc()
		return c.String(http.StatusOK, outcome.Challenge)
	}

	s.webhookMetrics.Deliveries.WithLabelValues("notification").Inc()
	s.ledgerMetrics.Upserts.Inc()
	return c.String(http.StatusOK, "OK")
}
