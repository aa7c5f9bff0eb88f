package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/brandondunbar/GiftSubTracker/internal/platform/logging"
)

// Outcome is the result of handling one delivery. Exactly one field is set.
type Outcome struct {
	// Challenge is the value to echo back verbatim, if the delivery was a
	// subscription verification.
	Challenge string

	// Update is the ledger state after a handled notification.
	Update *domain.GifterUpdate
}

// Handler processes parsed webhook deliveries: it resolves the tenant ledger,
// performs the idempotent upsert, and notifies the live-update transport.
type Handler struct {
	registry  domain.LedgerResolver
	publisher domain.UpdatePublisher
}

func NewHandler(registry domain.LedgerResolver, publisher domain.UpdatePublisher) *Handler {
	return &Handler{registry: registry, publisher: publisher}
}

// Handle dispatches on the payload variant. Challenges never touch a ledger.
// For notifications, the incoming total replaces the stored gifted_subs value
// (platform totals are cumulative-to-date) while rewards_given is preserved,
// or initialized to 0 for a first-seen gifter.
func (h *Handler) Handle(ctx context.Context, tenantID string, payload Payload) (Outcome, error) {
	switch p := payload.(type) {
	case ChallengePayload:
		return Outcome{Challenge: p.Challenge}, nil
	case NotificationPayload:
		return h.handleNotification(ctx, tenantID, p.Event)
	default:
		return Outcome{}, &domain.MalformedEventError{Reason: fmt.Sprintf("unknown payload variant %T", payload)}
	}
}

func (h *Handler) handleNotification(ctx context.Context, tenantID string, event domain.GiftEvent) (Outcome, error) {
	ledger, err := h.registry.Resolve(ctx, tenantID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve ledger for tenant %s: %w", tenantID, err)
	}

	rewards := 0
	existing, err := ledger.FindRow(ctx, domain.ColUserID, event.UserID)
	switch {
	case err == nil:
		rewards = parseCount(existing.Cells[domain.ColRewardsGiven])
	case errors.Is(err, domain.ErrRowNotFound):
		// first event from this gifter
	default:
		return Outcome{}, fmt.Errorf("failed to look up gifter %s: %w", event.UserID, err)
	}

	update := domain.GifterUpdate{
		UserID:       event.UserID,
		UserName:     event.UserName,
		GiftedSubs:   event.Total,
		RewardsGiven: rewards,
	}

	// Transport delivery is best-effort; its failure never fails the webhook.
	if h.publisher != nil {
		h.publisher.PublishGifterUpdate(tenantID, update)
	}

	err = ledger.Upsert(ctx, map[string]string{
		domain.ColUserID:       event.UserID,
		domain.ColUserName:     event.UserName,
		domain.ColGiftedSubs:   strconv.Itoa(event.Total),
		domain.ColRewardsGiven: strconv.Itoa(rewards),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to upsert gifter %s: %w", event.UserID, err)
	}

	logging.WithGifter(event.UserID).Info("Gift subscription recorded", "tenant_id", tenantID, "gifted_subs", event.Total)
	return Outcome{Update: &update}, nil
}

// parseCount reads a stored counter cell, treating anything unreadable as 0.
func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
