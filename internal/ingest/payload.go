// Package ingest turns authenticated webhook deliveries into ledger upserts
// and live updates.
package ingest

import (
	"encoding/json"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
)

// Payload is the tagged variant of an EventSub delivery body: either a
// subscription-verification challenge or a gift notification. Unrecognized
// shapes are rejected at the boundary before any field access.
type Payload interface{ isPayload() }

// ChallengePayload is the handshake sent when a subscription is registered.
// The challenge value must be echoed back verbatim.
type ChallengePayload struct {
	Challenge string
}

func (ChallengePayload) isPayload() {}

// NotificationPayload carries a normalized gift-subscription event.
type NotificationPayload struct {
	Event domain.GiftEvent
}

func (NotificationPayload) isPayload() {}

// Envelope is a parsed delivery: the payload variant plus the tenant the
// delivery belongs to, taken from the subscription condition.
type Envelope struct {
	TenantID string
	Payload  Payload
}

// ParseEnvelope validates and branches on the body shape. Anything that is
// neither a challenge nor a notification is a *MalformedEventError.
func ParseEnvelope(body []byte) (Envelope, error) {
	var raw struct {
		Challenge    string `json:"challenge"`
		Subscription *struct {
			Condition struct {
				BroadcasterUserID string `json:"broadcaster_user_id"`
			} `json:"condition"`
		} `json:"subscription"`
		Event *struct {
			UserID   string `json:"user_id"`
			UserName string `json:"user_name"`
			Total    int    `json:"total"`
		} `json:"event"`
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, &domain.MalformedEventError{Reason: "body is not valid JSON"}
	}

	env := Envelope{}
	if raw.Subscription != nil {
		env.TenantID = raw.Subscription.Condition.BroadcasterUserID
	}

	switch {
	case raw.Challenge != "":
		env.Payload = ChallengePayload{Challenge: raw.Challenge}
	case raw.Event != nil:
		if raw.Event.UserID == "" {
			return Envelope{}, &domain.MalformedEventError{Reason: "event is missing user_id"}
		}
		if env.TenantID == "" {
			return Envelope{}, &domain.MalformedEventError{Reason: "notification is missing broadcaster condition"}
		}
		env.Payload = NotificationPayload{Event: domain.GiftEvent{
			UserID:   raw.Event.UserID,
			UserName: raw.Event.UserName,
			Total:    raw.Event.Total,
		}}
	default:
		return Envelope{}, &domain.MalformedEventError{Reason: "neither challenge nor event present"}
	}

	return env, nil
}
