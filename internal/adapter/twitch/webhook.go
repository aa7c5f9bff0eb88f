package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// EventSub webhook headers carrying the message envelope.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"

	signaturePrefix = "sha256="
)

// Verifier authenticates inbound webhook deliveries by recomputing the keyed
// digest over the message envelope. Must run before any payload parsing.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify recomputes HMAC-SHA256(secret, messageID ++ timestamp ++ body) and
// compares it to the provided signature in constant time. Returns false on
// any missing envelope part, never an error.
func (v *Verifier) Verify(messageID, timestamp string, body []byte, provided string) bool {
	if messageID == "" || timestamp == "" || provided == "" {
		return false
	}
	expected := v.ComputeSignature(messageID, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// ComputeSignature returns the hex signature with the sha256= prefix.
func (v *Verifier) ComputeSignature(messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
