package twitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testWebhookSecret = "test-webhook-secret-1234567890"

func TestVerify(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	messageID := "msg-1"
	timestamp := "2026-08-25T12:00:00Z"
	body := []byte(`{"challenge":"pong"}`)
	valid := verifier.ComputeSignature(messageID, timestamp, body)

	t.Run("correct signature verifies", func(t *testing.T) {
		assert.True(t, verifier.Verify(messageID, timestamp, body, valid))
	})

	t.Run("mutated body is rejected", func(t *testing.T) {
		tampered := []byte(`{"challenge":"ping"}`)
		assert.False(t, verifier.Verify(messageID, timestamp, tampered, valid))
	})

	t.Run("mutated message id is rejected", func(t *testing.T) {
		assert.False(t, verifier.Verify("msg-2", timestamp, body, valid))
	})

	t.Run("mutated timestamp is rejected", func(t *testing.T) {
		assert.False(t, verifier.Verify(messageID, "2026-08-25T12:00:01Z", body, valid))
	})

	t.Run("single-character signature mutation is rejected", func(t *testing.T) {
		mutated := []byte(valid)
		last := len(mutated) - 1
		if mutated[last] == '0' {
			mutated[last] = '1'
		} else {
			mutated[last] = '0'
		}
		assert.False(t, verifier.Verify(messageID, timestamp, body, string(mutated)))
	})

	t.Run("missing envelope parts are rejected", func(t *testing.T) {
		assert.False(t, verifier.Verify("", timestamp, body, valid))
		assert.False(t, verifier.Verify(messageID, "", body, valid))
		assert.False(t, verifier.Verify(messageID, timestamp, body, ""))
	})

	t.Run("signature from a different secret is rejected", func(t *testing.T) {
		other := NewVerifier("another-secret-0987654321")
		forged := other.ComputeSignature(messageID, timestamp, body)
		assert.False(t, verifier.Verify(messageID, timestamp, body, forged))
	})
}

func TestComputeSignaturePrefix(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)
	sig := verifier.ComputeSignature("msg-1", "ts", nil)
	assert.Contains(t, sig, "sha256=")
	assert.Len(t, sig, len("sha256=")+64)
}
