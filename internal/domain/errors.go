package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstreamUnavailable signals a network or timeout failure talking to
	// the identity provider or the ledger store. Never retried automatically.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUnauthenticatedRequest signals a webhook signature mismatch.
	ErrUnauthenticatedRequest = errors.New("unauthenticated request")

	// ErrRowNotFound signals that no row matched a ledger lookup.
	ErrRowNotFound = errors.New("row not found")
)

// AuthError is a token exchange or validation failure. It carries the
// upstream error description so the interactive caller can show it.
type AuthError struct {
	Description string
	Cause       error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth failed: %s: %v", e.Description, e.Cause)
	}
	return fmt.Sprintf("auth failed: %s", e.Description)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// IdentityError means the platform reported no matching identity for a login.
type IdentityError struct {
	Login string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("no broadcaster found with login %q", e.Login)
}

// SchemaError means a sheet's header row does not match the declared schema,
// or an upsert supplied a column set different from the schema. Fatal for
// that store instance, never silently coerced.
type SchemaError struct {
	Expected []string
	Got      []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("sheet schema mismatch: expected [%s], got [%s]",
		strings.Join(e.Expected, ", "), strings.Join(e.Got, ", "))
}

// MalformedEventError means a webhook payload had an unrecognized shape.
// Logged and acknowledged upstream, never applied to a ledger.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event payload: %s", e.Reason)
}
