// Package twitch talks to the Twitch identity provider and EventSub API, and
// authenticates inbound EventSub webhook deliveries.
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
)

const (
	requestTimeout = 5 * time.Second

	giftSubEventType = "channel.subscription.gift"
	authScope        = "channel:read:subscriptions"
)

// Endpoints holds the Twitch API URLs. Overridable for tests.
type Endpoints struct {
	Authorize string
	Token     string
	Validate  string
	Users     string
	EventSub  string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Authorize: "https://id.twitch.tv/oauth2/authorize",
		Token:     "https://id.twitch.tv/oauth2/token",
		Validate:  "https://id.twitch.tv/oauth2/validate",
		Users:     "https://api.twitch.tv/helix/users",
		EventSub:  "https://api.twitch.tv/helix/eventsub/subscriptions",
	}
}

// Identity manages the app access token and the per-broadcaster authorization
// handshake: code exchange, identity resolution, and EventSub registration.
// It holds no per-user session state; user tokens are passed in by callers.
type Identity struct {
	clientID      string
	clientSecret  string
	callbackURL   string
	webhookSecret string
	endpoints     Endpoints
	httpClient    *http.Client

	appToken string
}

// NewIdentity obtains an app access token via the client-credentials grant.
// No app-level operation can proceed without it, so failure here is fatal.
func NewIdentity(ctx context.Context, clientID, clientSecret, callbackURL, webhookSecret string, endpoints Endpoints) (*Identity, error) {
	id := &Identity{
		clientID:      clientID,
		clientSecret:  clientSecret,
		callbackURL:   callbackURL,
		webhookSecret: webhookSecret,
		endpoints:     endpoints,
		httpClient:    &http.Client{Timeout: requestTimeout},
	}

	token, err := id.fetchAppAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get app access token: %w", err)
	}
	id.appToken = token

	return id, nil
}

func (id *Identity) fetchAppAccessToken(ctx context.Context) (string, error) {
	data := url.Values{}
	data.Set("client_id", id.clientID)
	data.Set("client_secret", id.clientSecret)
	data.Set("grant_type", "client_credentials")

	resp, err := id.do(ctx, http.MethodPost, id.endpoints.Token, nil, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return result.AccessToken, nil
}

// IsAccessTokenValid checks a user token against the validation endpoint.
// Any network failure counts as invalid.
func (id *Identity) IsAccessTokenValid(ctx context.Context, token string) bool {
	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := id.do(ctx, http.MethodGet, id.endpoints.Validate, headers, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// AuthURL builds the authorization redirect URL. Pure, no network call. The
// state value is round-tripped by Twitch and checked on the callback.
func (id *Identity) AuthURL(state string) string {
	params := url.Values{}
	params.Set("client_id", id.clientID)
	params.Set("redirect_uri", id.callbackURL)
	params.Set("response_type", "code")
	params.Set("scope", authScope)
	params.Set("state", state)
	return id.endpoints.Authorize + "?" + params.Encode()
}

// ExchangeCode swaps a one-time authorization code for a user access token.
// Codes are single-use: a reuse after a prior success surfaces as *AuthError.
func (id *Identity) ExchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{}
	data.Set("client_id", id.clientID)
	data.Set("client_secret", id.clientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", id.callbackURL)

	resp, err := id.do(ctx, http.MethodPost, id.endpoints.Token, nil, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &domain.AuthError{Description: upstreamMessage(resp)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &domain.AuthError{Description: "unreadable token response", Cause: err}
	}
	return result.AccessToken, nil
}

// BroadcasterID resolves the authenticated user's login, then looks up that
// login's numeric identity.
func (id *Identity) BroadcasterID(ctx context.Context, userToken string) (string, error) {
	login, err := id.userLogin(ctx, userToken)
	if err != nil {
		return "", err
	}

	headers := map[string]string{
		"Client-Id":     id.clientID,
		"Authorization": "Bearer " + userToken,
	}
	resp, err := id.do(ctx, http.MethodGet, id.endpoints.Users+"?login="+url.QueryEscape(login), headers, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("users endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode users response: %w", err)
	}
	if len(result.Data) == 0 {
		return "", &domain.IdentityError{Login: login}
	}
	return result.Data[0].ID, nil
}

func (id *Identity) userLogin(ctx context.Context, userToken string) (string, error) {
	headers := map[string]string{
		"Client-Id":     id.clientID,
		"Authorization": "Bearer " + userToken,
	}
	resp, err := id.do(ctx, http.MethodGet, id.endpoints.Users, headers, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("users endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Login string `json:"login"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode users response: %w", err)
	}
	if len(result.Data) == 0 {
		return "", &domain.IdentityError{}
	}
	return result.Data[0].Login, nil
}

// SubscribeGiftEvents registers the channel.subscription.gift EventSub
// subscription with webhook transport. Re-registration for the same
// broadcaster is accepted or harmlessly rejected upstream; any non-success
// status is returned for the caller to log, never treated as fatal to the
// authorization flow.
func (id *Identity) SubscribeGiftEvents(ctx context.Context, broadcasterID string) error {
	payload := map[string]any{
		"type":    giftSubEventType,
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": broadcasterID,
		},
		"transport": map[string]string{
			"method":   "webhook",
			"callback": id.callbackURL,
			"secret":   id.webhookSecret,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription payload: %w", err)
	}

	headers := map[string]string{
		"Client-Id":     id.clientID,
		"Authorization": "Bearer " + id.appToken,
		"Content-Type":  "application/json",
	}
	resp, err := id.do(ctx, http.MethodPost, id.endpoints.EventSub, headers, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("eventsub subscription failed with status %d: %s", resp.StatusCode, upstreamMessage(resp))
	}

	slog.Info("EventSub subscription registered", "broadcaster_user_id", broadcasterID, "type", giftSubEventType)
	return nil
}

// HandleAuthorized runs the post-redirect handshake: code exchange, identity
// resolution, and EventSub registration. A subscription failure is logged but
// does not abort the flow.
func (id *Identity) HandleAuthorized(ctx context.Context, code string) (accessToken, broadcasterID string, err error) {
	accessToken, err = id.ExchangeCode(ctx, code)
	if err != nil {
		return "", "", err
	}

	broadcasterID, err = id.BroadcasterID(ctx, accessToken)
	if err != nil {
		return "", "", err
	}

	if subErr := id.SubscribeGiftEvents(ctx, broadcasterID); subErr != nil {
		slog.Error("EventSub subscription failed", "broadcaster_user_id", broadcasterID, "error", subErr)
	}

	return accessToken, broadcasterID, nil
}

// do is the single outbound request wrapper: one attempt, fixed timeout, no
// retry. Failures are logged and wrapped in ErrUpstreamUnavailable.
func (id *Identity) do(ctx context.Context, method, rawURL string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil && headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := id.httpClient.Do(req)
	if err != nil {
		slog.Error("Twitch request failed", "method", method, "url", rawURL, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamUnavailable, method, rawURL, err)
	}
	return resp, nil
}

// upstreamMessage extracts the error description Twitch returns, falling back
// to the raw body.
func upstreamMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(raw)
}
