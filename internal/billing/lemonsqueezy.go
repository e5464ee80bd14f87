package billing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.lemonsqueezy.com"

// Canceller is the outbound side of duplicate-subscription suppression.
// Injected into the reconciler so tests can count cancellation calls.
type Canceller interface {
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}

// LemonSqueezyClient issues authenticated calls against the Lemon Squeezy
// API. Only subscription cancellation is needed here.
type LemonSqueezyClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

func NewLemonSqueezyClient(apiURL, apiKey string) *LemonSqueezyClient {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &LemonSqueezyClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CancelSubscription cancels a provider-side subscription. Lemon Squeezy
// treats DELETE on a subscription as "cancel at period end", which is exactly
// the duplicate-suppression semantic we want.
func (c *LemonSqueezyClient) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	if c.apiKey == "" {
		return fmt.Errorf("lemonsqueezy api key not configured")
	}

	url := c.apiURL + "/v1/subscriptions/" + providerSubscriptionID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build cancellation request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cancellation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cancellation rejected: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
