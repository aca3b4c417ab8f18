package events

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// SubscriptionClient handles UPnP GENA subscription requests.
type SubscriptionClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewSubscriptionClient creates a new subscription client.
func NewSubscriptionClient(timeout time.Duration) *SubscriptionClient {
	return &SubscriptionClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Subscribe sends a SUBSCRIBE request to a Sonos device.
// Returns the subscription ID (SID) and granted timeout on success.
func (c *SubscriptionClient) Subscribe(ctx context.Context, host, servicePath, callbackURL string, timeout time.Duration) (sid string, granted time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventURL(host, servicePath), nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("CALLBACK", fmt.Sprintf("<%s>", callbackURL))
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", timeoutHeader(timeout))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("subscribe request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("subscribe failed: %s", resp.Status)
	}

	sid = ParseSID(resp.Header.Get("SID"))
	if sid == "" {
		return "", 0, fmt.Errorf("no SID in response")
	}
	return sid, ParseTimeout(resp.Header.Get("TIMEOUT")), nil
}

// Renew sends a subscription renewal request.
func (c *SubscriptionClient) Renew(ctx context.Context, host, servicePath, sid string, timeout time.Duration) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventURL(host, servicePath), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	// No CALLBACK or NT for renewals
	req.Header.Set("SID", sid)
	req.Header.Set("TIMEOUT", timeoutHeader(timeout))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("renew request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusPreconditionFailed {
		return 0, ErrSubscriptionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("renew failed: %s", resp.Status)
	}
	return ParseTimeout(resp.Header.Get("TIMEOUT")), nil
}

// Unsubscribe sends an UNSUBSCRIBE request to a Sonos device.
// A subscription the device no longer knows (HTTP 412) counts as removed.
func (c *SubscriptionClient) Unsubscribe(ctx context.Context, host, servicePath, sid string) error {
	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", eventURL(host, servicePath), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("SID", sid)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unsubscribe request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unsubscribe failed: %s", resp.Status)
	}
	return nil
}

func eventURL(host, servicePath string) string {
	return fmt.Sprintf("http://%s%s", soap.HostPort(host), servicePath)
}

func timeoutHeader(timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return fmt.Sprintf("Second-%d", int(timeout/time.Second))
}
