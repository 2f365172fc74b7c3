// Package slack implements an Escalator sink over a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/checkwatch/checkwatch/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL    string
	Channel       string
	Username      string
	Timeout       time.Duration
	RetryLimit    int
	Client        *http.Client
	SiteURLPrefix string
}

// Client delivers escalation notifications to a Slack webhook.
type Client struct {
	webhookURL    string
	channel       string
	username      string
	retryLimit    int
	siteURLPrefix string
	client        *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL:    webhookURL,
		channel:       strings.TrimSpace(cfg.Channel),
		username:      fallbackString(strings.TrimSpace(cfg.Username), "checkwatch"),
		retryLimit:    retries,
		siteURLPrefix: strings.TrimSpace(cfg.SiteURLPrefix),
		client:        hc,
	}, nil
}

// SendEscalation posts a formatted message to Slack.
func (c *Client) SendEscalation(ctx context.Context, payload notify.EscalationPayload) error {
	msg := c.formatMessage(payload)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			// Simple linear backoff to avoid thundering retries.
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (c *Client) formatMessage(payload notify.EscalationPayload) map[string]any {
	text := strings.Builder{}
	c.writeSlackHeader(&text, payload)
	appendSlackDetails(&text, payload)
	writeSlackTimestamp(&text, payload.LastCheck)

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}

	return drainSlackSuccess(resp)
}

func (c *Client) writeSlackHeader(text *strings.Builder, payload notify.EscalationPayload) {
	if payload.Recovery {
		text.WriteString("*Check recovered*")
	} else {
		text.WriteString("*Check escalation*")
	}
	if payload.Namespace != "" || payload.Name != "" {
		text.WriteByte(' ')
		text.WriteString(c.formatCheckValue(payload.Namespace, payload.Name))
	}
	text.WriteByte('\n')
}

// formatCheckValue renders the namespace/name identifier, hyperlinked to the
// configured site when siteURLPrefix is set.
func (c *Client) formatCheckValue(namespace, name string) string {
	plain := fmt.Sprintf("`%s/%s`", namespace, name)
	link := c.buildCheckLink(namespace, name)
	if link == "" {
		return plain
	}
	return fmt.Sprintf("<%s|%s/%s>", link, namespace, name)
}

func (c *Client) buildCheckLink(namespace, name string) string {
	prefix := strings.TrimSpace(c.siteURLPrefix)
	if prefix == "" {
		return ""
	}

	u, err := url.Parse(prefix)
	if err != nil {
		return ""
	}
	if u.Scheme == "" || u.Host == "" {
		return ""
	}

	link, err := url.JoinPath(u.String(), namespace, name)
	if err != nil {
		return ""
	}

	return link
}

func appendSlackDetails(text *strings.Builder, payload notify.EscalationPayload) {
	fields := []struct {
		label string
		value string
	}{
		{"Severity", fallbackString(payload.Severity, notify.SeverityCritical)},
		{"Status", payload.Status},
		{"Attempt", fmt.Sprintf("%d/%d", payload.Attempt, payload.MaxAttempts)},
		{"Logs", payload.Logs},
	}

	for _, field := range fields {
		appendSlackField(text, field.label, field.value)
	}
}

func drainSlackSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain slack response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain slack response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("read slack error response: %w", readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("read slack error response: %w", readErr)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func writeSlackTimestamp(text *strings.Builder, lastCheck time.Time) {
	if lastCheck.IsZero() {
		lastCheck = time.Now()
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(lastCheck.UTC().Format(time.RFC3339))
}
