package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 512

// DeliveryError reports a webhook response other than 200 OK.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// Client sends Slack webhook notifications.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// NewClient creates a new webhook client.
func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify posts msg as JSON. Only HTTP 200 counts as delivered.
func (c *Client) Notify(ctx context.Context, msg models.SlackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	slog.Info("calling webhook", "url_prefix", prefix(c.webhookURL, 15))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook HTTP error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	// Drain the rest to allow connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	slog.Info("webhook notification sent", "attachments", len(msg.Attachments))
	return nil
}

// prefix keeps the secret part of a webhook URL out of the logs.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
