// Package notify delivers the new-records digest produced by a sync cycle.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/types"
)

// Subject is the fixed subject of every digest
const Subject = "New Transactions"

// Notification is one digest of new records, grouped by account
type Notification struct {
	RunID     string
	Source    string
	Recipient string
	Accounts  []types.AccountDelta
}

// Notifier delivers a notification
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type payload struct {
	Subject   string               `json:"subject"`
	Recipient string               `json:"recipient"`
	RunID     string               `json:"runId"`
	Source    string               `json:"source"`
	Total     int                  `json:"total"`
	Accounts  []types.AccountDelta `json:"accounts"`
}

// Render returns the notification as indented JSON. Output is stable for
// equal notifications.
func Render(n Notification) ([]byte, error) {
	accounts := n.Accounts
	if accounts == nil {
		accounts = []types.AccountDelta{}
	}

	data, err := json.MarshalIndent(payload{
		Subject:   Subject,
		Recipient: n.Recipient,
		RunID:     n.RunID,
		Source:    n.Source,
		Total:     types.TotalRecords(accounts),
		Accounts:  accounts,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render notification: %w", err)
	}
	return append(data, '\n'), nil
}

// LogNotifier writes one structured log line per account group
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	for _, group := range notification.Accounts {
		n.logger.WithFields(map[string]interface{}{
			"run_id":     notification.RunID,
			"source":     notification.Source,
			"recipient":  notification.Recipient,
			"account_id": group.AccountID,
			"records":    len(group.Records),
		}).Info(Subject)
	}
	return nil
}

// WebhookNotifier POSTs the rendered digest to a URL
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify implements Notifier
func (n *WebhookNotifier) Notify(ctx context.Context, notification Notification) error {
	body, err := Render(notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", n.url, resp.StatusCode)
	}
	return nil
}
