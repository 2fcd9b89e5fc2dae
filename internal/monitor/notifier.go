/*

Exit intent delivery. The monitor decides, a collaborator executes: intents
leave the engine through this interface and nothing here ever signs or sends
a transaction.

*/

package monitor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/solyield/sentinel/internal/logger"
	"github.com/solyield/sentinel/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IntentNotifier delivers exit intents to the execution service.
type IntentNotifier interface {
	Notify(ctx context.Context, intent types.ExitIntent) error
}

// WebhookNotifier POSTs intents to a configured URL with bounded retries.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier builds a notifier for the given webhook URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var webhookLogger = logger.GetForComponent("exit_webhook")

// Notify delivers one intent. Delivery failures are returned to the caller;
// the monitor logs them and moves on, relying on the next tick to re-fire
// the rule if the condition persists.
func (n *WebhookNotifier) Notify(ctx context.Context, intent types.ExitIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal exit intent: %w", err)
	}

	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return struct{}{}, backoff.Permanent(fmt.Errorf("webhook rejected intent: %d", resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return struct{}{}, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return fmt.Errorf("failed to deliver exit intent for position %s: %w", intent.PositionID, err)
	}

	webhookLogger.Info().
		Str("position_id", intent.PositionID).
		Str("reason", string(intent.Reason)).
		Msg("Delivered exit intent")
	return nil
}

// LogNotifier is the no-webhook fallback: intents are logged and counted
// but leave the process only through the metrics endpoint.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, intent types.ExitIntent) error {
	webhookLogger.Warn().
		Str("position_id", intent.PositionID).
		Str("reason", string(intent.Reason)).
		Str("detail", intent.Detail).
		Msg("Exit intent emitted (no webhook configured)")
	return nil
}
