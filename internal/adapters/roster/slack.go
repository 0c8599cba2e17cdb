package roster

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

// SlackNotifier posts roster messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier returns a notifier for webhookURL. A nil client uses
// http.DefaultClient.
func NewSlackNotifier(webhookURL string, client *http.Client) *SlackNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackNotifier{webhookURL: webhookURL, client: client}
}

// Enabled reports whether a webhook is configured.
func (n *SlackNotifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

// Post sends the share text of a roster. WhatsApp and Slack mrkdwn share the
// *bold* and _italic_ markers, so the text is sent unchanged.
func (n *SlackNotifier) Post(ctx context.Context, share Share) error {
	if !n.Enabled() {
		return fmt.Errorf("slack webhook not configured")
	}
	msg := &slack.WebhookMessage{Text: share.Text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}
