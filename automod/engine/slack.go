package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tgwarden/warden/automod/event"
)

// Posts ban notifications to a slack channel.
type SlackNotifier struct {
	SlackWebhookURL string
	// defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendAction(ctx context.Context, evt *event.InboundEvent, act *Action) error {
	if act.Kind != ActionBan {
		return nil
	}
	msg := slackBody("⚠️ Sender Banned ⚠️\n", evt, act)
	notificationCount.WithLabelValues("slack").Inc()
	return n.sendSlackMsg(ctx, msg)
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(header string, evt *event.InboundEvent, act *Action) string {
	msg := header
	msg += fmt.Sprintf("sender `%s`", evt.Sender)
	if evt.SenderHandle != "" {
		msg += fmt.Sprintf(" / `@%s`", evt.SenderHandle)
	}
	msg += fmt.Sprintf(" in chat `%d`\n", evt.ChatID)
	msg += fmt.Sprintf("Exceeded %s quota\n", act.Violation)
	return msg
}
