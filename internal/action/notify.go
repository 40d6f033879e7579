package action

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// DefaultNotifyTopicPrefix is the MQTT topic prefix for notifications.
const DefaultNotifyTopicPrefix = "flowline/notify"

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// NotifyConfig configures the notify handler.
type NotifyConfig struct {
	TopicPrefix     string
	SlackWebhookURL string
}

// Notification is the payload published for a notify action.
type Notification struct {
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Channel      string    `json:"channel"`
	Level        string    `json:"level,omitempty"`
	AutomationID string    `json:"automation_id,omitempty"`
	ActionID     string    `json:"action_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// NotifyHandler publishes notifications over MQTT and optionally to Slack.
type NotifyHandler struct {
	publisher  Publisher
	cfg        NotifyConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewNotifyHandler creates a notify handler. publisher may be nil when
// only Slack delivery is configured.
func NewNotifyHandler(publisher Publisher, cfg NotifyConfig) *NotifyHandler {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultNotifyTopicPrefix
	}
	return &NotifyHandler{
		publisher:  publisher,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Execute implements automation.ActionHandler.
//
// Config keys: title, message, channel (defaults to target_scope), level,
// slack (bool).
//
// A Slack failure after a successful MQTT publish is reported in
// slack_error on a successful result.
func (h *NotifyHandler) Execute(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	message, err := requireString(action, "message", execCtx)
	if err != nil {
		return nil, err
	}

	channel := configString(action, "channel", execCtx)
	if channel == "" {
		channel = targetScope(action, execCtx)
	}
	if channel == "" {
		channel = "general"
	}

	n := Notification{
		Title:     configString(action, "title", execCtx),
		Message:   message,
		Channel:   channel,
		Level:     configString(action, "level", execCtx),
		ActionID:  action.ID,
		Timestamp: h.now().UTC(),
	}
	n.AutomationID, _ = automation.ResolvePath("automation.id", execCtx).(string)

	wantSlack := configBool(action, "slack")
	if h.publisher == nil && !(wantSlack && h.cfg.SlackWebhookURL != "") {
		return nil, fmt.Errorf("%w: notification publisher", ErrNotConfigured)
	}

	delivered := make([]string, 0, 2)

	if h.publisher != nil {
		payload, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("marshalling notification: %w", err)
		}
		topic := h.cfg.TopicPrefix + "/" + channel
		if err := h.publisher.Publish(topic, payload, 1, false); err != nil {
			return nil, fmt.Errorf("publishing notification: %w", err)
		}
		delivered = append(delivered, "mqtt")
	}

	data := map[string]any{"channel": channel}

	if wantSlack && h.cfg.SlackWebhookURL != "" {
		if err := h.postSlack(ctx, n); err != nil {
			// A retry would publish the MQTT notification a second time.
			if len(delivered) == 0 {
				return nil, err
			}
			data["slack_error"] = err.Error()
		} else {
			delivered = append(delivered, "slack")
		}
	}

	data["delivered"] = delivered
	return automation.Success(data), nil
}

func (h *NotifyHandler) postSlack(ctx context.Context, n Notification) error {
	text := n.Message
	if n.Title != "" {
		text = "*" + n.Title + "*\n" + n.Message
	}
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, h.cfg.SlackWebhookURL, h.httpClient, msg); err != nil {
		return fmt.Errorf("posting slack notification: %w", err)
	}
	return nil
}
