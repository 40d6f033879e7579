package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/flowline-core/internal/automation"
)

func TestNotifyHandler_PublishesToChannelTopic(t *testing.T) {
	pub := &mockPublisher{}
	h := NewNotifyHandler(pub, NotifyConfig{})
	h.now = func() time.Time { return time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC) }

	action := automation.Action{
		ID:   "notify",
		Type: automation.ActionNotify,
		Config: map[string]any{
			"title":   "Task created",
			"message": "{{task.title}} was created",
			"channel": "ops",
		},
	}
	res, err := h.Execute(context.Background(), action, execContext(map[string]any{
		"task": map[string]any{"title": "Fix login"},
	}))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"mqtt"}, res["delivered"])

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "flowline/notify/ops", pub.msgs[0].topic)

	var n Notification
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &n))
	assert.Equal(t, "Fix login was created", n.Message)
	assert.Equal(t, "auto-1", n.AutomationID)
	assert.Equal(t, "notify", n.ActionID)
}

func TestNotifyHandler_ChannelDefaultsToScope(t *testing.T) {
	pub := &mockPublisher{}
	h := NewNotifyHandler(pub, NotifyConfig{TopicPrefix: "acme/notify"})

	action := automation.Action{Type: automation.ActionNotify, TargetScope: "crm", Config: map[string]any{"message": "hi"}}
	_, err := h.Execute(context.Background(), action, execContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "acme/notify/crm", pub.msgs[0].topic)
}

func TestNotifyHandler_Errors(t *testing.T) {
	action := automation.Action{Type: automation.ActionNotify, Config: map[string]any{"message": "hi"}}

	_, err := NewNotifyHandler(nil, NotifyConfig{}).Execute(context.Background(), action, execContext(nil))
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewNotifyHandler(&mockPublisher{}, NotifyConfig{}).Execute(context.Background(),
		automation.Action{Type: automation.ActionNotify}, execContext(nil))
	assert.ErrorIs(t, err, ErrMissingConfig)

	boom := errors.New("broker down")
	_, err = NewNotifyHandler(&mockPublisher{err: boom}, NotifyConfig{}).Execute(context.Background(), action, execContext(nil))
	assert.ErrorIs(t, err, boom)
}

func TestNotifyHandler_Slack(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewNotifyHandler(nil, NotifyConfig{SlackWebhookURL: srv.URL})
	action := automation.Action{
		Type:   automation.ActionNotify,
		Config: map[string]any{"title": "Alert", "message": "disk full", "slack": true},
	}
	res, err := h.Execute(context.Background(), action, execContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"slack"}, res["delivered"])
	assert.Equal(t, "*Alert*\ndisk full", body["text"])
}

func TestNotifyHandler_SlackFailureAfterPublishIsPartialDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := &mockPublisher{}
	h := NewNotifyHandler(pub, NotifyConfig{SlackWebhookURL: srv.URL})
	action := automation.Action{
		Type:   automation.ActionNotify,
		Config: map[string]any{"message": "disk full", "channel": "ops", "slack": true},
	}

	res, err := h.Execute(context.Background(), action, execContext(nil))
	require.NoError(t, err)
	assert.True(t, res.Succeeded(), "published notification is not retried")
	assert.Equal(t, []string{"mqtt"}, res["delivered"])
	assert.Contains(t, res["slack_error"], "posting slack notification")
	assert.Len(t, pub.msgs, 1)
}

func TestNotifyHandler_SlackOnlyFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewNotifyHandler(nil, NotifyConfig{SlackWebhookURL: srv.URL})
	action := automation.Action{
		Type:   automation.ActionNotify,
		Config: map[string]any{"message": "disk full", "slack": true},
	}

	_, err := h.Execute(context.Background(), action, execContext(nil))
	assert.ErrorContains(t, err, "posting slack notification")
}
