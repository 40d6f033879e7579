package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listDefinitions = `
automations:
  - id: overdue-reminder
    name: Overdue reminder
    owner_id: u1
    scope: tasks
    trigger:
      type: event
      event_name: task.due_soon
      event_filter:
        days_remaining:
          $lte: 2
    actions:
      - id: notify
        type: notify
        config:
          message: "{{title}} is due in {{days_remaining}} days"
  - name: Weekday digest
    owner_id: u1
    trigger:
      type: schedule
      cron_expression: "0 9 * * 1-5"
    actions:
      - type: email
        config:
          to: team@example.com
        max_retries: 2
`

const singleDefinition = `
name: Close stale
owner_id: u2
trigger:
  type: manual
actions:
  - type: update
    target_scope: tasks
    target_module: board
    data_template:
      status: closed
`

func TestParseDefinitions_List(t *testing.T) {
	got, err := ParseDefinitions([]byte(listDefinitions))
	require.NoError(t, err)
	require.Len(t, got, 2)

	reminder := got[0]
	assert.Equal(t, "overdue-reminder", reminder.ID)
	assert.Equal(t, TriggerEvent, reminder.Trigger.Type)
	assert.Equal(t, StatusActive, reminder.Status)
	assert.Equal(t, "UTC", reminder.Trigger.Timezone)

	// YAML integers are normalised so filters behave as with JSON input.
	assert.True(t, MatchesFilter(map[string]any{"days_remaining": float64(1)}, reminder.Trigger.EventFilter))
	assert.False(t, MatchesFilter(map[string]any{"days_remaining": float64(3)}, reminder.Trigger.EventFilter))

	digest := got[1]
	assert.NotEmpty(t, digest.ID)
	assert.Equal(t, "0 9 * * 1-5", digest.Trigger.CronExpression)
	assert.Equal(t, 2, digest.Actions[0].MaxRetries)
	assert.Equal(t, DefaultRetryDelaySeconds, digest.Actions[0].RetryDelaySeconds)
}

func TestParseDefinitions_Single(t *testing.T) {
	got, err := ParseDefinitions([]byte(singleDefinition))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Close stale", got[0].Name)
	assert.Equal(t, map[string]any{"status": "closed"}, got[0].Actions[0].DataTemplate)
}

func TestParseDefinitions_ExplicitZeroRetryDelay(t *testing.T) {
	got, err := ParseDefinitions([]byte(`
name: Immediate retry
owner_id: u1
trigger:
  type: manual
actions:
  - id: ping
    type: webhook
    retry_delay_seconds: 0
  - id: notify
    type: notify
`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Actions[0].RetryDelaySeconds)
	assert.Equal(t, DefaultRetryDelaySeconds, got[0].Actions[1].RetryDelaySeconds)
	assert.Equal(t, DefaultMaxRetries, got[0].Actions[0].MaxRetries)
}

func TestParseDefinitions_Errors(t *testing.T) {
	_, err := ParseDefinitions([]byte("name: [unterminated"))
	assert.Error(t, err)

	_, err = ParseDefinitions([]byte("name: No owner\ntrigger:\n  type: manual\n"))
	assert.ErrorIs(t, err, ErrInvalidAutomation)

	_, err = ParseDefinitions([]byte("name: Typo\nowner_id: u1\ntriger:\n  type: manual\n"))
	assert.Error(t, err, "unknown fields are rejected")

	got, err := ParseDefinitions(nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(singleDefinition), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte(listDefinitions), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	got, err := LoadDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "overdue-reminder", got[0].ID, "files load in name order")
	assert.Equal(t, "Close stale", got[2].Name)

	missing, err := LoadDefinitions(filepath.Join(dir, "absent"))
	assert.NoError(t, err)
	assert.Empty(t, missing)
}
