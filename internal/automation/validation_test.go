package automation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateAutomation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Automation)
		wantErr error
	}{
		{"valid", func(*Automation) {}, nil},
		{"blank name", func(a *Automation) { a.Name = "  " }, ErrInvalidName},
		{"long name", func(a *Automation) { a.Name = strings.Repeat("x", maxNameLength+1) }, ErrInvalidName},
		{"missing owner", func(a *Automation) { a.OwnerID = "" }, ErrInvalidAutomation},
		{"bad status", func(a *Automation) { a.Status = "sleeping" }, ErrInvalidStatus},
		{"bad trigger type", func(a *Automation) { a.Trigger.Type = "telepathy" }, ErrInvalidTrigger},
		{"bad timezone", func(a *Automation) { a.Trigger.Timezone = "Mars/Olympus" }, ErrInvalidTrigger},
		{"event without name is allowed", func(a *Automation) { a.Trigger.EventName = "" }, nil},
		{"schedule needs five fields", func(a *Automation) {
			a.Trigger = Trigger{Type: TriggerSchedule, CronExpression: "0 20 * *", Timezone: "UTC"}
		}, ErrInvalidTrigger},
		{"schedule with range is allowed", func(a *Automation) {
			a.Trigger = Trigger{Type: TriggerSchedule, CronExpression: "0 9 * * 1-5", Timezone: "UTC"}
		}, nil},
		{"condition needs expression", func(a *Automation) {
			a.Trigger = Trigger{Type: TriggerCondition, Timezone: "UTC"}
		}, ErrInvalidTrigger},
		{"bad action type", func(a *Automation) { a.Actions[0].Type = "teleport" }, ErrInvalidAction},
		{"zero retries", func(a *Automation) { a.Actions[0].MaxRetries = 0 }, ErrInvalidAction},
		{"too many retries", func(a *Automation) { a.Actions[0].MaxRetries = 11 }, ErrInvalidAction},
		{"negative delay", func(a *Automation) { a.Actions[0].RetryDelaySeconds = -1 }, ErrInvalidAction},
		{"duplicate action ids", func(a *Automation) {
			a.Actions = append(a.Actions, a.Actions[0])
		}, ErrInvalidAction},
		{"too many actions", func(a *Automation) {
			for i := 0; i < maxActions; i++ {
				a.Actions = append(a.Actions, Action{ID: GenerateID(), Type: ActionNotify, MaxRetries: 1, RetryDelaySeconds: i})
			}
		}, ErrInvalidAction},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := testAutomation("a1", "u1", "evt")
			tc.mutate(a)
			err := ValidateAutomation(a)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if err := ValidateAutomation(nil); !errors.Is(err, ErrInvalidAutomation) {
		t.Errorf("nil automation = %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	a := &Automation{
		Name:    "defaults",
		OwnerID: "u1",
		Trigger: Trigger{Type: TriggerEvent, EventName: "x"},
		Actions: []Action{{Type: ActionNotify}, {Type: ActionEmail, MaxRetries: 5, RetryDelaySeconds: 10}},
	}
	a.ApplyDefaults()

	if a.ID == "" || a.Trigger.ID == "" || a.Actions[0].ID == "" {
		t.Error("IDs not generated")
	}
	if a.Status != StatusActive || a.Trigger.Timezone != "UTC" || a.Trigger.CheckIntervalSeconds != 300 {
		t.Errorf("defaults = %+v", a)
	}
	if a.Actions[0].MaxRetries != 3 || a.Actions[0].RetryDelaySeconds != 0 {
		t.Errorf("action defaults = %+v, want max_retries 3 and a zero delay kept", a.Actions[0])
	}
	if a.Actions[1].MaxRetries != 5 || a.Actions[1].RetryDelay() != 10*time.Second {
		t.Errorf("explicit values overwritten: %+v", a.Actions[1])
	}
	if err := ValidateAutomation(a); err != nil {
		t.Errorf("defaulted automation invalid: %v", err)
	}
}

func TestDiagnostics(t *testing.T) {
	silent := testAutomation("a1", "u1", "")
	if w := Diagnostics(silent, CronModeExact); len(w) != 1 || !strings.Contains(w[0], "never fire") {
		t.Errorf("event diagnostics = %v", w)
	}

	weekdays := scheduleAutomation("s1", "0 9 * * 1-5")
	if w := Diagnostics(weekdays, CronModeExact); len(w) != 1 {
		t.Errorf("schedule diagnostics = %v", w)
	}

	custom := testAutomation("c1", "u1", "evt")
	custom.Actions[0].Type = ActionCustom
	if w := Diagnostics(custom, CronModeExact); len(w) != 1 || !strings.Contains(w[0], "custom") {
		t.Errorf("custom diagnostics = %v", w)
	}
}

func TestNewRunID_Ordered(t *testing.T) {
	t0 := time.Date(2026, 10, 12, 20, 0, 0, 0, time.UTC)
	a := NewRunID(t0)
	b := NewRunID(t0)
	c := NewRunID(t0.Add(time.Millisecond))

	if len(a) != 26 {
		t.Errorf("ULID length = %d, want 26", len(a))
	}
	if !(a < b && b < c) {
		t.Errorf("run IDs not ordered: %s %s %s", a, b, c)
	}
}

func TestDeepCopy(t *testing.T) {
	a := testAutomation("a1", "u1", "evt")
	a.Trigger.EventFilter = map[string]any{"tags": map[string]any{"$in": []any{"x"}}}
	now := time.Now()
	a.LastRunAt = &now

	cpy := a.DeepCopy()
	cpy.Trigger.EventFilter["tags"].(map[string]any)["$in"].([]any)[0] = "changed"
	cpy.Actions[0].ID = "changed"
	*cpy.LastRunAt = now.Add(time.Hour)

	if a.Trigger.EventFilter["tags"].(map[string]any)["$in"].([]any)[0] != "x" {
		t.Error("event filter shared")
	}
	if a.Actions[0].ID != "notify" {
		t.Error("actions shared")
	}
	if !a.LastRunAt.Equal(now) {
		t.Error("last_run_at shared")
	}
	if (*Automation)(nil).DeepCopy() != nil {
		t.Error("nil DeepCopy should be nil")
	}
}
