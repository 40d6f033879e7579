package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRuns    = "automation_runs"
	MeasurementActions = "automation_actions"
)

// RunMetric summarises one automation run.
type RunMetric struct {
	AutomationID string
	Scope        string
	Trigger      string
	Success      bool
	Duration     time.Duration
	Actions      int
	Failed       int
	Skipped      int
	CompletedAt  time.Time
}

// ActionMetric summarises one action result within a run.
type ActionMetric struct {
	AutomationID string
	ActionID     string
	ActionType   string
	Outcome      string // succeeded, failed or skipped
	Attempts     int
	CompletedAt  time.Time
}

// WriteRun queues a run point.
func (c *Client) WriteRun(m RunMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(runPoint(m))
}

// WriteAction queues an action point.
func (c *Client) WriteAction(m ActionMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(actionPoint(m))
}

// WritePoint queues a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func runPoint(m RunMetric) *write.Point {
	tags := map[string]string{
		"automation_id": m.AutomationID,
		"success":       strconv.FormatBool(m.Success),
	}
	if m.Scope != "" {
		tags["scope"] = m.Scope
	}
	if m.Trigger != "" {
		tags["trigger"] = m.Trigger
	}

	return write.NewPoint(MeasurementRuns, tags, map[string]any{
		"duration_ms": m.Duration.Milliseconds(),
		"actions":     m.Actions,
		"failed":      m.Failed,
		"skipped":     m.Skipped,
	}, timestampOrNow(m.CompletedAt))
}

func actionPoint(m ActionMetric) *write.Point {
	return write.NewPoint(MeasurementActions, map[string]string{
		"automation_id": m.AutomationID,
		"action_id":     m.ActionID,
		"action_type":   m.ActionType,
		"outcome":       m.Outcome,
	}, map[string]any{
		"attempts":  m.Attempts,
		"succeeded": m.Outcome == "succeeded",
	}, timestampOrNow(m.CompletedAt))
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
