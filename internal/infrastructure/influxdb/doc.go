// Package influxdb records automation metrics in InfluxDB v2.
//
// Two measurements are written through the non-blocking, batched write API:
//
//	automation_runs     tags: automation_id, scope, trigger, success
//	                    fields: duration_ms, actions, failed, skipped
//	automation_actions  tags: automation_id, action_id, action_type, outcome
//	                    fields: attempts, succeeded
//
// Writes never block a run. Delivery errors arrive asynchronously on the
// callback set with SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//	client.WriteRun(metric)
package influxdb
