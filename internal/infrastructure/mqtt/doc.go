// Package mqtt provides the MQTT client Flowline uses as its event bus.
//
// Flowline talks MQTT in both directions:
//
//	producers ──▶ flowline/event/{event_name}            ──▶ ingest ──▶ Engine.EmitEvent
//	Engine    ──▶ flowline/core/automation/{id}/run       (run completed)
//	actions   ──▶ flowline/notify/{channel}               (notify)
//	actions   ──▶ flowline/agent/{agent_id}/task          (agent_task)
//	actions   ──▶ flowline/space/{scope}/workflow/{id}    (workflow)
//	Core      ──▶ flowline/system/status                  (online/offline, LWT)
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after reconnect, panic-safe handlers and a Last Will message
// so other services can tell when Flowline goes away.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllEvents(), 1, handler)
package mqtt
