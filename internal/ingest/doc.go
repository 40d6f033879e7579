// Package ingest feeds events published over MQTT into the automation
// engine.
//
// Messages on flowline/event/{event_name} are decoded and passed to
// EmitEvent. The payload is either an envelope
//
//	{"data": {...}, "user_id": "u-1"}
//
// or a bare JSON object, which is used as the event data with no owner
// restriction. An empty payload emits the event with empty data.
package ingest
