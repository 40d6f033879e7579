// Package api implements the HTTP REST API and WebSocket server for Flowline.
//
// This package provides:
//   - REST endpoints for automation CRUD, status changes and run history
//   - Manual runs, inbound webhooks and event submission
//   - An expression evaluation endpoint for testing run_if and conditions
//   - A WebSocket hub that pushes automation.run_completed to UI clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit,
//     per-client rate limit)
//
// # Architecture
//
// The server is a thin adapter over automation.Engine. Every run started
// through the API goes through the same Execution Pipeline as event and
// schedule runs, and the hub is registered as an engine RunListener so UI
// clients see runs from every trigger source.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Health reports the state
// of whichever components were supplied.
package api
