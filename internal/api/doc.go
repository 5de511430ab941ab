// Package api implements the local HTTP API and WebSocket event stream.
//
// This package provides:
//   - REST endpoints for homes, devices, device state and commands
//   - A WebSocket stream of per-device state snapshots and changes
//   - Prometheus metrics for the channel, store and orchestrator
//   - Middleware (request ID, logging, recovery, body limit)
//
// # Commands
//
// POST /api/v1/devices/{id}/commands takes a JSON intent:
//
//	{"type": "set_temperature", "celsius": 21.5}
//
// An intent the device cannot perform is 422 and nothing is sent. A
// rejected vendor login is 401; an unreachable cloud or broker is 503.
//
// # State stream
//
// Clients connect to /api/v1/ws (optionally ?devices=<id>,<id> or
// ?devices=*) and subscribe by device:
//
//	{"type": "subscribe", "id": "1", "devices": ["AA:BB:CC:DD:EE:01"]}
//
// The server acks, sends a "snapshot" frame with the current state of each
// newly followed device, then a "state" frame per accepted change. A state
// frame may repeat a value its snapshot already holds; compare source times.
package api
