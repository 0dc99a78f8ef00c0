// Package gateway exposes chat sessions over HTTP and WebSocket.
//
// # Overview
//
// The gateway owns a registry of live sessions. Consumers create a
// session, exchange messages with it, and optionally stream its events
// over a WebSocket instead of polling.
//
// # Routes
//
//   - GET  /healthz — liveness probe
//   - POST /api/sessions — create a session
//   - GET  /api/sessions/{id} — session state
//   - DELETE /api/sessions/{id} — tear a session down
//   - POST /api/sessions/{id}/messages — send text as the local party
//   - POST /api/sessions/{id}/buttons — forward a quick-reply selection
//   - GET  /api/sessions/{id}/transcript — visible transcript snapshot
//   - GET  /api/sessions/{id}/events — WebSocket event stream
//
// # Sessions and Channels
//
// Session defaults come from the server configuration; a create request
// may override the user id, the webhook host, or name an attendant
// channel to resume. Each session receives its own attendant channel
// client from the ChannelFactory, so gateway instances can run against
// the in-process broker or Redis without the handlers knowing which.
package gateway
