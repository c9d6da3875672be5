// Package api implements the HTTP control API and WebSocket stream of the
// observatory supervisor.
//
// This package provides:
//   - REST endpoints for the machine state, monitored items, instrument
//     flags and locks, and pending operator questions
//   - A WebSocket hub relaying supervisor events (state changes, item
//     statuses, flag changes, broadcasts, questions) to live clients
//   - Bearer JWT authentication (HS256, shared secret) with single-use
//     tickets for WebSocket connections
//   - Prometheus metrics at /metrics
//
// # Security
//
// Every route except /health and /metrics requires a token signed with
// security.jwt.secret. Tokens are minted with IssueToken (see the
// "supervisor token" command); there is no user database.
package api
