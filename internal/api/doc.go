// Package api provides the dashboard backend REST client used by the realtime core.
//
// Endpoints:
//   - GET  /user               full current-user state (balances, tracked requests)
//   - POST /broadcasting/auth  short-lived private-channel authorization
//
// Requests carry the session bearer token and an X-Request-ID header.
package api
