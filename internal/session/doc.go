// Package session holds the client-side session state the realtime core reads:
// the bearer token, the hydration flag and the current user with its in-flight
// withdrawal and conversion requests.
//
// The store is written by the refresh coordinator, the event dispatcher and the
// poller, and read by the watchers. Every mutation is announced to subscribers
// as a Change, in mutation order.
package session
