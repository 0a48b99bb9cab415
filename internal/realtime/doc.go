// Package realtime implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one event-stream connection to the broadcasting backend
//   - Speaks the Pusher Channels protocol (v7) over a WebSocket
//   - Keeps a registry of private-channel bindings and (re)subscribes them on connect
//   - Authorizes private channels through the backend before subscribing
//   - Publishes connection status to listeners, in order, exactly once per change
//   - Delivers channel events to handlers through a per-channel mailbox
//
// The manager never reconnects on its own; the owner decides the retry policy.
// Construct one Manager at the process root and pass it to every consumer.
package realtime
