// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Realtime connection status and transitions
//   - Channel events by name and outcome
//   - Watcher surface decisions by resource kind
//   - Refresh and poll results
//   - Health server request counts
package metrics
