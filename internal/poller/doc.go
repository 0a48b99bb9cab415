// Package poller implements the current-user fallback poller.
//
// The Poller:
//   - Refetches the current user on a fixed interval
//   - Runs only while the realtime connection is not delivering updates
//   - Skips while signed out
//   - Polls immediately when the current-user query is invalidated
package poller
