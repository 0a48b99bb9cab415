// Package dispatch routes realtime channel events into the session store.
//
// The Dispatcher binds the signed-in user's private channel once the user id
// is known, decodes each pushed payload into the domain model and applies it
// to the store. Watchers observe the store, so they see pushed updates and
// polled updates the same way.
package dispatch
