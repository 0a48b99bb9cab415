// Package watcher turns a stream of resource snapshots into discrete
// open and close decisions for a presentation surface.
//
// Transition is the whole state machine. A surface opens once per distinct
// (id, stage) while the resource is in the active status, stays as the user
// left it while nothing changes, and closes (forgetting what it announced)
// as soon as the resource leaves the active status or disappears.
package watcher
